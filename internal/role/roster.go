package role

import (
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/transport"
)

// RosterEntry is one known stream.
type RosterEntry struct {
	StreamID    string      `json:"streamId"`
	DisplayName string      `json:"name"`
	Role        domain.Role `json:"role"`
}

// Roster is the ordered set of streams a participant knows about.
type Roster struct {
	entries []RosterEntry
	streams map[string]transport.Stream
}

func NewRoster() *Roster {
	return &Roster{streams: make(map[string]transport.Stream)}
}

// Add records st and reports whether it was new.
func (r *Roster) Add(st transport.Stream) bool {
	if _, ok := r.streams[st.ID]; ok {
		return false
	}
	r.streams[st.ID] = st
	r.entries = append(r.entries, RosterEntry{StreamID: st.ID, DisplayName: st.Name, Role: st.Role})
	return true
}

// Remove drops the stream and reports whether it was known.
func (r *Roster) Remove(streamID string) bool {
	if _, ok := r.streams[streamID]; !ok {
		return false
	}
	delete(r.streams, streamID)
	for i, e := range r.entries {
		if e.StreamID == streamID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	return true
}

func (r *Roster) Len() int { return len(r.entries) }

// Streams returns the known streams in arrival order.
func (r *Roster) Streams() []transport.Stream {
	out := make([]transport.Stream, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, r.streams[e.StreamID])
	}
	return out
}

// Entries returns a copy of the roster.
func (r *Roster) Entries() []RosterEntry {
	out := make([]RosterEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
