package domain

import (
	"net/url"
	"strings"

	"github.com/huijing/sgtechonline/internal/layout"
)

// BroadcastStatus represents the lifecycle state of a broadcast.
type BroadcastStatus string

const (
	BroadcastStatusWaiting BroadcastStatus = "waiting"
	BroadcastStatusActive  BroadcastStatus = "active"
	BroadcastStatusEnded   BroadcastStatus = "ended"
)

// ParseBroadcastStatus maps a signal payload back to a status.
func ParseBroadcastStatus(s string) (BroadcastStatus, bool) {
	switch BroadcastStatus(s) {
	case BroadcastStatusWaiting, BroadcastStatusActive, BroadcastStatusEnded:
		return BroadcastStatus(s), true
	}
	return "", false
}

// RTMPTarget is an optional external ingest endpoint.
type RTMPTarget struct {
	ServerURL  string `json:"serverUrl"`
	StreamName string `json:"streamName"`
}

// Enabled reports whether both fields are set.
func (t *RTMPTarget) Enabled() bool {
	return t != nil && strings.TrimSpace(t.ServerURL) != "" && strings.TrimSpace(t.StreamName) != ""
}

// Validate accepts an empty target, or an rtmp:// or rtmps:// URL with a
// host together with a stream name.
func (t *RTMPTarget) Validate() error {
	if t == nil {
		return nil
	}
	server := strings.TrimSpace(t.ServerURL)
	name := strings.TrimSpace(t.StreamName)

	switch {
	case server == "" && name == "":
		return nil
	case server == "":
		return &ValidationError{Field: "rtmp.serverUrl", Message: "required when streamName is set"}
	case name == "":
		return &ValidationError{Field: "rtmp.streamName", Message: "required when serverUrl is set"}
	}

	u, err := url.Parse(server)
	if err != nil {
		return &ValidationError{Field: "rtmp.serverUrl", Message: "not a valid URL"}
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "rtmp" && scheme != "rtmps" {
		return &ValidationError{Field: "rtmp.serverUrl", Message: "scheme must be rtmp or rtmps"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "rtmp.serverUrl", Message: "host is required"}
	}
	return nil
}

// BroadcastSession is the process-wide record of the live broadcast.
// Active sessions always carry ID and HLSURL; a waiting session carries neither.
type BroadcastSession struct {
	ID               string          `json:"id,omitempty"`
	BindingSessionID string          `json:"session,omitempty"`
	Status           BroadcastStatus `json:"status"`
	StreamCount      int             `json:"streams"`
	Layout           layout.Config   `json:"layout"`
	RTMP             bool            `json:"rtmp"`
	RTMPTarget       *RTMPTarget     `json:"rtmpTarget,omitempty"`
	HLSURL           string          `json:"url,omitempty"`
	OwnerAPIKey      string          `json:"apiKey,omitempty"`
	CreatedAt        int64           `json:"createdAt,omitempty"`   // epoch ms
	AvailableAt      int64           `json:"availableAt,omitempty"` // epoch ms
}

// WaitingSession is the empty slot.
func WaitingSession() BroadcastSession {
	return BroadcastSession{Status: BroadcastStatusWaiting}
}

// EndedSession describes a broadcast that has just been stopped.
func EndedSession(bindingSessionID, id string) BroadcastSession {
	return BroadcastSession{ID: id, BindingSessionID: bindingSessionID, Status: BroadcastStatusEnded}
}

// IsActive reports whether the session is live.
func (b *BroadcastSession) IsActive() bool {
	return b != nil && b.Status == BroadcastStatusActive
}

// Clone returns a deep copy.
func (b *BroadcastSession) Clone() *BroadcastSession {
	if b == nil {
		return nil
	}
	c := *b
	if b.RTMPTarget != nil {
		t := *b.RTMPTarget
		c.RTMPTarget = &t
	}
	return &c
}

// StartBroadcastRequest represents a start broadcast request.
type StartBroadcastRequest struct {
	SessionID string      `json:"sessionId" binding:"required"`
	Streams   int         `json:"streams" binding:"min=0"`
	RTMP      *RTMPTarget `json:"rtmp"`
}

// UpdateLayoutRequest represents a layout update request.
type UpdateLayoutRequest struct {
	Streams int `json:"streams" binding:"min=0"`
}

// LayoutUpdate acknowledges an applied layout change.
type LayoutUpdate struct {
	ID      string        `json:"id"`
	Streams int           `json:"streams"`
	Layout  layout.Config `json:"layout"`
}

// EndBroadcastResponse acknowledges a stopped broadcast.
type EndBroadcastResponse struct {
	ID     string          `json:"id"`
	Status BroadcastStatus `json:"status"`
}
