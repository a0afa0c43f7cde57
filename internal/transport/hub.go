package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/huijing/sgtechonline/internal/domain"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
	"github.com/huijing/sgtechonline/pkg/pubsub"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("transport session closed")
	// ErrHubClosed is returned by Connect after Close.
	ErrHubClosed = errors.New("transport hub closed")
)

// Hub fans the bus events of each binding session out to the participants
// connected to this process. It holds one bus subscription per binding
// session that has at least one local participant.
type Hub struct {
	ps     pubsub.PubSub
	mu     sync.Mutex
	groups map[string]*group
	closed bool

	// opening joins concurrent first connects to one bus subscription,
	// made without holding mu.
	opening singleflight.Group
}

type group struct {
	bindingID string
	members   map[string]*LocalSession // connection id → session
	streams   map[string]Stream        // streams seen on the bus, for late joiners
	order     []string
	cancel    context.CancelFunc
}

// NewHub creates a hub on top of a bus.
func NewHub(ps pubsub.PubSub) *Hub {
	return &Hub{
		ps:     ps,
		groups: make(map[string]*group),
	}
}

// Connect joins conn to a binding session. Streams already known to this
// process are queued to the new session as streamCreated events.
func (h *Hub) Connect(ctx context.Context, bindingID string, conn Connection, sink MediaSink) (*LocalSession, error) {
	if bindingID == "" {
		return nil, &domain.ValidationError{Field: "session", Message: "required"}
	}
	if sink == nil {
		sink = NopSink{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		if h.closed {
			return nil, ErrHubClosed
		}
		if _, ok := h.groups[bindingID]; ok {
			break
		}
		h.mu.Unlock()
		_, err, _ := h.opening.Do(bindingID, func() (interface{}, error) {
			return nil, h.open(ctx, bindingID)
		})
		h.mu.Lock()
		if err != nil {
			return nil, err
		}
	}
	g := h.groups[bindingID]

	s := &LocalSession{
		hub:       h,
		bindingID: bindingID,
		conn:      conn,
		sink:      sink,
		queue:     newEventQueue(),
	}
	for _, id := range g.order {
		st := g.streams[id]
		if st.Connection.ID == conn.ID {
			continue
		}
		s.queue.push(Event{Type: EventStreamCreated, Stream: &st})
	}
	g.members[conn.ID] = s

	l := pkglog.Ctx(ctx)
	l.Info().
		Str(pkglog.FieldSessionID, bindingID).
		Str(pkglog.FieldConnectionID, conn.ID).
		Int("participants", len(g.members)).
		Msg("participant connected")

	return s, nil
}

// open subscribes to the binding's channel and installs its group. The
// bus call runs without mu so a slow broker only delays this binding.
func (h *Hub) open(ctx context.Context, bindingID string) error {
	h.mu.Lock()
	_, ok := h.groups[bindingID]
	h.mu.Unlock()
	if ok {
		return nil
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := h.ps.Subscribe(subCtx, pubsub.ParticipantsChannel(bindingID))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to session %s: %w", bindingID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		cancel()
		return ErrHubClosed
	}
	g := &group{
		bindingID: bindingID,
		members:   make(map[string]*LocalSession),
		streams:   make(map[string]Stream),
		cancel:    cancel,
	}
	h.groups[bindingID] = g
	go h.pump(g, ch)
	return nil
}

// Close drops every bus subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, g := range h.groups {
		g.cancel()
		for _, m := range g.members {
			m.queue.close()
		}
		delete(h.groups, id)
	}
}

func (h *Hub) leave(ctx context.Context, s *LocalSession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[s.bindingID]
	if !ok {
		return
	}
	delete(g.members, s.conn.ID)
	if len(g.members) > 0 {
		return
	}

	g.cancel()
	if err := h.ps.Unsubscribe(ctx, pubsub.ParticipantsChannel(g.bindingID)); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldSessionID, g.bindingID).Msg("failed to unsubscribe session channel")
	}
	delete(h.groups, s.bindingID)
}

func (h *Hub) pump(g *group, ch <-chan *pubsub.Event) {
	for ev := range ch {
		h.dispatch(g, ev)
	}
}

func (h *Hub) dispatch(g *group, ev *pubsub.Event) {
	l := pkglog.L()

	switch ev.Type {
	case pubsub.EventStreamCreated, pubsub.EventStreamDestroyed:
		var p pubsub.StreamPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldSessionID, ev.SessionID).Msg("dropping malformed stream event")
			return
		}
		st := streamFromPayload(p)

		h.mu.Lock()
		defer h.mu.Unlock()

		typ := EventStreamCreated
		if ev.Type == pubsub.EventStreamCreated {
			if _, known := g.streams[st.ID]; known {
				return
			}
			g.streams[st.ID] = st
			g.order = append(g.order, st.ID)
		} else {
			typ = EventStreamDestroyed
			delete(g.streams, st.ID)
			for i, id := range g.order {
				if id == st.ID {
					g.order = append(g.order[:i], g.order[i+1:]...)
					break
				}
			}
		}

		for id, m := range g.members {
			if id == st.Connection.ID {
				continue
			}
			stream := st
			m.queue.push(Event{Type: typ, Stream: &stream})
		}

	case pubsub.EventSignal:
		var p pubsub.SignalPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldSessionID, ev.SessionID).Msg("dropping malformed signal event")
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		if p.To != "" {
			if m, ok := g.members[p.To]; ok {
				sig := signalFromPayload(p)
				m.queue.push(Event{Type: EventSignal, Signal: &sig})
			}
			return
		}
		for _, m := range g.members {
			sig := signalFromPayload(p)
			m.queue.push(Event{Type: EventSignal, Signal: &sig})
		}

	default:
		l.Debug().Str("event_type", ev.Type).Msg("ignoring unknown session event")
	}
}

func (h *Hub) publish(ctx context.Context, bindingID, eventType string, payload interface{}) error {
	ev, err := pubsub.NewEvent(eventType, bindingID, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	return h.ps.Publish(ctx, pubsub.ParticipantsChannel(bindingID), ev)
}

// LocalSession is a participant connected through this process.
type LocalSession struct {
	hub       *Hub
	bindingID string
	conn      Connection
	sink      MediaSink
	queue     *eventQueue

	mu        sync.Mutex
	published []Stream
	closed    bool
}

// Connection returns the participant's connection.
func (s *LocalSession) Connection() Connection { return s.conn }

// BindingID returns the binding session id.
func (s *LocalSession) BindingID() string { return s.bindingID }

// Events delivers session events in bus order. Closed after Close.
func (s *LocalSession) Events() <-chan Event { return s.queue.out }

// Publish starts the participant's own stream.
func (s *LocalSession) Publish(ctx context.Context, role domain.Role) (Stream, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Stream{}, ErrSessionClosed
	}
	st := Stream{
		ID:         uuid.New().String(),
		Name:       s.conn.DisplayName(),
		Role:       role,
		Connection: s.conn,
	}
	s.published = append(s.published, st)
	s.mu.Unlock()

	s.sink.Publish(st)
	return st, s.hub.publish(ctx, s.bindingID, pubsub.EventStreamCreated, streamToPayload(st))
}

// Subscribe asks the client to receive a remote stream.
func (s *LocalSession) Subscribe(ctx context.Context, stream Stream) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.sink.Subscribe(stream)
	return nil
}

// Unsubscribe asks the client to stop receiving a remote stream.
func (s *LocalSession) Unsubscribe(ctx context.Context, streamID string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.sink.Unsubscribe(streamID)
	return nil
}

// Signal sends sig from this connection. An empty ID is filled with a ULID.
func (s *LocalSession) Signal(ctx context.Context, sig Signal) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if sig.ID == "" {
		sig.ID = ulid.Make().String()
	}
	sig.From = s.conn
	return s.hub.publish(ctx, s.bindingID, pubsub.EventSignal, signalToPayload(sig))
}

// Close unpublishes the participant's streams and leaves the session.
func (s *LocalSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	published := s.published
	s.published = nil
	s.mu.Unlock()

	var errs []error
	for _, st := range published {
		if err := s.hub.publish(ctx, s.bindingID, pubsub.EventStreamDestroyed, streamToPayload(st)); err != nil {
			errs = append(errs, err)
		}
	}

	s.hub.leave(ctx, s)
	s.queue.close()

	l := pkglog.Ctx(ctx)
	l.Info().
		Str(pkglog.FieldSessionID, s.bindingID).
		Str(pkglog.FieldConnectionID, s.conn.ID).
		Msg("participant disconnected")

	return errors.Join(errs...)
}

func (s *LocalSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func streamToPayload(st Stream) pubsub.StreamPayload {
	return pubsub.StreamPayload{
		StreamID:       st.ID,
		Name:           st.Name,
		Role:           string(st.Role),
		ConnectionID:   st.Connection.ID,
		ConnectionData: st.Connection.Data,
	}
}

func streamFromPayload(p pubsub.StreamPayload) Stream {
	return Stream{
		ID:         p.StreamID,
		Name:       p.Name,
		Role:       domain.Role(p.Role),
		Connection: Connection{ID: p.ConnectionID, Data: p.ConnectionData},
	}
}

func signalToPayload(sig Signal) pubsub.SignalPayload {
	return pubsub.SignalPayload{
		ID:       sig.ID,
		Type:     sig.Type,
		Data:     sig.Data,
		From:     sig.From.ID,
		FromData: sig.From.Data,
		To:       sig.To,
	}
}

func signalFromPayload(p pubsub.SignalPayload) Signal {
	return Signal{
		ID:   p.ID,
		Type: p.Type,
		Data: p.Data,
		From: Connection{ID: p.From, Data: p.FromData},
		To:   p.To,
	}
}
