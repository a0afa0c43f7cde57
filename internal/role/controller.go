// Package role runs one participant's side of a broadcast session as an
// actor: transport events, user actions and backend completions go through
// a single mailbox and are handled one at a time.
package role

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huijing/sgtechonline/internal/chat"
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
	"github.com/huijing/sgtechonline/internal/service"
	"github.com/huijing/sgtechonline/internal/signal"
	"github.com/huijing/sgtechonline/internal/transport"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
	"github.com/oklog/ulid/v2"
)

// Config wires a controller to its collaborators.
type Config struct {
	Role             domain.Role
	BindingSessionID string
	// ParticipantKey names the viewer's persisted history. Defaults to the
	// display name.
	ParticipantKey string
	Session        transport.Session
	Coordinator    service.BroadcastCoordinator // host only
	Store          chat.Store                   // viewer only, optional
	View           View
}

// behavior is the per-role transition table.
type behavior interface {
	join(ctx context.Context) error
	streamAdded(ctx context.Context, st transport.Stream)
	streamRemoved(ctx context.Context, st transport.Stream)
	broadcastSignal(ctx context.Context, sig transport.Signal)
	action(ctx context.Context, a actionMsg)
	completion(ctx context.Context, m message)
	canChat() error
}

type message interface{}

type actionKind int

const (
	actionStart actionKind = iota
	actionEnd
	actionChat
)

type (
	eventMsg      struct{ ev transport.Event }
	sessionClosed struct{}
	actionMsg     struct {
		kind  actionKind
		rtmp  *domain.RTMPTarget
		text  string
		reply chan error
	}
	startDone struct {
		broadcast *domain.BroadcastSession
		err       error
		reply     chan error
	}
	endDone struct {
		err   error
		reply chan error
	}
	chatDone struct {
		err   error
		reply chan error
	}
	layoutDone struct {
		streams int
		kind    layout.Kind
		update  *domain.LayoutUpdate
		err     error
	}
	// slotChanged carries a coordinator slot change, whoever caused it.
	slotChanged struct {
		session domain.BroadcastSession
	}
	replayDone struct {
		epoch int
		msgs  []domain.ChatMessage
		err   error
	}
)

// Controller is one participant's actor.
type Controller struct {
	cfg      Config
	behavior behavior
	relay    *signal.Relay
	history  *chat.History
	roster   *Roster
	persist  *persister

	self       transport.Connection
	name       string
	subscribed map[string]struct{}

	inbox   *mailbox
	done    chan struct{}
	unwatch func()

	// ctx is the Run context, bctx the same without cancellation for
	// backend calls that must finish after a disconnect.
	ctx  context.Context
	bctx context.Context
}

// NewController validates cfg and builds the controller for its role.
func NewController(cfg Config) (*Controller, error) {
	if _, err := domain.ParseRole(string(cfg.Role)); err != nil {
		return nil, err
	}
	if cfg.Session == nil {
		return nil, errors.New("role: transport session is required")
	}
	if cfg.Role == domain.RoleHost && cfg.Coordinator == nil {
		return nil, errors.New("role: host requires a broadcast coordinator")
	}
	if cfg.View == nil {
		cfg.View = NopView{}
	}

	self := cfg.Session.Connection()
	c := &Controller{
		cfg:        cfg,
		relay:      signal.NewRelay(cfg.Session),
		history:    chat.NewHistory(),
		roster:     NewRoster(),
		self:       self,
		name:       self.DisplayName(),
		subscribed: make(map[string]struct{}),
		inbox:      newMailbox(),
		done:       make(chan struct{}),
		ctx:        context.Background(),
		bctx:       context.Background(),
	}

	switch cfg.Role {
	case domain.RoleHost:
		c.behavior = newHost(c, cfg.Coordinator)
	case domain.RoleViewer:
		if cfg.Store != nil {
			key := cfg.ParticipantKey
			if key == "" {
				key = c.name
			}
			c.persist = newPersister(c, cfg.Store, chat.Key(cfg.BindingSessionID, key))
		}
		c.behavior = newViewer(c)
	default:
		c.behavior = newGuest(c)
	}

	c.relay.OnReceive(signal.TypeMsg, c.receiveChat)
	c.relay.OnReceive(signal.TypeBroadcast, func(sig transport.Signal) {
		c.behavior.broadcastSignal(c.ctx, sig)
	})

	return c, nil
}

// Role returns the participant role.
func (c *Controller) Role() domain.Role { return c.cfg.Role }

// Connection returns the participant's transport connection.
func (c *Controller) Connection() transport.Connection { return c.self }

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// StartBroadcast asks the host to go live. The channel delivers the outcome.
func (c *Controller) StartBroadcast(rtmp *domain.RTMPTarget) <-chan error {
	return c.submit(actionMsg{kind: actionStart, rtmp: rtmp})
}

// EndBroadcast asks the host to stop the broadcast.
func (c *Controller) EndBroadcast() <-chan error {
	return c.submit(actionMsg{kind: actionEnd})
}

// SendChat sends "<name>: <text>" to every participant.
func (c *Controller) SendChat(text string) <-chan error {
	return c.submit(actionMsg{kind: actionChat, text: text})
}

func (c *Controller) submit(a actionMsg) <-chan error {
	a.reply = make(chan error, 1)
	if !c.inbox.put(a) {
		a.reply <- ErrStopped
	}
	return a.reply
}

// complete re-injects a backend result. Once the actor has stopped the
// result goes straight to the waiting action.
func (c *Controller) complete(m message) {
	if !c.inbox.put(m) {
		abandon(m)
	}
}

func abandon(m message) {
	switch m := m.(type) {
	case actionMsg:
		m.reply <- ErrStopped
	case startDone:
		m.reply <- m.err
	case endDone:
		m.reply <- m.err
	case chatDone:
		m.reply <- m.err
	}
}

// Run joins the session and processes the mailbox until ctx is done or the
// transport session closes.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	ctx, l := pkglog.WithParticipant(ctx, pkglog.Participant{
		SessionID:    c.cfg.BindingSessionID,
		ConnectionID: c.self.ID,
		Role:         string(c.cfg.Role),
		Name:         c.name,
	})
	c.ctx = ctx
	c.bctx = context.WithoutCancel(ctx)

	if c.persist != nil {
		go c.persist.run(ctx)
	}
	go c.forward(ctx)

	if err := c.behavior.join(ctx); err != nil {
		c.stop()
		return err
	}
	l.Info().Msg("participant joined")

	for {
		if err := ctx.Err(); err != nil {
			c.stop()
			return err
		}

		m, ok := c.inbox.pop()
		if !ok {
			select {
			case <-ctx.Done():
			case <-c.inbox.notify:
			}
			continue
		}

		if !c.handle(ctx, m) {
			c.stop()
			l.Info().Msg("participant left")
			return nil
		}
	}
}

func (c *Controller) stop() {
	if c.unwatch != nil {
		c.unwatch()
	}
	for _, m := range c.inbox.close() {
		abandon(m)
	}
	if c.persist != nil {
		c.persist.close()
	}
}

func (c *Controller) forward(ctx context.Context) {
	events := c.cfg.Session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.inbox.put(sessionClosed{})
				return
			}
			c.inbox.put(eventMsg{ev: ev})
		}
	}
}

func (c *Controller) handle(ctx context.Context, m message) bool {
	switch m := m.(type) {
	case eventMsg:
		c.handleEvent(ctx, m.ev)
	case sessionClosed:
		return false
	case actionMsg:
		if m.kind == actionChat {
			c.sendChat(ctx, m)
		} else {
			c.behavior.action(ctx, m)
		}
	case chatDone:
		m.reply <- m.err
	default:
		c.behavior.completion(ctx, m)
	}
	return true
}

func (c *Controller) handleEvent(ctx context.Context, ev transport.Event) {
	l := pkglog.Ctx(ctx)

	switch ev.Type {
	case transport.EventStreamCreated:
		if ev.Stream == nil {
			return
		}
		st := *ev.Stream
		if !c.roster.Add(st) {
			l.Debug().Str("stream_id", st.ID).Msg("duplicate stream ignored")
			return
		}
		c.cfg.View.RosterChanged(c.roster.Len())
		c.behavior.streamAdded(ctx, st)

	case transport.EventStreamDestroyed:
		if ev.Stream == nil {
			return
		}
		st := *ev.Stream
		if !c.roster.Remove(st.ID) {
			return
		}
		c.dropSubscription(ctx, st.ID)
		c.cfg.View.RosterChanged(c.roster.Len())
		c.behavior.streamRemoved(ctx, st)

	case transport.EventSignal:
		c.relay.Dispatch(ev)
	}
}

// publishSelf starts the participant's own stream and counts it in the roster.
func (c *Controller) publishSelf(ctx context.Context) error {
	st, err := c.cfg.Session.Publish(ctx, c.cfg.Role)
	if err != nil {
		return fmt.Errorf("failed to publish %s stream: %w", c.cfg.Role, err)
	}
	c.roster.Add(st)
	c.cfg.View.RosterChanged(c.roster.Len())
	return nil
}

func (c *Controller) subscribe(ctx context.Context, st transport.Stream) {
	if st.Connection.ID == c.self.ID {
		return
	}
	if _, ok := c.subscribed[st.ID]; ok {
		return
	}
	if err := c.cfg.Session.Subscribe(ctx, st); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("stream_id", st.ID).Msg("subscribe failed")
		return
	}
	c.subscribed[st.ID] = struct{}{}
}

func (c *Controller) dropSubscription(ctx context.Context, streamID string) {
	if _, ok := c.subscribed[streamID]; !ok {
		return
	}
	delete(c.subscribed, streamID)
	if err := c.cfg.Session.Unsubscribe(ctx, streamID); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("stream_id", streamID).Msg("unsubscribe failed")
	}
}

func (c *Controller) unsubscribeAll(ctx context.Context) {
	for id := range c.subscribed {
		c.dropSubscription(ctx, id)
	}
}

// announce sends a status to every participant. Failures are logged by
// the relay and not retried.
func (c *Controller) announce(ctx context.Context, status domain.BroadcastStatus) {
	_ = c.relay.Send(ctx, signal.TypeBroadcast, string(status), nil)
}

func (c *Controller) receiveChat(sig transport.Signal) {
	author, content := domain.ParseChat(sig.Data)
	visibility := domain.VisibilityOthers
	if sig.From.ID == c.self.ID {
		visibility = domain.VisibilitySelf
	}

	msg := domain.ChatMessage{
		ID:         sig.ID,
		AuthorName: author,
		Content:    content,
		Visibility: visibility,
		SentAt:     sentAt(sig.ID),
	}
	if !c.history.Append(msg) {
		return
	}
	c.cfg.View.ChatReceived(msg)
	if c.persist != nil {
		c.persist.append(msg)
	}
}

func (c *Controller) sendChat(ctx context.Context, a actionMsg) {
	if err := c.behavior.canChat(); err != nil {
		a.reply <- err
		return
	}
	text := strings.TrimSpace(a.text)
	if text == "" {
		a.reply <- &domain.ValidationError{Field: "text", Message: "required"}
		return
	}

	data := domain.FormatChat(c.name, text)
	go func() {
		err := c.relay.Send(c.bctx, signal.TypeMsg, data, nil)
		c.complete(chatDone{err: err, reply: a.reply})
	}()
}

// sentAt reads the send time out of a ULID signal id.
func sentAt(id string) time.Time {
	if u, err := ulid.ParseStrict(id); err == nil {
		return ulid.Time(u.Time()).UTC()
	}
	return time.Now().UTC()
}
