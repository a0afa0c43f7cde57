package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/huijing/sgtechonline/internal/audit"
	"github.com/huijing/sgtechonline/internal/backend"
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/kafka"
	"github.com/huijing/sgtechonline/internal/layout"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
	"golang.org/x/sync/singleflight"
)

const (
	// IngestDelay is the encode plus CDN upload lag before HLS is playable.
	IngestDelay = 20 * time.Second

	DefaultBackendTimeout = 10 * time.Second
)

// Option configures the coordinator.
type Option func(*broadcastCoordinator)

// WithEventProducer publishes lifecycle events. A nil producer disables them.
func WithEventProducer(p kafka.BroadcastEventProducer) Option {
	return func(c *broadcastCoordinator) { c.producer = p }
}

// WithBackendTimeout bounds every backend call.
func WithBackendTimeout(d time.Duration) Option {
	return func(c *broadcastCoordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type broadcastCoordinator struct {
	backend  backend.Client
	producer kafka.BroadcastEventProducer
	timeout  time.Duration

	// lifecycleMu serializes Start and End. Layout updates only serialize
	// among themselves and rely on the id check when applying a result.
	lifecycleMu sync.Mutex
	layoutMu    sync.Mutex
	sf          singleflight.Group

	mu     sync.RWMutex
	active *domain.BroadcastSession

	watchMu   sync.Mutex
	watchers  map[uint64]func(domain.BroadcastSession)
	nextWatch uint64
}

// NewBroadcastCoordinator creates the coordinator.
func NewBroadcastCoordinator(client backend.Client, opts ...Option) BroadcastCoordinator {
	c := &broadcastCoordinator{
		backend:  client,
		timeout:  DefaultBackendTimeout,
		watchers: make(map[uint64]func(domain.BroadcastSession)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *broadcastCoordinator) Start(ctx context.Context, bindingSessionID string, streams int, rtmp *domain.RTMPTarget) (*domain.BroadcastSession, error) {
	bindingSessionID = strings.TrimSpace(bindingSessionID)
	if bindingSessionID == "" {
		return nil, &domain.ValidationError{Field: "sessionId", Message: "required"}
	}
	if streams < 0 {
		return nil, &domain.ValidationError{Field: "streams", Message: "must not be negative"}
	}
	if err := rtmp.Validate(); err != nil {
		return nil, err
	}

	if s := c.snapshot(); s != nil && s.BindingSessionID == bindingSessionID {
		return s, nil
	}

	v, err, _ := c.sf.Do(bindingSessionID, func() (interface{}, error) {
		return c.start(ctx, bindingSessionID, streams, rtmp)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.BroadcastSession).Clone(), nil
}

func (c *broadcastCoordinator) start(ctx context.Context, bindingSessionID string, streams int, rtmp *domain.RTMPTarget) (*domain.BroadcastSession, error) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	l := pkglog.ForBroadcast(ctx, bindingSessionID, "")

	if s := c.snapshot(); s != nil {
		if s.BindingSessionID == bindingSessionID {
			return s, nil
		}
		l.Warn().Str(pkglog.FieldBroadcastID, s.ID).Msg("start rejected, another broadcast is active")
		return nil, domain.ErrBroadcastInProgress
	}

	cfg := layout.ForStreams(streams)

	callCtx, cancel := c.withTimeout(ctx)
	resp, err := c.backend.StartBroadcast(callCtx, backend.NewStartRequest(bindingSessionID, cfg, rtmp))
	cancel()
	if err != nil {
		err = asBackendError(backend.OpStart, err)
		audit.Log(ctx, audit.ActionBroadcastStart, bindingSessionID, "", err, "broadcast start failed")
		return nil, err
	}

	if resp.BroadcastURLs.HLS == "" {
		err := &domain.BackendRequestError{Op: backend.OpStart, Err: errors.New("response has no hls url")}
		l.Error().Str(pkglog.FieldBroadcastID, resp.ID).Msg("backend started a broadcast without hls output, stopping it")
		c.stopOrphan(ctx, resp.ID)
		audit.Log(ctx, audit.ActionBroadcastStart, bindingSessionID, resp.ID, err, "broadcast start failed")
		return nil, err
	}

	createdAt := resp.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	session := &domain.BroadcastSession{
		ID:               resp.ID,
		BindingSessionID: bindingSessionID,
		Status:           domain.BroadcastStatusActive,
		StreamCount:      streams,
		Layout:           cfg,
		RTMP:             resp.RTMPEnabled(),
		HLSURL:           resp.BroadcastURLs.HLS,
		OwnerAPIKey:      resp.PartnerID.String(),
		CreatedAt:        createdAt,
		AvailableAt:      createdAt + IngestDelay.Milliseconds(),
	}
	if rtmp.Enabled() {
		t := *rtmp
		session.RTMPTarget = &t
	}

	c.mu.Lock()
	c.active = session
	c.mu.Unlock()

	l.Info().
		Str(pkglog.FieldBroadcastID, session.ID).
		Int(pkglog.FieldStreams, streams).
		Str("layout", string(cfg.Kind)).
		Bool("rtmp", session.RTMP).
		Msg("broadcast started")
	audit.Log(ctx, audit.ActionBroadcastStart, bindingSessionID, session.ID, nil, "broadcast started")
	c.notify(*session)

	if c.producer != nil {
		if err := c.producer.ProduceBroadcastStarted(ctx, session.Clone()); err != nil {
			l.Warn().Err(err).Msg("failed to produce broadcast started event")
		}
	}

	return session.Clone(), nil
}

func (c *broadcastCoordinator) UpdateLayout(ctx context.Context, streams int) (*domain.LayoutUpdate, error) {
	if streams < 0 {
		return nil, &domain.ValidationError{Field: "streams", Message: "must not be negative"}
	}

	c.layoutMu.Lock()
	defer c.layoutMu.Unlock()

	cur := c.snapshot()
	if cur == nil {
		return nil, domain.ErrNoActiveBroadcast
	}

	l := pkglog.ForBroadcast(ctx, cur.BindingSessionID, cur.ID)

	cfg := layout.ForStreams(streams)

	callCtx, cancel := c.withTimeout(ctx)
	err := c.backend.UpdateLayout(callCtx, cur.ID, cfg)
	cancel()
	if err != nil {
		err = asBackendError(backend.OpLayout, err)
		audit.Log(ctx, audit.ActionBroadcastLayout, cur.BindingSessionID, cur.ID, err, "layout update failed")
		return nil, err
	}

	c.mu.Lock()
	applied := c.active != nil && c.active.ID == cur.ID
	if applied {
		c.active.StreamCount = streams
		c.active.Layout = cfg
	}
	c.mu.Unlock()

	if !applied {
		l.Debug().Msg("ignoring layout response for a broadcast that is no longer active")
	} else {
		l.Info().Int(pkglog.FieldStreams, streams).Str("layout", string(cfg.Kind)).Msg("broadcast layout updated")
		audit.LogWithDetail(ctx, audit.ActionBroadcastLayout, cur.BindingSessionID, cur.ID, string(cfg.Kind), "layout updated")
	}

	return &domain.LayoutUpdate{ID: cur.ID, Streams: streams, Layout: cfg}, nil
}

func (c *broadcastCoordinator) End(ctx context.Context) (*domain.EndBroadcastResponse, error) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	cur := c.snapshot()
	if cur == nil {
		return nil, domain.ErrNoActiveBroadcast
	}

	l := pkglog.ForBroadcast(ctx, cur.BindingSessionID, cur.ID)

	callCtx, cancel := c.withTimeout(ctx)
	_, stopErr := c.backend.StopBroadcast(callCtx, cur.ID)
	cancel()

	c.mu.Lock()
	if c.active != nil && c.active.ID == cur.ID {
		c.active = nil
	}
	c.mu.Unlock()

	reason := kafka.ReasonExplicit
	if stopErr != nil {
		stopErr = asBackendError(backend.OpStop, stopErr)
		reason = kafka.ReasonBackendError
		l.Warn().Err(stopErr).Msg("backend stop failed, broadcast slot cleared anyway")
	} else {
		l.Info().Msg("broadcast ended")
	}
	audit.Log(ctx, audit.ActionBroadcastEnd, cur.BindingSessionID, cur.ID, stopErr, "broadcast ended")
	c.notify(domain.EndedSession(cur.BindingSessionID, cur.ID))

	if c.producer != nil {
		if err := c.producer.ProduceBroadcastStopped(ctx, cur.BindingSessionID, cur.ID, reason); err != nil {
			l.Warn().Err(err).Msg("failed to produce broadcast stopped event")
		}
	}

	return &domain.EndBroadcastResponse{ID: cur.ID, Status: domain.BroadcastStatusEnded}, stopErr
}

func (c *broadcastCoordinator) Current() domain.BroadcastSession {
	if s := c.snapshot(); s != nil {
		return *s
	}
	return domain.WaitingSession()
}

func (c *broadcastCoordinator) Watch(fn func(domain.BroadcastSession)) func() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = fn
	return func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

func (c *broadcastCoordinator) notify(s domain.BroadcastSession) {
	c.watchMu.Lock()
	fns := make([]func(domain.BroadcastSession), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	for _, fn := range fns {
		fn(*s.Clone())
	}
}

// snapshot returns a copy of the active session, or nil.
func (c *broadcastCoordinator) snapshot() *domain.BroadcastSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.Clone()
}

func (c *broadcastCoordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *broadcastCoordinator) stopOrphan(ctx context.Context, broadcastID string) {
	callCtx, cancel := c.withTimeout(context.WithoutCancel(ctx))
	defer cancel()
	if _, err := c.backend.StopBroadcast(callCtx, broadcastID); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldBroadcastID, broadcastID).Msg("failed to stop orphaned broadcast")
	}
}

func asBackendError(op string, err error) error {
	var be *domain.BackendRequestError
	if errors.As(err, &be) {
		return err
	}
	return &domain.BackendRequestError{Op: op, Err: err}
}
