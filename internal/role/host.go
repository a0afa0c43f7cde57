package role

import (
	"context"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
	"github.com/huijing/sgtechonline/internal/service"
	"github.com/huijing/sgtechonline/internal/signal"
	"github.com/huijing/sgtechonline/internal/transport"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

// host drives the broadcast: waiting → active → ended. Besides its own
// actions it follows the coordinator slot, so a broadcast started or ended
// through the HTTP API reaches the room as well.
type host struct {
	c     *Controller
	coord service.BroadcastCoordinator

	status    domain.BroadcastStatus
	broadcast *domain.BroadcastSession
	pending   bool

	// layoutKind is the layout the backend last acknowledged. failedKind is
	// the last rejected request, not sent again until the roster returns
	// to layoutKind. At most one layout update is in flight.
	layoutKind     layout.Kind
	failedKind     layout.Kind
	layoutInFlight bool
}

func newHost(c *Controller, coord service.BroadcastCoordinator) *host {
	return &host{
		c:      c,
		coord:  coord,
		status: domain.BroadcastStatusWaiting,
	}
}

func (h *host) join(ctx context.Context) error {
	if err := h.c.publishSelf(ctx); err != nil {
		return err
	}

	h.c.unwatch = h.coord.Watch(func(s domain.BroadcastSession) {
		h.c.complete(slotChanged{session: s})
	})
	if cur := h.coord.Current(); cur.IsActive() && cur.BindingSessionID == h.c.cfg.BindingSessionID {
		h.adopt(ctx, cur)
		return nil
	}
	h.c.cfg.View.StatusChanged(h.status, nil)
	return nil
}

func (h *host) streamAdded(ctx context.Context, st transport.Stream) {
	h.c.subscribe(ctx, st)
	h.reconcileLayout(ctx)
}

func (h *host) streamRemoved(ctx context.Context, st transport.Stream) {
	h.reconcileLayout(ctx)
}

// broadcastSignal answers status queries to the asking connection only.
func (h *host) broadcastSignal(ctx context.Context, sig transport.Signal) {
	if sig.Data != signal.StatusQuery || sig.From.ID == h.c.self.ID {
		return
	}
	from := sig.From
	_ = h.c.relay.Send(ctx, signal.TypeBroadcast, string(h.status), &from)
}

func (h *host) action(ctx context.Context, a actionMsg) {
	switch a.kind {
	case actionStart:
		h.start(ctx, a)
	case actionEnd:
		h.end(ctx, a)
	}
}

func (h *host) start(ctx context.Context, a actionMsg) {
	switch {
	case h.pending:
		a.reply <- ErrActionPending
		return
	case h.status != domain.BroadcastStatusWaiting:
		a.reply <- ErrInvalidState
		return
	}
	if err := a.rtmp.Validate(); err != nil {
		a.reply <- err
		return
	}

	h.pending = true

	binding, streams, rtmp := h.c.cfg.BindingSessionID, h.c.roster.Len(), a.rtmp
	go func() {
		b, err := h.coord.Start(h.c.bctx, binding, streams, rtmp)
		h.c.complete(startDone{broadcast: b, err: err, reply: a.reply})
	}()
}

func (h *host) end(ctx context.Context, a actionMsg) {
	switch {
	case h.pending:
		a.reply <- ErrActionPending
		return
	case h.status != domain.BroadcastStatusActive:
		a.reply <- ErrInvalidState
		return
	}

	h.pending = true
	go func() {
		_, err := h.coord.End(h.c.bctx)
		h.c.complete(endDone{err: err, reply: a.reply})
	}()
}

func (h *host) completion(ctx context.Context, m message) {
	l := pkglog.Ctx(ctx)

	switch m := m.(type) {
	case startDone:
		h.pending = false
		if m.err != nil {
			l.Error().Err(m.err).Msg("start broadcast failed")
			m.reply <- m.err
			return
		}
		// The slot notification may already have moved us to active.
		if h.status == domain.BroadcastStatusWaiting {
			h.adopt(ctx, *m.broadcast)
		}
		m.reply <- nil

	case endDone:
		// The coordinator slot is cleared whatever the backend said.
		h.pending = false
		if m.err != nil {
			l.Error().Err(m.err).Msg("end broadcast failed")
		}
		if h.status == domain.BroadcastStatusActive {
			h.finish(ctx)
		}
		m.reply <- m.err

	case slotChanged:
		s := m.session
		if s.BindingSessionID != h.c.cfg.BindingSessionID {
			return
		}
		switch {
		case s.Status == domain.BroadcastStatusActive && h.status == domain.BroadcastStatusWaiting:
			l.Info().Str(pkglog.FieldBroadcastID, s.ID).Msg("broadcast started elsewhere, following")
			h.adopt(ctx, s)
		case s.Status == domain.BroadcastStatusEnded && h.status == domain.BroadcastStatusActive && h.broadcast.ID == s.ID:
			if !h.pending {
				l.Info().Str(pkglog.FieldBroadcastID, s.ID).Msg("broadcast ended elsewhere")
			}
			h.finish(ctx)
		}

	case layoutDone:
		h.layoutInFlight = false
		if m.err != nil {
			h.failedKind = m.kind
			l.Warn().Err(m.err).Int(pkglog.FieldStreams, m.streams).Str("layout", string(m.kind)).Msg("layout update failed")
		} else if m.update != nil {
			h.layoutKind = m.update.Layout.Kind
			l.Info().
				Str(pkglog.FieldBroadcastID, m.update.ID).
				Int(pkglog.FieldStreams, m.update.Streams).
				Str("layout", string(m.update.Layout.Kind)).
				Msg("layout updated")
		}
		h.reconcileLayout(ctx)
	}
}

// adopt moves to active on b, seeding the layout from what the backend
// runs, which for a broadcast started elsewhere may not match our roster.
func (h *host) adopt(ctx context.Context, b domain.BroadcastSession) {
	h.status = domain.BroadcastStatusActive
	h.broadcast = b.Clone()
	h.layoutKind = b.Layout.Kind
	h.failedKind = ""
	h.c.cfg.View.StatusChanged(h.status, h.broadcast.Clone())
	h.c.announce(ctx, h.status)
	h.reconcileLayout(ctx)
}

func (h *host) finish(ctx context.Context) {
	h.status = domain.BroadcastStatusEnded
	h.broadcast = nil
	h.c.cfg.View.StatusChanged(h.status, nil)
	h.c.announce(ctx, h.status)
}

// reconcileLayout sends one layout update when the roster has crossed the
// threshold away from the acknowledged layout. Failed requests are not
// retried.
func (h *host) reconcileLayout(ctx context.Context) {
	if h.status != domain.BroadcastStatusActive || h.layoutInFlight {
		return
	}
	streams := h.c.roster.Len()
	want := layout.ForStreams(streams).Kind
	switch want {
	case h.layoutKind:
		h.failedKind = ""
		return
	case h.failedKind:
		return
	}

	h.layoutInFlight = true
	go func() {
		update, err := h.coord.UpdateLayout(h.c.bctx, streams)
		h.c.complete(layoutDone{streams: streams, kind: want, update: update, err: err})
	}()
}

func (h *host) canChat() error { return nil }
