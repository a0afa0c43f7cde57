package role

import (
	"context"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/signal"
	"github.com/huijing/sgtechonline/internal/transport"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

// viewer watches the broadcast once the host reports it active.
type viewer struct {
	c      *Controller
	status domain.BroadcastStatus
	active bool
	// epoch invalidates history reads issued before the last status change.
	epoch int
}

func newViewer(c *Controller) *viewer {
	return &viewer{c: c, status: domain.BroadcastStatusWaiting}
}

// join asks whoever hosts for the current status.
func (v *viewer) join(ctx context.Context) error {
	v.c.cfg.View.StatusChanged(v.status, nil)
	v.c.cfg.View.ChatInputEnabled(false)
	_ = v.c.relay.Send(ctx, signal.TypeBroadcast, signal.StatusQuery, nil)
	return nil
}

func (v *viewer) streamAdded(ctx context.Context, st transport.Stream) {
	if v.active {
		v.c.subscribe(ctx, st)
	}
}

func (v *viewer) streamRemoved(context.Context, transport.Stream) {}

func (v *viewer) broadcastSignal(ctx context.Context, sig transport.Signal) {
	status, ok := domain.ParseBroadcastStatus(sig.Data)
	if !ok {
		return
	}

	switch status {
	case domain.BroadcastStatusActive:
		if v.active {
			return
		}
		v.active = true
		for _, st := range v.c.roster.Streams() {
			v.c.subscribe(ctx, st)
		}
		v.c.cfg.View.StatusChanged(status, nil)
		v.c.cfg.View.ChatInputEnabled(true)
		v.epoch++
		if v.c.persist != nil {
			v.c.persist.list(v.epoch)
		}

	case domain.BroadcastStatusEnded:
		if v.status == domain.BroadcastStatusEnded {
			return
		}
		v.active = false
		v.epoch++
		v.c.unsubscribeAll(ctx)
		v.c.cfg.View.StatusChanged(status, nil)
		v.c.cfg.View.ChatInputEnabled(false)
		if v.c.persist != nil {
			v.c.persist.destroy()
		}
		v.c.history.Reset()
		v.c.cfg.View.ChatCleared()

	case domain.BroadcastStatusWaiting:
		v.active = false
		if v.status != status {
			v.c.cfg.View.StatusChanged(status, nil)
		}
	}
	v.status = status
}

func (v *viewer) action(ctx context.Context, a actionMsg) {
	a.reply <- ErrNotPermitted
}

// completion replays persisted chat that is not already on screen.
func (v *viewer) completion(ctx context.Context, m message) {
	done, ok := m.(replayDone)
	if !ok || done.epoch != v.epoch || !v.active {
		return
	}
	if done.err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(done.err).Msg("failed to load chat history")
		return
	}

	var replayed []domain.ChatMessage
	for _, msg := range done.msgs {
		if v.c.history.Append(msg) {
			replayed = append(replayed, msg)
		}
	}
	if len(replayed) > 0 {
		v.c.cfg.View.ChatReplayed(replayed)
	}
}

func (v *viewer) canChat() error {
	if !v.active {
		return ErrChatDisabled
	}
	return nil
}
