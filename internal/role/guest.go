package role

import (
	"context"

	"github.com/huijing/sgtechonline/internal/transport"
)

// guest publishes and watches every other stream. Broadcast status does
// not concern it.
type guest struct {
	c *Controller
}

func newGuest(c *Controller) *guest {
	return &guest{c: c}
}

func (g *guest) join(ctx context.Context) error {
	return g.c.publishSelf(ctx)
}

func (g *guest) streamAdded(ctx context.Context, st transport.Stream) {
	g.c.subscribe(ctx, st)
}

func (g *guest) streamRemoved(context.Context, transport.Stream) {}

func (g *guest) broadcastSignal(context.Context, transport.Signal) {}

func (g *guest) action(ctx context.Context, a actionMsg) {
	a.reply <- ErrNotPermitted
}

func (g *guest) completion(context.Context, message) {}

func (g *guest) canChat() error { return nil }
