package role

import (
	"context"
	"time"

	"github.com/huijing/sgtechonline/internal/chat"
	"github.com/huijing/sgtechonline/internal/domain"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

const storeTimeout = 5 * time.Second

type (
	persistAppend  struct{ msg domain.ChatMessage }
	persistList    struct{ epoch int }
	persistDestroy struct{}
)

// persister applies the viewer's history writes in order, off the actor
// goroutine. List results come back through the controller mailbox.
type persister struct {
	c     *Controller
	store chat.Store
	key   string
	ops   *mailbox
}

func newPersister(c *Controller, store chat.Store, key string) *persister {
	return &persister{
		c:     c,
		store: store,
		key:   key,
		ops:   newMailbox(),
	}
}

func (p *persister) append(msg domain.ChatMessage) { p.ops.put(persistAppend{msg: msg}) }
func (p *persister) list(epoch int)                { p.ops.put(persistList{epoch: epoch}) }
func (p *persister) destroy()                      { p.ops.put(persistDestroy{}) }

// close stops accepting work. Queued writes are still applied.
func (p *persister) close() {
	p.ops.shutdown()
}

func (p *persister) run(ctx context.Context) {
	for {
		op, ok := p.ops.pop()
		if !ok {
			if p.ops.drained() {
				return
			}
			<-p.ops.notify
			continue
		}
		p.apply(ctx, op)
	}
}

func (p *persister) apply(ctx context.Context, op message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	l := pkglog.Ctx(ctx)

	switch op := op.(type) {
	case persistAppend:
		if err := p.store.Append(ctx, p.key, op.msg); err != nil {
			l.Warn().Err(err).Str("history_key", p.key).Msg("failed to persist chat message")
		}
	case persistList:
		msgs, err := p.store.List(ctx, p.key)
		p.c.complete(replayDone{epoch: op.epoch, msgs: msgs, err: err})
	case persistDestroy:
		if err := p.store.Destroy(ctx, p.key); err != nil {
			l.Warn().Err(err).Str("history_key", p.key).Msg("failed to destroy chat history")
		}
	}
}
