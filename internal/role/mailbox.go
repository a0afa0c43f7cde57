package role

import "sync"

// mailbox is an unbounded FIFO. put never blocks, so backend goroutines
// and the transport forwarder cannot stall behind a busy actor.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// put enqueues m and reports false once the mailbox is closed.
func (b *mailbox) put(m message) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.items = append(b.items, m)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

func (b *mailbox) pop() (message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil, false
	}
	m := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	return m, true
}

// close rejects later puts and returns what was still queued.
func (b *mailbox) close() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	rest := b.items
	b.items = nil
	return rest
}

// shutdown rejects later puts but keeps queued items for draining.
func (b *mailbox) shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// drained reports whether the mailbox is shut down and empty.
func (b *mailbox) drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed && len(b.items) == 0
}
