package transport

import "sync"

// eventQueue is an unbounded FIFO in front of an output channel, so the hub
// pump never blocks on a slow participant and never drops its events.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) close() {
	q.once.Do(func() { close(q.done) })
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}
