package pubsub

import (
	"context"
	"errors"
	"path"
	"sync"

	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

const memoryBufferSize = 1024

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("pubsub closed")

type memorySubscription struct {
	key     string
	pattern bool
	ch      chan *Event
	stop    chan struct{}
}

// MemoryPubSub implements PubSub inside a single process. It is the default
// driver for single-node deployments and for tests.
type MemoryPubSub struct {
	subscriptions map[string]*memorySubscription
	mu            sync.RWMutex
	closed        bool
}

// NewMemoryPubSub creates an in-process bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		subscriptions: make(map[string]*memorySubscription),
	}
}

// Publish delivers the event to every subscription whose channel or pattern
// matches. Subscribers that fall behind lose the event.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	for _, sub := range m.subscriptions {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			l := pkglog.Ctx(ctx)
			l.Warn().Str("channel", channel).Str("event_type", event.Type).Msg("memory pubsub subscriber full, event dropped")
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel, replacing any previous
// subscription for it.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a glob pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if existing, ok := m.subscriptions[key]; ok {
		m.removeLocked(existing)
	}

	sub := &memorySubscription{
		key:     key,
		pattern: pattern,
		ch:      make(chan *Event, memoryBufferSize),
		stop:    make(chan struct{}),
	}
	m.subscriptions[key] = sub

	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if current, ok := m.subscriptions[key]; ok && current == sub {
				m.removeLocked(sub)
			}
			m.mu.Unlock()
		case <-sub.stop:
		}
	}()

	return sub.ch, nil
}

// Unsubscribe removes the subscription for a channel or pattern.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subscriptions[channel]; ok {
		m.removeLocked(sub)
	}
	return nil
}

// Close removes every subscription. Later publishes fail with ErrClosed.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscriptions {
		m.removeLocked(sub)
	}
	m.closed = true
	return nil
}

// removeLocked must be called with m.mu held for writing.
func (m *MemoryPubSub) removeLocked(sub *memorySubscription) {
	delete(m.subscriptions, sub.key)
	close(sub.stop)
	close(sub.ch)
}

func (s *memorySubscription) matches(channel string) bool {
	if !s.pattern {
		return s.key == channel
	}
	ok, _ := path.Match(s.key, channel)
	return ok
}
