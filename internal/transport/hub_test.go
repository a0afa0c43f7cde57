package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/pkg/pubsub"
)

type recordingSink struct {
	mu           sync.Mutex
	published    []Stream
	subscribed   []Stream
	unsubscribed []string
}

func (s *recordingSink) Publish(st Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, st)
}

func (s *recordingSink) Subscribe(st Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, st)
}

func (s *recordingSink) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = append(s.unsubscribed, id)
}

func recv(t *testing.T, s *LocalSession) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func connect(t *testing.T, h *Hub, binding, name string) *LocalSession {
	t.Helper()
	s, err := h.Connect(context.Background(), binding, NewConnection(name), nil)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", name, err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConnectionDisplayName(t *testing.T) {
	conn := NewConnection("Jane Doe")
	if conn.ID == "" {
		t.Fatal("connection id is empty")
	}
	if got := conn.DisplayName(); got != "Jane Doe" {
		t.Errorf("DisplayName() = %q, want %q", got, "Jane Doe")
	}
	if got := (Connection{Data: "username=plain"}).DisplayName(); got != "plain" {
		t.Errorf("DisplayName() = %q, want %q", got, "plain")
	}
}

func TestHub_ConnectRequiresBinding(t *testing.T) {
	h := NewHub(pubsub.NewMemoryPubSub())
	_, err := h.Connect(context.Background(), "", NewConnection("a"), nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Connect() error = %v, want ValidationError", err)
	}
}

func TestHub_StreamEventsSkipOwner(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())
	sink := &recordingSink{}

	host, err := h.Connect(ctx, "s1", NewConnection("host"), sink)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer host.Close(ctx)
	viewer := connect(t, h, "s1", "viewer")

	st, err := host.Publish(ctx, domain.RoleHost)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if st.Name != "host" || st.Role != domain.RoleHost {
		t.Errorf("Publish() = %+v", st)
	}
	if len(sink.published) != 1 || sink.published[0].ID != st.ID {
		t.Errorf("sink.published = %+v", sink.published)
	}

	ev := recv(t, viewer)
	if ev.Type != EventStreamCreated || ev.Stream.ID != st.ID {
		t.Fatalf("viewer event = %+v, want streamCreated %s", ev, st.ID)
	}
	if ev.Stream.Connection.ID != host.Connection().ID {
		t.Errorf("stream connection = %s, want %s", ev.Stream.Connection.ID, host.Connection().ID)
	}

	// The host's first event is its own signal, not its own stream.
	if err := host.Signal(ctx, Signal{Type: "msg", Data: "hi"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	ev = recv(t, host)
	if ev.Type != EventSignal || ev.Signal.Data != "hi" {
		t.Fatalf("host event = %+v, want own signal", ev)
	}
	if ev.Signal.From.ID != host.Connection().ID || ev.Signal.ID == "" {
		t.Errorf("signal = %+v", ev.Signal)
	}
}

func TestHub_LateJoinerReplay(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())

	host := connect(t, h, "s1", "host")
	first := connect(t, h, "s1", "first")

	st, err := host.Publish(ctx, domain.RoleHost)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	recv(t, first)

	late := connect(t, h, "s1", "late")
	ev := recv(t, late)
	if ev.Type != EventStreamCreated || ev.Stream.ID != st.ID {
		t.Fatalf("late event = %+v, want replayed stream %s", ev, st.ID)
	}
}

func TestHub_UnicastSignal(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())

	a := connect(t, h, "s1", "a")
	b := connect(t, h, "s1", "b")
	c := connect(t, h, "s1", "c")

	if err := a.Signal(ctx, Signal{Type: "broadcast", Data: "direct", To: b.Connection().ID}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if err := a.Signal(ctx, Signal{Type: "broadcast", Data: "all"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}

	if ev := recv(t, b); ev.Signal.Data != "direct" {
		t.Errorf("b first signal = %q, want direct", ev.Signal.Data)
	}
	if ev := recv(t, b); ev.Signal.Data != "all" {
		t.Errorf("b second signal = %q, want all", ev.Signal.Data)
	}
	if ev := recv(t, c); ev.Signal.Data != "all" {
		t.Errorf("c first signal = %q, want all", ev.Signal.Data)
	}
	if ev := recv(t, a); ev.Signal.Data != "all" {
		t.Errorf("a first signal = %q, want all", ev.Signal.Data)
	}
}

func TestHub_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())

	a := connect(t, h, "s1", "a")
	other := connect(t, h, "s2", "other")

	if err := a.Signal(ctx, Signal{Type: "msg", Data: "s1 only"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if err := other.Signal(ctx, Signal{Type: "msg", Data: "s2 only"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if ev := recv(t, other); ev.Signal.Data != "s2 only" {
		t.Errorf("other received %q", ev.Signal.Data)
	}
}

func TestHub_CloseDestroysStreams(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())

	host, err := h.Connect(ctx, "s1", NewConnection("host"), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	viewer := connect(t, h, "s1", "viewer")

	st, err := host.Publish(ctx, domain.RoleHost)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	recv(t, viewer)

	if err := host.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	ev := recv(t, viewer)
	if ev.Type != EventStreamDestroyed || ev.Stream.ID != st.ID {
		t.Fatalf("viewer event = %+v, want streamDestroyed %s", ev, st.ID)
	}

	select {
	case _, ok := <-host.Events():
		if ok {
			t.Error("host events still open after Close")
		}
	case <-time.After(2 * time.Second):
		t.Error("host events not closed")
	}

	if _, err := host.Publish(ctx, domain.RoleHost); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrSessionClosed", err)
	}
	if err := host.Signal(ctx, Signal{Type: "msg"}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Signal() after Close error = %v, want ErrSessionClosed", err)
	}
	if err := host.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// A fresh joiner no longer sees the destroyed stream.
	late := connect(t, h, "s1", "late")
	if err := viewer.Signal(ctx, Signal{Type: "msg", Data: "marker"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if ev := recv(t, late); ev.Type != EventSignal {
		t.Errorf("late first event = %+v, want signal", ev)
	}
}

func TestHub_LastLeaveUnsubscribes(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())

	a, err := h.Connect(ctx, "s1", NewConnection("a"), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h.mu.Lock()
	n := len(h.groups)
	h.mu.Unlock()
	if n != 0 {
		t.Fatalf("groups = %d, want 0", n)
	}

	b := connect(t, h, "s1", "b")
	if err := b.Signal(ctx, Signal{Type: "msg", Data: "again"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if ev := recv(t, b); ev.Signal.Data != "again" {
		t.Errorf("b received %q", ev.Signal.Data)
	}
}

func TestHub_SubscribeForwardsToSink(t *testing.T) {
	ctx := context.Background()
	h := NewHub(pubsub.NewMemoryPubSub())
	sink := &recordingSink{}

	s, err := h.Connect(ctx, "s1", NewConnection("v"), sink)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close(ctx)

	st := Stream{ID: "remote"}
	if err := s.Subscribe(ctx, st); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := s.Unsubscribe(ctx, st.ID); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.subscribed) != 1 || len(sink.unsubscribed) != 1 || sink.unsubscribed[0] != "remote" {
		t.Errorf("sink = %+v", sink)
	}
}

// gatedPubSub holds Subscribe for one channel until gate closes.
type gatedPubSub struct {
	pubsub.PubSub
	channel string
	gate    chan struct{}

	mu    sync.Mutex
	calls int
}

func (p *gatedPubSub) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	if channel == p.channel {
		p.mu.Lock()
		p.calls++
		p.mu.Unlock()
		<-p.gate
	}
	return p.PubSub.Subscribe(ctx, channel)
}

func (p *gatedPubSub) subscribeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestHub_SlowSubscribeDoesNotBlockOtherSessions(t *testing.T) {
	ctx := context.Background()
	ps := &gatedPubSub{
		PubSub:  pubsub.NewMemoryPubSub(),
		channel: pubsub.ParticipantsChannel("slow"),
		gate:    make(chan struct{}),
	}
	h := NewHub(ps)

	type result struct {
		s   *LocalSession
		err error
	}
	slow := make(chan result, 2)
	for _, name := range []string{"a", "b"} {
		name := name
		go func() {
			s, err := h.Connect(ctx, "slow", NewConnection(name), nil)
			slow <- result{s, err}
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for ps.subscribeCalls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow subscribe never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fast := make(chan error, 1)
	go func() {
		s, err := h.Connect(ctx, "fast", NewConnection("c"), nil)
		if err == nil {
			_ = s.Close(ctx)
		}
		fast <- err
	}()
	select {
	case err := <-fast:
		if err != nil {
			t.Fatalf("Connect(fast) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect(fast) blocked behind the slow subscribe")
	}

	close(ps.gate)
	var sessions []*LocalSession
	for i := 0; i < 2; i++ {
		r := <-slow
		if r.err != nil {
			t.Fatalf("Connect(slow) error = %v", r.err)
		}
		sessions = append(sessions, r.s)
	}
	defer func() {
		for _, s := range sessions {
			_ = s.Close(ctx)
		}
	}()
	if n := ps.subscribeCalls(); n != 1 {
		t.Errorf("subscribe calls = %d, want 1", n)
	}

	if err := sessions[0].Signal(ctx, Signal{Type: "msg", Data: "hi"}); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if ev := recv(t, sessions[1]); ev.Signal.Data != "hi" {
		t.Errorf("received %q, want hi", ev.Signal.Data)
	}
}

func TestHub_ConnectAfterClose(t *testing.T) {
	h := NewHub(pubsub.NewMemoryPubSub())
	h.Close()

	if _, err := h.Connect(context.Background(), "s1", NewConnection("a"), nil); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Connect() error = %v, want ErrHubClosed", err)
	}
}
