package role

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/huijing/sgtechonline/internal/chat"
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
	"github.com/huijing/sgtechonline/internal/transport"
	"github.com/huijing/sgtechonline/pkg/pubsub"
)

const testBinding = "sess1"

type fakeCoordinator struct {
	mu        sync.Mutex
	starts    []int
	rtmps     []*domain.RTMPTarget
	layouts   []int
	ends      int
	startErr  error
	layoutErr error
	endErr    error
	startGate chan struct{}

	// existing is returned by Start as an already live broadcast.
	existing *domain.BroadcastSession
	current  *domain.BroadcastSession
	watchers map[int]func(domain.BroadcastSession)
	nextID   int
}

func (f *fakeCoordinator) Start(ctx context.Context, binding string, streams int, rtmp *domain.RTMPTarget) (*domain.BroadcastSession, error) {
	f.mu.Lock()
	f.starts = append(f.starts, streams)
	f.rtmps = append(f.rtmps, rtmp)
	gate, err, existing := f.startGate, f.startErr, f.existing
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing.Clone(), nil
	}

	b := &domain.BroadcastSession{
		ID:               "b-1",
		BindingSessionID: binding,
		Status:           domain.BroadcastStatusActive,
		StreamCount:      streams,
		Layout:           layout.ForStreams(streams),
		HLSURL:           "https://cdn.example.com/b-1.m3u8",
		CreatedAt:        1000,
		AvailableAt:      21000,
	}
	f.mu.Lock()
	f.current = b.Clone()
	f.mu.Unlock()
	f.notify(*b)
	return b, nil
}

func (f *fakeCoordinator) UpdateLayout(ctx context.Context, streams int) (*domain.LayoutUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts = append(f.layouts, streams)
	if f.layoutErr != nil {
		return nil, f.layoutErr
	}
	return &domain.LayoutUpdate{ID: "b-1", Streams: streams, Layout: layout.ForStreams(streams)}, nil
}

func (f *fakeCoordinator) End(ctx context.Context) (*domain.EndBroadcastResponse, error) {
	f.mu.Lock()
	f.ends++
	cur, err := f.current, f.endErr
	f.current = nil
	f.mu.Unlock()

	if cur != nil {
		f.notify(domain.EndedSession(cur.BindingSessionID, cur.ID))
	}
	return &domain.EndBroadcastResponse{ID: "b-1", Status: domain.BroadcastStatusEnded}, err
}

func (f *fakeCoordinator) Current() domain.BroadcastSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return domain.WaitingSession()
	}
	return *f.current.Clone()
}

func (f *fakeCoordinator) Watch(fn func(domain.BroadcastSession)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchers == nil {
		f.watchers = make(map[int]func(domain.BroadcastSession))
	}
	id := f.nextID
	f.nextID++
	f.watchers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}

func (f *fakeCoordinator) notify(s domain.BroadcastSession) {
	f.mu.Lock()
	fns := make([]func(domain.BroadcastSession), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (f *fakeCoordinator) startCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.starts...)
}

func (f *fakeCoordinator) layoutCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.layouts...)
}

func (f *fakeCoordinator) endCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ends
}

type recordingView struct {
	mu       sync.Mutex
	statuses []domain.BroadcastStatus
	session  *domain.BroadcastSession
	rosters  []int
	chats    []domain.ChatMessage
	replays  [][]domain.ChatMessage
	inputs   []bool
	cleared  int
}

func (v *recordingView) StatusChanged(s domain.BroadcastStatus, b *domain.BroadcastSession) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, s)
	if b != nil {
		v.session = b
	}
}

func (v *recordingView) RosterChanged(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rosters = append(v.rosters, n)
}

func (v *recordingView) ChatReceived(m domain.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chats = append(v.chats, m)
}

func (v *recordingView) ChatReplayed(ms []domain.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.replays = append(v.replays, ms)
}

func (v *recordingView) ChatInputEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inputs = append(v.inputs, enabled)
}

func (v *recordingView) ChatCleared() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cleared++
}

func (v *recordingView) lastStatus() domain.BroadcastStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return ""
	}
	return v.statuses[len(v.statuses)-1]
}

func (v *recordingView) statusHistory() []domain.BroadcastStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.BroadcastStatus(nil), v.statuses...)
}

func (v *recordingView) roster() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.rosters) == 0 {
		return 0
	}
	return v.rosters[len(v.rosters)-1]
}

func (v *recordingView) chatLog() []domain.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.ChatMessage(nil), v.chats...)
}

func (v *recordingView) replayed() [][]domain.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([][]domain.ChatMessage(nil), v.replays...)
}

func (v *recordingView) inputEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.inputs) > 0 && v.inputs[len(v.inputs)-1]
}

func (v *recordingView) clearedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cleared
}

type recordingSink struct {
	mu         sync.Mutex
	subscribed map[string]bool
	unsubs     []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{subscribed: make(map[string]bool)}
}

func (s *recordingSink) Publish(transport.Stream) {}

func (s *recordingSink) Subscribe(st transport.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[st.ID] = true
}

func (s *recordingSink) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, id)
	s.unsubs = append(s.unsubs, id)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribed)
}

func (s *recordingSink) unsubscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsubs)
}

type harness struct {
	hub *transport.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })
	return &harness{hub: transport.NewHub(ps)}
}

type participant struct {
	ctrl *Controller
	view *recordingView
	sink *recordingSink
	sess *transport.LocalSession
	once sync.Once
	stop context.CancelFunc
}

type joinOptions struct {
	coord *fakeCoordinator
	store chat.Store
	key   string
}

func (h *harness) join(t *testing.T, role domain.Role, name string, opts joinOptions) *participant {
	t.Helper()
	sink := newRecordingSink()
	view := &recordingView{}

	sess, err := h.hub.Connect(context.Background(), testBinding, transport.NewConnection(name), sink)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", name, err)
	}

	cfg := Config{
		Role:             role,
		BindingSessionID: testBinding,
		ParticipantKey:   opts.key,
		Session:          sess,
		Store:            opts.store,
		View:             view,
	}
	if opts.coord != nil {
		cfg.Coordinator = opts.coord
	}
	ctrl, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController(%s) error = %v", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()

	p := &participant{ctrl: ctrl, view: view, sink: sink, sess: sess, stop: cancel}
	t.Cleanup(p.leave)
	return p
}

// leave stops the controller and closes the transport session, which
// unpublishes the participant's stream.
func (p *participant) leave() {
	p.once.Do(func() {
		p.stop()
		<-p.ctrl.Done()
		_ = p.sess.Close(context.Background())
	})
}

func awaitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action result")
	}
	return nil
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func guestName(i int) string {
	return fmt.Sprintf("guest-%d", i)
}

func awaitTimeout() <-chan time.Time {
	return time.After(2 * time.Second)
}
