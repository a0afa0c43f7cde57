package role

import (
	"context"
	"errors"
	"testing"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/signal"
	"github.com/huijing/sgtechonline/internal/transport"
	"github.com/oklog/ulid/v2"
)

func TestNewController_Validation(t *testing.T) {
	h := newHarness(t)
	sess, err := h.hub.Connect(context.Background(), testBinding, transport.NewConnection("x"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close(context.Background())

	if _, err := NewController(Config{Role: "admin", Session: sess}); err == nil {
		t.Error("NewController() accepted an unknown role")
	}
	if _, err := NewController(Config{Role: domain.RoleGuest}); err == nil {
		t.Error("NewController() accepted a nil session")
	}
	if _, err := NewController(Config{Role: domain.RoleHost, Session: sess}); err == nil {
		t.Error("NewController() accepted a host without coordinator")
	}
}

func TestChat_ClassifiesSelfAndOthers(t *testing.T) {
	h := newHarness(t)
	host := h.join(t, domain.RoleHost, "Host", joinOptions{coord: &fakeCoordinator{}})
	guest := h.join(t, domain.RoleGuest, "Jane", joinOptions{})

	if err := awaitErr(t, guest.ctrl.SendChat("  hello  ")); err != nil {
		t.Fatalf("SendChat() error = %v", err)
	}

	waitFor(t, "guest chat", func() bool { return len(guest.view.chatLog()) == 1 })
	waitFor(t, "host chat", func() bool { return len(host.view.chatLog()) == 1 })

	mine := guest.view.chatLog()[0]
	if mine.Visibility != domain.VisibilitySelf || mine.AuthorName != "Jane" || mine.Content != "hello" {
		t.Errorf("guest message = %+v", mine)
	}
	theirs := host.view.chatLog()[0]
	if theirs.Visibility != domain.VisibilityOthers || theirs.ID != mine.ID {
		t.Errorf("host message = %+v", theirs)
	}
	if theirs.SentAt.IsZero() {
		t.Error("SentAt not set")
	}
}

func TestChat_DuplicateDeliveryAppendedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	guest := h.join(t, domain.RoleGuest, "Jane", joinOptions{})

	spy, err := h.hub.Connect(ctx, testBinding, transport.NewConnection("spy"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer spy.Close(ctx)

	dup := transport.Signal{ID: ulid.Make().String(), Type: signal.TypeMsg, Data: "spy: once"}
	for i := 0; i < 2; i++ {
		if err := spy.Signal(ctx, dup); err != nil {
			t.Fatal(err)
		}
	}
	if err := spy.Signal(ctx, transport.Signal{Type: signal.TypeMsg, Data: "spy: marker"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "marker", func() bool { return len(guest.view.chatLog()) >= 2 })
	log := guest.view.chatLog()
	if len(log) != 2 || log[0].Content != "once" || log[1].Content != "marker" {
		t.Errorf("chat log = %+v", log)
	}
}

func TestChat_RejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	guest := h.join(t, domain.RoleGuest, "Jane", joinOptions{})

	err := awaitErr(t, guest.ctrl.SendChat("   "))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("SendChat() error = %v, want ValidationError", err)
	}
}

func TestGuest_SubscribesEveryOtherStream(t *testing.T) {
	h := newHarness(t)
	guest := h.join(t, domain.RoleGuest, guestName(1), joinOptions{})
	h.join(t, domain.RoleHost, "Host", joinOptions{coord: &fakeCoordinator{}})
	other := h.join(t, domain.RoleGuest, guestName(2), joinOptions{})

	waitFor(t, "guest subscriptions", func() bool { return guest.sink.count() == 2 })
	if guest.view.roster() != 3 {
		t.Errorf("guest roster = %d, want 3", guest.view.roster())
	}
	if err := awaitErr(t, guest.ctrl.StartBroadcast(nil)); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("guest StartBroadcast() error = %v, want ErrNotPermitted", err)
	}

	other.leave()
	waitFor(t, "roster shrink", func() bool { return guest.view.roster() == 2 })
	if guest.sink.count() != 1 {
		t.Errorf("guest subscriptions = %d, want 1", guest.sink.count())
	}
}

// failingSession publishes fine but cannot signal.
type failingSession struct {
	conn   transport.Connection
	events chan transport.Event
}

func (s *failingSession) Connection() transport.Connection { return s.conn }
func (s *failingSession) Publish(ctx context.Context, r domain.Role) (transport.Stream, error) {
	return transport.Stream{ID: "own", Role: r, Connection: s.conn}, nil
}
func (s *failingSession) Subscribe(context.Context, transport.Stream) error { return nil }
func (s *failingSession) Unsubscribe(context.Context, string) error        { return nil }
func (s *failingSession) Signal(context.Context, transport.Signal) error {
	return errors.New("transport unavailable")
}
func (s *failingSession) Events() <-chan transport.Event { return s.events }
func (s *failingSession) Close(context.Context) error   { return nil }

func TestChat_DeliveryFailureReturnedToAction(t *testing.T) {
	sess := &failingSession{conn: transport.NewConnection("Jane"), events: make(chan transport.Event)}
	ctrl, err := NewController(Config{Role: domain.RoleGuest, BindingSessionID: testBinding, Session: sess})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	err = awaitErr(t, ctrl.SendChat("hello"))
	var derr *domain.SignalDeliveryError
	if !errors.As(err, &derr) || derr.Type != signal.TypeMsg {
		t.Errorf("SendChat() error = %v, want SignalDeliveryError", err)
	}
}

func TestController_StoppedRejectsActions(t *testing.T) {
	h := newHarness(t)
	guest := h.join(t, domain.RoleGuest, "Jane", joinOptions{})
	guest.leave()

	if err := awaitErr(t, guest.ctrl.SendChat("late")); !errors.Is(err, ErrStopped) {
		t.Errorf("SendChat() after stop error = %v, want ErrStopped", err)
	}
}

func TestController_EndsWhenSessionCloses(t *testing.T) {
	h := newHarness(t)
	guest := h.join(t, domain.RoleGuest, "Jane", joinOptions{})
	waitFor(t, "joined", func() bool { return guest.view.roster() == 1 })

	if err := guest.sess.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-guest.ctrl.Done():
	case <-awaitTimeout():
		t.Fatal("controller still running after session close")
	}
}
