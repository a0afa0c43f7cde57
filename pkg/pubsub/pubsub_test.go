package pubsub

import (
	"context"
	"testing"
	"time"
)

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey(ParticipantsChannel("S1"))
	if err != nil {
		t.Fatalf("channelToTopicAndKey: %v", err)
	}
	if topic != "signal-to-participants" || key != "S1" {
		t.Fatalf("got topic=%q key=%q", topic, key)
	}

	if _, _, err := channelToTopicAndKey("signal:room:S1:to_media"); err == nil {
		t.Fatal("expected error for non-session channel")
	}

	topic, err = patternToTopic(PatternSignalToParticipants)
	if err != nil || topic != "signal-to-participants" {
		t.Fatalf("patternToTopic = %q, %v", topic, err)
	}
}

func TestConsumerGroupIDIsPerInstance(t *testing.T) {
	k := &KafkaPubSub{config: KafkaConfig{GroupID: "spotlight", InstanceID: "node-1"}}
	got := k.consumerGroupID(ParticipantsChannel("S1"), "S1")
	want := "spotlight-node-1-signal-session-S1-to_participants"
	if got != want {
		t.Fatalf("consumerGroupID = %q, want %q", got, want)
	}
}

func TestMemoryPubSubDelivers(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := ps.Subscribe(ctx, ParticipantsChannel("S1"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	all, err := ps.SubscribePattern(ctx, PatternSignalToParticipants)
	if err != nil {
		t.Fatalf("SubscribePattern: %v", err)
	}

	ev, err := NewEvent(EventSignal, "S1", SignalPayload{ID: "1", Type: "msg", Data: "alice: hi"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := ps.Publish(ctx, ParticipantsChannel("S1"), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	other, _ := NewEvent(EventSignal, "S2", SignalPayload{ID: "2"})
	if err := ps.Publish(ctx, ParticipantsChannel("S2"), other); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := recv(t, ch)
	var payload SignalPayload
	if err := got.UnmarshalPayload(&payload); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if payload.Data != "alice: hi" {
		t.Fatalf("payload.Data = %q", payload.Data)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for other session: %+v", ev)
	default:
	}

	if recv(t, all).SessionID != "S1" || recv(t, all).SessionID != "S2" {
		t.Fatal("pattern subscription should see both sessions in order")
	}
}

func TestMemoryPubSubClosesOnCancelAndUnsubscribe(t *testing.T) {
	ps := NewMemoryPubSub()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := ps.Subscribe(ctx, ParticipantsChannel("S1"))
	cancel()
	waitClosed(t, ch)

	ch2, _ := ps.Subscribe(context.Background(), ParticipantsChannel("S1"))
	if err := ps.Unsubscribe(context.Background(), ParticipantsChannel("S1")); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	waitClosed(t, ch2)

	ps.Close()
	ev, _ := NewEvent(EventSignal, "S1", SignalPayload{})
	if err := ps.Publish(context.Background(), ParticipantsChannel("S1"), ev); err != ErrClosed {
		t.Fatalf("Publish after Close = %v, want ErrClosed", err)
	}
}

func recv(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func waitClosed(t *testing.T, ch <-chan *Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
}
