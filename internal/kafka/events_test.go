package kafka

import (
	"encoding/json"
	"testing"

	"github.com/huijing/sgtechonline/internal/domain"
)

func TestStartedEventCarriesSession(t *testing.T) {
	ev := NewStartedEvent(&domain.BroadcastSession{
		ID:               "b-1",
		BindingSessionID: "S1",
		StreamCount:      2,
		HLSURL:           "https://cdn/b-1.m3u8",
		AvailableAt:      21000,
	})
	if ev.Type != EventBroadcastStarted || ev.SessionID != "S1" || ev.BroadcastID != "b-1" || ev.AvailableAt != 21000 {
		t.Fatalf("event = %+v", ev)
	}

	data, _ := json.Marshal(NewStoppedEvent("S1", "b-1", ReasonBackendError))
	var m map[string]interface{}
	json.Unmarshal(data, &m)
	if m["type"] != EventBroadcastStopped || m["reason"] != ReasonBackendError {
		t.Fatalf("stopped event = %s", data)
	}
	if _, ok := m["hls_url"]; ok {
		t.Fatalf("stopped event should omit hls_url: %s", data)
	}
}
