package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
	pkgjwt "github.com/huijing/sgtechonline/pkg/jwt"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*HTTPClient, *pkgjwt.ProjectSigner) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	signer, err := pkgjwt.NewProjectSigner("4567", "s3cret", time.Minute)
	if err != nil {
		t.Fatalf("NewProjectSigner: %v", err)
	}
	return NewHTTPClient(srv.URL, signer, 2*time.Second), signer
}

func TestStartBroadcast(t *testing.T) {
	var (
		mu      sync.Mutex
		gotBody map[string]interface{}
	)
	validator, _ := pkgjwt.NewProjectSigner("4567", "s3cret", time.Minute)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/project/4567/broadcast" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if _, err := validator.Validate(r.Header.Get("X-OPENTOK-AUTH")); err != nil {
			t.Errorf("auth header: %v", err)
		}
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		json.Unmarshal(data, &gotBody)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"b-1","partnerId":4567,"createdAt":1000,
			"broadcastUrls":{"hls":"https://cdn.example.com/b-1.m3u8","rtmp":[{"id":"x"}]}}`)
	})

	req := NewStartRequest("S1", layout.ForStreams(2), &domain.RTMPTarget{ServerURL: "rtmp://ingest.example.com/live", StreamName: "key"})
	resp, err := client.StartBroadcast(context.Background(), req)
	if err != nil {
		t.Fatalf("StartBroadcast: %v", err)
	}

	if resp.ID != "b-1" || resp.CreatedAt != 1000 || resp.PartnerID.String() != "4567" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.BroadcastURLs.HLS != "https://cdn.example.com/b-1.m3u8" || !resp.RTMPEnabled() {
		t.Fatalf("urls = %+v", resp.BroadcastURLs)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotBody["sessionId"] != "S1" {
		t.Fatalf("sessionId = %v", gotBody["sessionId"])
	}
	lay := gotBody["layout"].(map[string]interface{})
	if lay["type"] != "custom" || lay["stylesheet"] != layout.HorizontalStylesheet {
		t.Fatalf("layout = %v", lay)
	}
	outputs := gotBody["outputs"].(map[string]interface{})
	if _, ok := outputs["hls"]; !ok {
		t.Fatal("outputs.hls missing")
	}
	rtmp := outputs["rtmp"].(map[string]interface{})
	if rtmp["serverUrl"] != "rtmp://ingest.example.com/live" || rtmp["streamName"] != "key" {
		t.Fatalf("rtmp = %v", rtmp)
	}
}

func TestNewStartRequestOmitsOutputs(t *testing.T) {
	for _, target := range []*domain.RTMPTarget{nil, {}, {ServerURL: "rtmp://a/b"}, {StreamName: "k"}} {
		req := NewStartRequest("S1", layout.ForStreams(5), target)
		if req.Outputs != nil {
			t.Fatalf("outputs present for %+v", target)
		}
		data, _ := json.Marshal(req)
		var m map[string]interface{}
		json.Unmarshal(data, &m)
		if _, ok := m["outputs"]; ok {
			t.Fatalf("outputs serialized for %+v: %s", target, data)
		}
		if m["layout"].(map[string]interface{})["type"] != "bestFit" {
			t.Fatalf("layout = %s", data)
		}
	}
}

func TestRTMPEnabled(t *testing.T) {
	for raw, want := range map[string]bool{
		``:               false,
		`null`:           false,
		`""`:             false,
		`[]`:             true,
		`{"id":"x"}`:     true,
		`"rtmp://a/b/k"`: true,
	} {
		r := &StartResponse{BroadcastURLs: BroadcastURLs{RTMP: json.RawMessage(raw)}}
		if got := r.RTMPEnabled(); got != want {
			t.Errorf("RTMPEnabled(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestUpdateLayoutAndStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/v2/project/4567/broadcast/b-1/layout":
			var body WireLayout
			json.NewDecoder(r.Body).Decode(&body)
			if body.Type != "bestFit" || body.Stylesheet != "" {
				t.Errorf("layout body = %+v", body)
			}
		case "/v2/project/4567/broadcast/b-1/stop":
			io.WriteString(w, `{"id":"b-1","status":"stopped"}`)
		}
	})

	if err := client.UpdateLayout(context.Background(), "b-1", layout.ForStreams(4)); err != nil {
		t.Fatalf("UpdateLayout: %v", err)
	}
	resp, err := client.StopBroadcast(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("StopBroadcast: %v", err)
	}
	if resp.Status != "stopped" {
		t.Fatalf("stop resp = %+v", resp)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0] != "PUT /v2/project/4567/broadcast/b-1/layout" || calls[1] != "POST /v2/project/4567/broadcast/b-1/stop" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestBackendErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"session not found"}`, http.StatusNotFound)
	})

	_, err := client.StartBroadcast(context.Background(), NewStartRequest("S1", layout.ForStreams(1), nil))
	var be *domain.BackendRequestError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendRequestError", err)
	}
	if be.Op != OpStart || be.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %+v", be)
	}
}

func TestBackendTimeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.UpdateLayout(ctx, "b-1", layout.ForStreams(1))
	var be *domain.BackendRequestError
	if !errors.As(err, &be) || be.Op != OpLayout {
		t.Fatalf("err = %v, want layout BackendRequestError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
