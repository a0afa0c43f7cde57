package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
)

// Wire layout types understood by the backend.
const (
	WireLayoutCustom  = "custom"
	WireLayoutBestFit = "bestFit"
)

// WireLayout is the layout block of start and layout requests.
type WireLayout struct {
	Type       string `json:"type"`
	Stylesheet string `json:"stylesheet,omitempty"`
}

// ToWire maps a layout choice to the backend representation. The horizontal
// arrangement is expressed as a custom stylesheet.
func ToWire(cfg layout.Config) WireLayout {
	if cfg.Kind == layout.KindBestFit {
		return WireLayout{Type: WireLayoutBestFit}
	}
	return WireLayout{Type: WireLayoutCustom, Stylesheet: cfg.Stylesheet}
}

// RTMPOutput is an external ingest target.
type RTMPOutput struct {
	ServerURL  string `json:"serverUrl"`
	StreamName string `json:"streamName"`
}

// Outputs asks the backend for HLS plus an RTMP push.
type Outputs struct {
	HLS  struct{}   `json:"hls"`
	RTMP RTMPOutput `json:"rtmp"`
}

// StartRequest is the body of a start call.
type StartRequest struct {
	SessionID string     `json:"sessionId"`
	Layout    WireLayout `json:"layout"`
	Outputs   *Outputs   `json:"outputs,omitempty"`
}

// NewStartRequest builds a start body. The outputs block is only present
// when both RTMP fields are set.
func NewStartRequest(sessionID string, cfg layout.Config, rtmp *domain.RTMPTarget) *StartRequest {
	req := &StartRequest{
		SessionID: sessionID,
		Layout:    ToWire(cfg),
	}
	if rtmp.Enabled() {
		req.Outputs = &Outputs{
			RTMP: RTMPOutput{
				ServerURL:  strings.TrimSpace(rtmp.ServerURL),
				StreamName: strings.TrimSpace(rtmp.StreamName),
			},
		}
	}
	return req
}

// BroadcastURLs lists where the composed broadcast can be consumed.
type BroadcastURLs struct {
	HLS  string          `json:"hls"`
	RTMP json.RawMessage `json:"rtmp,omitempty"`
}

// StartResponse is the backend's view of a new broadcast.
type StartResponse struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"sessionId"`
	PartnerID     json.Number   `json:"partnerId"`
	CreatedAt     int64         `json:"createdAt"`
	Status        string        `json:"status"`
	BroadcastURLs BroadcastURLs `json:"broadcastUrls"`
}

// RTMPEnabled reports whether the backend echoed any RTMP output.
func (r *StartResponse) RTMPEnabled() bool {
	raw := bytes.TrimSpace(r.BroadcastURLs.RTMP)
	switch string(raw) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

// StopResponse is the backend's view of a stopped broadcast.
type StopResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
