package kafka

import (
	"context"
	"time"

	"github.com/huijing/sgtechonline/internal/domain"
)

// BroadcastEvent represents a broadcast lifecycle change.
type BroadcastEvent struct {
	Type        string `json:"type"` // "broadcast_started" | "broadcast_stopped"
	SessionID   string `json:"session_id"`
	BroadcastID string `json:"broadcast_id"`
	Streams     int    `json:"streams,omitempty"`
	HLSURL      string `json:"hls_url,omitempty"`
	RTMP        bool   `json:"rtmp,omitempty"`
	AvailableAt int64  `json:"available_at,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Event types
const (
	EventBroadcastStarted = "broadcast_started"
	EventBroadcastStopped = "broadcast_stopped"
)

// Stop reasons
const (
	ReasonExplicit     = "explicit"
	ReasonBackendError = "backend_error"
)

// BroadcastEventProducer publishes lifecycle events. Implementations must
// tolerate being called from request goroutines.
type BroadcastEventProducer interface {
	ProduceBroadcastStarted(ctx context.Context, session *domain.BroadcastSession) error
	ProduceBroadcastStopped(ctx context.Context, sessionID, broadcastID, reason string) error
	Close() error
}

// NewStartedEvent builds the event for a session that just went live.
func NewStartedEvent(session *domain.BroadcastSession) *BroadcastEvent {
	return &BroadcastEvent{
		Type:        EventBroadcastStarted,
		SessionID:   session.BindingSessionID,
		BroadcastID: session.ID,
		Streams:     session.StreamCount,
		HLSURL:      session.HLSURL,
		RTMP:        session.RTMP,
		AvailableAt: session.AvailableAt,
		Timestamp:   time.Now().Unix(),
	}
}

// NewStoppedEvent builds the event for a cleared session.
func NewStoppedEvent(sessionID, broadcastID, reason string) *BroadcastEvent {
	return &BroadcastEvent{
		Type:        EventBroadcastStopped,
		SessionID:   sessionID,
		BroadcastID: broadcastID,
		Reason:      reason,
		Timestamp:   time.Now().Unix(),
	}
}
