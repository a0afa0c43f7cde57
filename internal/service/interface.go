package service

import (
	"context"

	"github.com/huijing/sgtechonline/internal/domain"
)

// BroadcastCoordinator owns the single active broadcast of the process.
type BroadcastCoordinator interface {
	// Start begins a broadcast for bindingSessionID, or returns the active
	// one unchanged when it is already live for the same binding.
	Start(ctx context.Context, bindingSessionID string, streams int, rtmp *domain.RTMPTarget) (*domain.BroadcastSession, error)

	// UpdateLayout recomputes the layout for streams and pushes it.
	UpdateLayout(ctx context.Context, streams int) (*domain.LayoutUpdate, error)

	// End stops the active broadcast. The slot is cleared even when the
	// backend call fails; that failure is still returned.
	End(ctx context.Context) (*domain.EndBroadcastResponse, error)

	// Current returns a copy of the slot.
	Current() domain.BroadcastSession

	// Watch registers fn for slot changes: the started session, and on end
	// a session with status ended carrying the stopped id. fn runs on the
	// goroutine that changed the slot and must not block. The returned func
	// unregisters it.
	Watch(fn func(domain.BroadcastSession)) (cancel func())
}
