package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveBroadcast   = errors.New("no active broadcast session found")
	ErrBroadcastInProgress = errors.New("another broadcast session is already active")
)

// ValidationError reports malformed input. No backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BackendRequestError wraps a failed call to the broadcast backend:
// transport failure, non-2xx status or timeout.
type BackendRequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *BackendRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendRequestError) Unwrap() error { return e.Err }

// SignalDeliveryError reports that a signal could not be handed to the transport.
type SignalDeliveryError struct {
	Type string
	Err  error
}

func (e *SignalDeliveryError) Error() string {
	return fmt.Sprintf("deliver %q signal: %v", e.Type, e.Err)
}

func (e *SignalDeliveryError) Unwrap() error { return e.Err }
