package role

import "errors"

var (
	ErrNotPermitted  = errors.New("action not permitted for this role")
	ErrInvalidState  = errors.New("action not allowed in the current broadcast state")
	ErrActionPending = errors.New("another broadcast action is still pending")
	ErrChatDisabled  = errors.New("chat is disabled until the broadcast is live")
	ErrStopped       = errors.New("participant controller stopped")
)
