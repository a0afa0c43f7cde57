package role

import "github.com/huijing/sgtechonline/internal/domain"

// View receives everything a participant's client should render. Calls
// come from the controller goroutine in event order.
type View interface {
	// StatusChanged reports a broadcast status change. broadcast is set
	// for the host once the backend has acknowledged the start.
	StatusChanged(status domain.BroadcastStatus, broadcast *domain.BroadcastSession)
	// RosterChanged reports the number of known streams. Clients wrap
	// their tile grid above layout.Threshold.
	RosterChanged(count int)
	ChatReceived(msg domain.ChatMessage)
	ChatReplayed(msgs []domain.ChatMessage)
	ChatInputEnabled(enabled bool)
	ChatCleared()
}

// NopView discards every update.
type NopView struct{}

func (NopView) StatusChanged(domain.BroadcastStatus, *domain.BroadcastSession) {}
func (NopView) RosterChanged(int)                                             {}
func (NopView) ChatReceived(domain.ChatMessage)                               {}
func (NopView) ChatReplayed([]domain.ChatMessage)                             {}
func (NopView) ChatInputEnabled(bool)                                         {}
func (NopView) ChatCleared()                                                  {}
