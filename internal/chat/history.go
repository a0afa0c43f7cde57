// Package chat keeps the chat log of a participant and persists the
// viewer's copy across reconnects.
package chat

import (
	"sync"

	"github.com/huijing/sgtechonline/internal/domain"
)

// History is an append-only chat log. Messages with an ID already in the
// log are dropped, so at-least-once delivery appends each message once.
type History struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	seen     map[string]struct{}
}

func NewHistory() *History {
	return &History{seen: make(map[string]struct{})}
}

// Append adds msg and reports whether it was new.
func (h *History) Append(msg domain.ChatMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.ID != "" {
		if _, ok := h.seen[msg.ID]; ok {
			return false
		}
		h.seen[msg.ID] = struct{}{}
	}
	h.messages = append(h.messages, msg)
	return true
}

// Messages returns a copy of the log in append order.
func (h *History) Messages() []domain.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Reset empties the log.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.seen = make(map[string]struct{})
}
