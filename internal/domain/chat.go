package domain

import (
	"strings"
	"time"
)

// Visibility tells a client how to style a chat line.
type Visibility string

const (
	VisibilitySelf   Visibility = "self"
	VisibilityOthers Visibility = "others"
)

const chatSeparator = ": "

// ChatMessage is one line of the chat log. ID is the sender-assigned signal
// id, so a redelivered message keeps its identity.
type ChatMessage struct {
	ID         string     `json:"id"`
	AuthorName string     `json:"author"`
	Content    string     `json:"content"`
	Visibility Visibility `json:"visibility"`
	SentAt     time.Time  `json:"sentAt"`
}

// Line renders the message the way it travels in a msg signal.
func (m ChatMessage) Line() string {
	return FormatChat(m.AuthorName, m.Content)
}

// FormatChat builds the "<name>: <text>" signal payload.
func FormatChat(name, text string) string {
	return name + chatSeparator + text
}

// ParseChat splits a "<name>: <text>" payload. Payloads without a name
// keep the whole string as content.
func ParseChat(data string) (author, content string) {
	if i := strings.Index(data, chatSeparator); i >= 0 {
		return data[:i], data[i+len(chatSeparator):]
	}
	return "", data
}
