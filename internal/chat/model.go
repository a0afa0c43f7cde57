package chat

import (
	"time"

	"github.com/huijing/sgtechonline/internal/domain"
)

// ChatMessageModel is the GORM model for the chat_messages table.
type ChatMessageModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	HistoryKey string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_chat_history_message"`
	MessageID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_chat_history_message"`
	Author     string    `gorm:"type:varchar(100)"`
	Content    string    `gorm:"type:text"`
	Visibility string    `gorm:"type:varchar(10);not null"`
	SentAt     time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ChatMessageModel.
func (ChatMessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts ChatMessageModel to a domain ChatMessage.
func (m *ChatMessageModel) ToDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:         m.MessageID,
		AuthorName: m.Author,
		Content:    m.Content,
		Visibility: domain.Visibility(m.Visibility),
		SentAt:     m.SentAt,
	}
}

// ChatMessageToModel converts a domain ChatMessage to ChatMessageModel.
func ChatMessageToModel(key string, msg domain.ChatMessage) *ChatMessageModel {
	return &ChatMessageModel{
		HistoryKey: key,
		MessageID:  msg.ID,
		Author:     msg.AuthorName,
		Content:    msg.Content,
		Visibility: string(msg.Visibility),
		SentAt:     msg.SentAt,
	}
}
