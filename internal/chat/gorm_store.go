package chat

import (
	"context"
	"fmt"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/pkg/database"
	"github.com/huijing/sgtechonline/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps histories in a SQL table through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the chat_messages table and takes ownership of db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := database.AutoMigrate(db, &ChatMessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat_messages: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Append inserts msg. A message already stored under key is skipped.
func (s *GormStore) Append(ctx context.Context, key string, msg domain.ChatMessage) error {
	l := log.Ctx(ctx)

	model := ChatMessageToModel(key, msg)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Str("history_key", key).Msg("failed to store chat message")
		return result.Error
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	var models []ChatMessageModel
	result := s.db.WithContext(ctx).
		Where("history_key = ?", key).
		Order("id ASC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str("history_key", key).Msg("failed to list chat messages")
		return nil, result.Error
	}

	messages := make([]domain.ChatMessage, len(models))
	for i, model := range models {
		messages[i] = model.ToDomain()
	}
	return messages, nil
}

func (s *GormStore) Destroy(ctx context.Context, key string) error {
	l := log.Ctx(ctx)

	result := s.db.WithContext(ctx).
		Where("history_key = ?", key).
		Delete(&ChatMessageModel{})
	if result.Error != nil {
		l.Error().Err(result.Error).Str("history_key", key).Msg("failed to delete chat messages")
		return result.Error
	}
	l.Debug().Str("history_key", key).Int64("deleted", result.RowsAffected).Msg("chat history destroyed")
	return nil
}

func (s *GormStore) Close() error {
	return database.Close(s.db)
}
