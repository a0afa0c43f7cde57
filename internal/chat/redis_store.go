package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huijing/sgtechonline/internal/config"
	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each history as a redis list of JSON messages.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(cfg config.RedisConfig, prefix string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client. A zero ttl keeps lists
// until they are destroyed.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStore) Append(ctx context.Context, key string, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	k := s.buildKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append chat message to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	items, err := s.client.LRange(ctx, s.buildKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history from redis: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) Destroy(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete chat history from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
