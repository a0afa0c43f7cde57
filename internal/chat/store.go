package chat

import (
	"context"
	"errors"

	"github.com/huijing/sgtechonline/internal/domain"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverRedis     = "redis"
	DriverDatabase  = "database"
	DriverCassandra = "cassandra"
)

var ErrUnsupportedStore = errors.New("unsupported chat store")

// Store persists a participant's chat log, keyed by Key.
type Store interface {
	Append(ctx context.Context, key string, msg domain.ChatMessage) error
	List(ctx context.Context, key string) ([]domain.ChatMessage, error)
	Destroy(ctx context.Context, key string) error
	Close() error
}

// Key builds the history key of one participant in one binding session.
func Key(bindingSessionID, participantKey string) string {
	return bindingSessionID + ":" + participantKey
}
