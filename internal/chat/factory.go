package chat

import (
	"fmt"

	"github.com/huijing/sgtechonline/internal/config"
	"github.com/huijing/sgtechonline/pkg/database"
)

// NewStore opens the store named by cfg.Chat.Store.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.Chat.Store {
	case DriverMemory, "":
		return NewMemoryStore(), nil

	case DriverRedis:
		return NewRedisStore(cfg.Redis, cfg.Chat.KeyPrefix, cfg.Chat.TTL)

	case DriverDatabase:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		store, err := NewGormStore(db)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
		return store, nil

	case DriverCassandra:
		return NewCassandraStore(cfg.Cassandra)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, cfg.Chat.Store)
	}
}
