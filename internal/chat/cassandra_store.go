package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/huijing/sgtechonline/internal/config"
	"github.com/huijing/sgtechonline/internal/domain"
)

// Message ids are ULIDs, so clustering by message_id keeps send order.
const createHistoryTable = `CREATE TABLE IF NOT EXISTS chat_history_by_key (
	history_key text,
	message_id text,
	author text,
	content text,
	visibility text,
	sent_at timestamp,
	PRIMARY KEY (history_key, message_id)
) WITH CLUSTERING ORDER BY (message_id ASC)`

// CassandraStore keeps histories in one partition per key.
type CassandraStore struct {
	session *gocql.Session
}

func NewCassandraStore(cfg config.CassandraConfig) (*CassandraStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout
	cluster.Consistency = parseConsistency(cfg.Consistency)

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	if err := session.Query(createHistoryTable).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create chat_history_by_key: %w", err)
	}

	return &CassandraStore{session: session}, nil
}

func parseConsistency(s string) gocql.Consistency {
	switch s {
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	default:
		return gocql.LocalOne
	}
}

// Append writes msg. Rewriting the same message id is an upsert.
func (s *CassandraStore) Append(ctx context.Context, key string, msg domain.ChatMessage) error {
	err := s.session.Query(
		`INSERT INTO chat_history_by_key (history_key, message_id, author, content, visibility, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key, msg.ID, msg.AuthorName, msg.Content, string(msg.Visibility), msg.SentAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *CassandraStore) List(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	iter := s.session.Query(
		`SELECT message_id, author, content, visibility, sent_at
		 FROM chat_history_by_key
		 WHERE history_key = ?`,
		key,
	).WithContext(ctx).Iter()

	var messages []domain.ChatMessage
	var msg domain.ChatMessage
	var visibility string
	var sentAt time.Time

	for iter.Scan(&msg.ID, &msg.AuthorName, &msg.Content, &visibility, &sentAt) {
		msg.Visibility = domain.Visibility(visibility)
		msg.SentAt = sentAt
		messages = append(messages, msg)
		msg = domain.ChatMessage{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return messages, nil
}

func (s *CassandraStore) Destroy(ctx context.Context, key string) error {
	err := s.session.Query(`DELETE FROM chat_history_by_key WHERE history_key = ?`, key).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete chat history: %w", err)
	}
	return nil
}

func (s *CassandraStore) Close() error {
	s.session.Close()
	return nil
}
