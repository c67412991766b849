package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

// PGBufferStore implements store.BufferStore backed by Postgres.
//
// Ordering comes from the identity column seq. Drain is a single
// DELETE ... RETURNING statement, so under READ COMMITTED it removes exactly
// the rows committed before the statement started; rows inserted by a
// concurrent Append survive for the next drain.
type PGBufferStore struct {
	db *sql.DB
}

func NewPGBufferStore(db *sql.DB) *PGBufferStore {
	return &PGBufferStore{db: db}
}

func (s *PGBufferStore) Append(ctx context.Context, msg store.BufferedMessage) (int64, error) {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.ArrivedAt.IsZero() {
		msg.ArrivedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(nonNilMeta(msg.Metadata))
	if err != nil {
		return 0, fmt.Errorf("%w: marshal metadata: %w", store.ErrStoreWrite, err)
	}

	var seq int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO buffered_messages (id, conversation_id, channel, sender_id, content, metadata, arrived_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		msg.ID, msg.ConversationID, msg.Channel, msg.SenderID, msg.Content, meta, msg.ArrivedAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrStoreWrite, err)
	}
	return seq, nil
}

func (s *PGBufferStore) Drain(ctx context.Context, conversationID string) ([]store.BufferedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH drained AS (
			DELETE FROM buffered_messages WHERE conversation_id = $1
			RETURNING seq, id, conversation_id, channel, sender_id, content, metadata, arrived_at
		 )
		 SELECT seq, id, conversation_id, channel, sender_id, content, metadata, arrived_at
		 FROM drained ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	defer rows.Close()

	msgs := []store.BufferedMessage{}
	for rows.Next() {
		var m store.BufferedMessage
		var meta []byte
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.Channel, &m.SenderID, &m.Content, &meta, &m.ArrivedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", store.ErrStoreRead, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				slog.Warn("buffer store: undecodable metadata, delivering without it",
					"conversation", m.ConversationID, "seq", m.Seq, "error", err)
				m.Metadata = nil
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	return msgs, nil
}

func (s *PGBufferStore) HasPending(ctx context.Context, conversationID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM buffered_messages WHERE conversation_id = $1)`,
		conversationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	return exists, nil
}

func (s *PGBufferStore) ListPending(ctx context.Context) ([]store.PendingConversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, MIN(arrived_at), COUNT(*)
		 FROM buffered_messages
		 GROUP BY conversation_id
		 ORDER BY MIN(arrived_at)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	defer rows.Close()

	var result []store.PendingConversation
	for rows.Next() {
		var p store.PendingConversation
		if err := rows.Scan(&p.ConversationID, &p.OldestArrival, &p.Count); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", store.ErrStoreRead, err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Close closes the underlying pool.
func (s *PGBufferStore) Close() error {
	return s.db.Close()
}

func nonNilMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
