// Package sqlite implements the buffer store on an embedded SQLite database
// for standalone deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hacastro22/watibot3-sub002/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS buffered_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	channel TEXT NOT NULL DEFAULT '',
	sender_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	arrived_at_utc_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_buffered_messages_conversation_seq ON buffered_messages(conversation_id, seq);
`

// BufferStore implements store.BufferStore on SQLite.
//
// The database has a single connection, so every transaction is serialized;
// Drain's select-then-delete cannot interleave with an Append.
type BufferStore struct {
	db *sql.DB
}

// NewStores opens the standalone store container.
func NewStores(cfg store.StoreConfig) (*store.Stores, error) {
	bs, err := Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &store.Stores{Buffer: bs}, nil
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*BufferStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &BufferStore{db: db}, nil
}

func (s *BufferStore) Append(ctx context.Context, msg store.BufferedMessage) (int64, error) {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.ArrivedAt.IsZero() {
		msg.ArrivedAt = time.Now().UTC()
	}
	meta := []byte("{}")
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return 0, fmt.Errorf("%w: marshal metadata: %w", store.ErrStoreWrite, err)
		}
		meta = b
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO buffered_messages (id, conversation_id, channel, sender_id, content, metadata, arrived_at_utc_ns)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Channel, msg.SenderID, msg.Content, string(meta), msg.ArrivedAt.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrStoreWrite, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %w", store.ErrStoreWrite, err)
	}
	return seq, nil
}

func (s *BufferStore) Drain(ctx context.Context, conversationID string) ([]store.BufferedMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", store.ErrStoreRead, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
SELECT seq, id, conversation_id, channel, sender_id, content, metadata, arrived_at_utc_ns
FROM buffered_messages
WHERE conversation_id = ?
ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	msgs := []store.BufferedMessage{}
	for rows.Next() {
		var m store.BufferedMessage
		var meta string
		var arrivedNs int64
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.Channel, &m.SenderID, &m.Content, &meta, &arrivedNs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan: %w", store.ErrStoreRead, err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				slog.Warn("buffer store: undecodable metadata, delivering without it",
					"conversation", m.ConversationID, "seq", m.Seq, "error", err)
				m.Metadata = nil
			}
		}
		m.ArrivedAt = time.Unix(0, arrivedNs).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	rows.Close()

	if len(msgs) == 0 {
		return msgs, nil
	}
	last := msgs[len(msgs)-1].Seq
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM buffered_messages WHERE conversation_id = ? AND seq <= ?`,
		conversationID, last); err != nil {
		return nil, fmt.Errorf("%w: delete: %w", store.ErrStoreRead, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", store.ErrStoreRead, err)
	}
	return msgs, nil
}

func (s *BufferStore) HasPending(ctx context.Context, conversationID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM buffered_messages WHERE conversation_id = ?)`,
		conversationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	return exists == 1, nil
}

func (s *BufferStore) ListPending(ctx context.Context) ([]store.PendingConversation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT conversation_id, MIN(arrived_at_utc_ns), COUNT(*)
FROM buffered_messages
GROUP BY conversation_id
ORDER BY MIN(arrived_at_utc_ns)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrStoreRead, err)
	}
	defer rows.Close()

	var result []store.PendingConversation
	for rows.Next() {
		var p store.PendingConversation
		var oldestNs int64
		if err := rows.Scan(&p.ConversationID, &oldestNs, &p.Count); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", store.ErrStoreRead, err)
		}
		p.OldestArrival = time.Unix(0, oldestNs).UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *BufferStore) Close() error {
	return s.db.Close()
}
