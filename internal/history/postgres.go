package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation messages in PostgreSQL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	retention int
}

func NewPostgresStore(ctx context.Context, databaseURL string, retention int) (*PostgresStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, retention: retention}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			emotion_detected TEXT,
			emotion_confidence DOUBLE PRECISION,
			emotion_emoji TEXT,
			ts_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_ts ON chat_messages (session_id, ts_ms);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	var detected, emoji *string
	var confidence *float64
	if msg.Emotion != nil {
		detected = &msg.Emotion.Detected
		confidence = &msg.Emotion.Confidence
		emoji = &msg.Emotion.Emoji
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, sender, content, emotion_detected, emotion_confidence, emotion_emoji, ts_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID,
		msg.SessionID,
		string(msg.Sender),
		msg.Text,
		detected,
		confidence,
		emoji,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	// Retention bound: the oldest rows beyond the limit are dropped on persist.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM chat_messages
		 WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM chat_messages WHERE session_id = $1 ORDER BY ts_ms DESC, created_at DESC LIMIT $2
		 )`,
		msg.SessionID,
		s.retention,
	)
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = s.retention
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, sender, content, emotion_detected, emotion_confidence, emotion_emoji, ts_ms
		 FROM chat_messages WHERE session_id = $1 ORDER BY ts_ms DESC, created_at DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		var sender string
		var detected, emoji *string
		var confidence *float64
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Text, &detected, &confidence, &emoji, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Sender = Sender(sender)
		if detected != nil {
			m.Emotion = &EmotionTag{Detected: *detected, Emoji: ""}
			if confidence != nil {
				m.Emotion.Confidence = *confidence
			}
			if emoji != nil {
				m.Emotion.Emoji = *emoji
			}
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Reverse into chronological order, most-recent-last.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
