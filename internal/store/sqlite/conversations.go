package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Kenbark42/dominus-ai/internal/conversation"
)

// Save writes a full snapshot of the conversation, replacing any previous
// snapshot for the same session id.
func (s *Store) Save(ctx context.Context, conv *conversation.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("sqlite: marshal conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations (session_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		conv.SessionID, string(data), conv.CreatedAt.Unix(), conv.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save conversation: %w", err)
	}
	return nil
}

// Load returns the snapshot for the session id, or (nil, nil) if absent.
func (s *Store) Load(ctx context.Context, sessionID string) (*conversation.Conversation, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM conversations WHERE session_id = ?", sessionID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: load conversation: %w", err)
	}

	var conv conversation.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal conversation %s: %w", sessionID, err)
	}
	return &conv, nil
}

// LoadActive returns every snapshot whose updated-at is after cutoff.
// Corrupt rows are skipped with a warning rather than failing the scan;
// a single bad row must not block process startup.
func (s *Store) LoadActive(ctx context.Context, cutoff time.Time) ([]*conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, data FROM conversations WHERE updated_at > ?", cutoff.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load active conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []*conversation.Conversation
	for rows.Next() {
		var sessionID, data string
		if err := rows.Scan(&sessionID, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}

		var conv conversation.Conversation
		if err := json.Unmarshal([]byte(data), &conv); err != nil {
			s.logger.Warn("sqlite: skipping corrupt conversation row", "session_id", sessionID, "error", err)
			continue
		}
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load active rows: %w", err)
	}

	return convs, nil
}

// Delete removes the snapshot for the session id. Absent sessions are a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	return nil
}

// DeleteIdle removes every snapshot whose updated-at is before cutoff
// and returns the number removed.
func (s *Store) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE updated_at < ?", cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete idle conversations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// Len returns the total number of stored conversations.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count conversations: %w", err)
	}
	return count, nil
}
