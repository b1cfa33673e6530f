package conversation

import (
	"context"
	"time"
)

// Store persists conversation snapshots keyed by session id.
// Implementations must be safe for concurrent use and must serialize
// writes per key. The Manager treats store failures as degraded-mode
// conditions: they are logged, never surfaced to callers.
type Store interface {
	// Save writes a full snapshot of the conversation, replacing any
	// previous snapshot for the same session id.
	Save(ctx context.Context, conv *Conversation) error

	// Load returns the snapshot for the session id, or (nil, nil) if
	// no snapshot exists.
	Load(ctx context.Context, sessionID string) (*Conversation, error)

	// LoadActive returns every snapshot whose updated-at is after cutoff.
	LoadActive(ctx context.Context, cutoff time.Time) ([]*Conversation, error)

	// Delete removes the snapshot for the session id. Deleting an absent
	// session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteIdle removes every snapshot whose updated-at is before cutoff
	// and returns the number removed.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)
}
