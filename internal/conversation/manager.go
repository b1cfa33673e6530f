package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Kenbark42/dominus-ai/internal/cache"
)

const (
	defaultMaxContextTokens = 6000
	defaultMaxMessages      = 50
	defaultSessionTTL       = 24 * time.Hour
	defaultCacheStateTTL    = time.Hour
)

// Config holds the conversation manager configuration.
type Config struct {
	// MaxContextTokens is the default context-window budget for GetContext.
	MaxContextTokens int

	// MaxMessages is the per-session retention limit; the oldest messages
	// are evicted first once it is exceeded.
	MaxMessages int

	// SessionTTL is how long an idle session survives before cleanup.
	SessionTTL time.Duration

	// CacheSessionTTL is the fast-path TTL for mirrored session snapshots.
	// Defaults to SessionTTL.
	CacheSessionTTL time.Duration

	// CacheStateTTL is the fast-path TTL for backend continuation tokens.
	CacheStateTTL time.Duration
}

func (c *Config) defaults() {
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = defaultMaxContextTokens
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = defaultMaxMessages
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.CacheSessionTTL <= 0 {
		c.CacheSessionTTL = c.SessionTTL
	}
	if c.CacheStateTTL <= 0 {
		c.CacheStateTTL = defaultCacheStateTTL
	}
}

// SessionInfo is a point-in-time summary of a session.
type SessionInfo struct {
	SessionID    string         `json:"session_id"`
	MessageCount int            `json:"message_count"`
	TotalTokens  int            `json:"total_tokens"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Manager owns the in-memory working set of conversations and mediates
// between it, the durable store, and the fast-path cache. All operations
// are serialized by one coarse mutex: per-operation cost is memory plus
// local disk, so contention is not a concern, and callers are expected to
// run inference calls outside the manager.
type Manager struct {
	mu            sync.Mutex
	conversations map[string]*Conversation

	cfg       Config
	store     Store
	fastPath  cache.Cache
	estimator TokenEstimator
	logger    *slog.Logger

	// now is injectable for deterministic testing.
	now func() time.Time
}

// NewManager creates a Manager. A nil fastPath disables the cache tier;
// a nil logger falls back to slog.Default().
func NewManager(cfg Config, store Store, fastPath cache.Cache, logger *slog.Logger) *Manager {
	cfg.defaults()
	if fastPath == nil {
		fastPath = cache.NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conversations: make(map[string]*Conversation),
		cfg:           cfg,
		store:         store,
		fastPath:      fastPath,
		estimator:     NewWordEstimator(0),
		logger:        logger,
		now:           time.Now,
	}
}

// SetEstimator replaces the token estimator. Must be called before the
// manager is shared across goroutines.
func (m *Manager) SetEstimator(e TokenEstimator) {
	if e != nil {
		m.estimator = e
	}
}

// CreateSession constructs an empty conversation with the given metadata,
// registers it in memory, and persists it. Persistence failures are logged,
// not raised: the session stays usable in memory for the process lifetime.
func (m *Manager) CreateSession(ctx context.Context, metadata map[string]any) string {
	now := m.now()
	conv := &Conversation{
		SessionID: newID(),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.SessionID] = conv
	m.persistLocked(ctx, conv)
	return conv.SessionID
}

// GetOrCreateSession returns sessionID unchanged when it resolves to an
// existing session in any tier, and otherwise creates a fresh session.
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID string) string {
	if sessionID != "" && m.SessionExists(ctx, sessionID) {
		return sessionID
	}
	return m.CreateSession(ctx, nil)
}

// SessionExists reports whether any tier (memory, cache, durable store)
// holds the session, promoting hits into memory.
func (m *Manager) SessionExists(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(ctx, sessionID) != nil
}

// AddMessage appends a message to the session, applies the retention limit,
// and persists the conversation. It is the only operation with a hard
// failure mode: ErrSessionNotFound when no tier knows the session id.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, role Role, content string, tokens int) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.resolveLocked(ctx, sessionID)
	if conv == nil {
		return Message{}, fmt.Errorf("conversation: %w: %s", ErrSessionNotFound, sessionID)
	}

	msg := Message{
		ID:        newID(),
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
		Tokens:    tokens,
	}
	conv.append(msg, msg.Timestamp)
	conv.truncate(m.cfg.MaxMessages)
	m.persistLocked(ctx, conv)

	return msg, nil
}

// GetContext returns the suffix of the session's history whose estimated
// token cost fits within maxTokens (the configured ceiling when maxTokens
// is <= 0), in chronological order. Unknown sessions yield an empty result.
func (m *Manager) GetContext(ctx context.Context, sessionID string, maxTokens int) []Message {
	if maxTokens <= 0 {
		maxTokens = m.cfg.MaxContextTokens
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.resolveLocked(ctx, sessionID)
	if conv == nil {
		return nil
	}
	return conv.contextWindow(m.estimator, maxTokens)
}

// BuildPromptWithContext renders the session's context window plus the new
// user message into a single prompt. Pure function of GetContext's result;
// no conversation state is mutated.
func (m *Manager) BuildPromptWithContext(ctx context.Context, sessionID, userMessage, systemPrompt string) string {
	history := m.GetContext(ctx, sessionID, 0)
	return RenderPrompt(history, userMessage, systemPrompt)
}

// UpdateContextState stores the backend's opaque continuation tokens for
// the session. Unknown sessions are ignored: the continuation state is an
// optimization, never a correctness requirement.
func (m *Manager) UpdateContextState(ctx context.Context, sessionID string, state []int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[sessionID]
	if !ok {
		return
	}

	conv.ContextState = make([]int, len(state))
	copy(conv.ContextState, state)
	conv.UpdatedAt = m.now()
	m.persistLocked(ctx, conv)
	m.fastPath.SetState(sessionID, state, m.cfg.CacheStateTTL)
}

// ContextState returns the stored continuation tokens, checking memory
// first and then the fast-path cache. Returns nil when never set or
// expired from both.
func (m *Manager) ContextState(_ context.Context, sessionID string) []int {
	m.mu.Lock()
	if conv, ok := m.conversations[sessionID]; ok && len(conv.ContextState) > 0 {
		out := make([]int, len(conv.ContextState))
		copy(out, conv.ContextState)
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	if state, ok := m.fastPath.State(sessionID); ok {
		return state
	}
	return nil
}

// SessionInfo returns a summary of the session, or false if no tier
// knows the id.
func (m *Manager) SessionInfo(ctx context.Context, sessionID string) (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.resolveLocked(ctx, sessionID)
	if conv == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		SessionID:    conv.SessionID,
		MessageCount: len(conv.Messages),
		TotalTokens:  conv.TotalTokens,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		Metadata:     conv.Metadata,
	}, true
}

// Sessions returns summaries of the in-memory working set, most recently
// updated first.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(m.conversations))
	for _, conv := range m.conversations {
		infos = append(infos, SessionInfo{
			SessionID:    conv.SessionID,
			MessageCount: len(conv.Messages),
			TotalTokens:  conv.TotalTokens,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			Metadata:     conv.Metadata,
		})
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return infos
}

// DeleteSession removes the session from memory, cache, and durable store.
// Reports whether any tier knew the id.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existed := m.resolveLocked(ctx, sessionID) != nil
	delete(m.conversations, sessionID)
	m.fastPath.Delete(sessionID)
	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.logger.Warn("conversation: store delete failed", "session_id", sessionID, "error", err)
	}
	return existed
}

// CleanupOldSessions evicts every session idle longer than the TTL from
// memory, cache, and durable store, returning the number removed. Memory
// is cleared before the store so a partially completed pass can never
// resurrect an expired session for external callers.
func (m *Manager) CleanupOldSessions(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.SessionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, conv := range m.conversations {
		if conv.UpdatedAt.Before(cutoff) {
			delete(m.conversations, id)
			m.fastPath.Delete(id)
			expired++
		}
	}

	n, err := m.store.DeleteIdle(ctx, cutoff)
	if err != nil {
		m.logger.Warn("conversation: cleanup store delete failed", "error", err)
	} else if n > expired {
		// The store can hold expired sessions never loaded into memory.
		expired = n
	}

	if expired > 0 {
		m.logger.Info("conversation: cleaned up expired sessions", "count", expired)
	}
	return expired
}

// LoadActiveSessions warms the in-memory working set from the durable
// store, skipping sessions already resident. Intended to run once at
// process start.
func (m *Manager) LoadActiveSessions(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.cfg.SessionTTL)

	convs, err := m.store.LoadActive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("conversation: load active sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, conv := range convs {
		if _, ok := m.conversations[conv.SessionID]; ok {
			continue
		}
		m.conversations[conv.SessionID] = conv
		loaded++
	}
	if loaded > 0 {
		m.logger.Info("conversation: loaded active sessions", "count", loaded)
	}
	return loaded, nil
}

// Len returns the number of sessions in the in-memory working set.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// resolveLocked finds the conversation across the three tiers, promoting
// cache and store hits into memory. Returns nil when no tier has it.
// Callers must hold m.mu.
func (m *Manager) resolveLocked(ctx context.Context, sessionID string) *Conversation {
	if sessionID == "" {
		return nil
	}

	if conv, ok := m.conversations[sessionID]; ok {
		return conv
	}

	if data, ok := m.fastPath.Session(sessionID); ok {
		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			m.logger.Warn("conversation: corrupt cache entry", "session_id", sessionID, "error", err)
		} else {
			m.conversations[sessionID] = &conv
			return &conv
		}
	}

	conv, err := m.store.Load(ctx, sessionID)
	if err != nil {
		m.logger.Warn("conversation: store load failed", "session_id", sessionID, "error", err)
		return nil
	}
	if conv == nil {
		return nil
	}
	m.conversations[sessionID] = conv
	return conv
}

// persistLocked snapshots the conversation to the durable store and mirrors
// it into the fast-path cache. Failures are logged and swallowed: the
// in-memory state remains authoritative (availability over durability).
// Callers must hold m.mu.
func (m *Manager) persistLocked(ctx context.Context, conv *Conversation) {
	if err := m.store.Save(ctx, conv); err != nil {
		m.logger.Warn("conversation: store save failed", "session_id", conv.SessionID, "error", err)
	}

	data, err := json.Marshal(conv)
	if err != nil {
		m.logger.Warn("conversation: snapshot marshal failed", "session_id", conv.SessionID, "error", err)
		return
	}
	m.fastPath.SetSession(conv.SessionID, data, m.cfg.CacheSessionTTL)
}
