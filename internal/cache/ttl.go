package cache

import (
	"sync"
	"time"
)

// entry is a value with an absolute expiry deadline.
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e entry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TTLCache is a thread-safe, in-memory Cache with per-entry expiry.
// Expired entries are treated as misses on read and reclaimed by Sweep,
// which the cron scheduler runs periodically. The `now` function is
// injectable for deterministic testing.
type TTLCache struct {
	mu       sync.RWMutex
	sessions map[string]entry[[]byte]
	states   map[string]entry[[]int]

	now func() time.Time
}

// Compile-time interface guard.
var _ Cache = (*TTLCache)(nil)

// NewTTLCache creates a ready-to-use TTL cache.
func NewTTLCache() *TTLCache {
	return &TTLCache{
		sessions: make(map[string]entry[[]byte]),
		states:   make(map[string]entry[[]int]),
		now:      time.Now,
	}
}

// SetSession stores a serialized conversation snapshot.
func (c *TTLCache) SetSession(sessionID string, data []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = entry[[]byte]{value: data, expiresAt: c.deadline(ttl)}
}

// Session returns the serialized snapshot, or false on a miss.
func (c *TTLCache) Session(sessionID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.sessions[sessionID]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.value, true
}

// SetState stores the backend's continuation tokens.
func (c *TTLCache) SetState(sessionID string, state []int, ttl time.Duration) {
	cp := make([]int, len(state))
	copy(cp, state)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[sessionID] = entry[[]int]{value: cp, expiresAt: c.deadline(ttl)}
}

// State returns the continuation tokens, or false on a miss.
func (c *TTLCache) State(sessionID string) ([]int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.states[sessionID]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	out := make([]int, len(e.value))
	copy(out, e.value)
	return out, true
}

// Delete removes all entries for the session.
func (c *TTLCache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	delete(c.states, sessionID)
}

// Len returns the number of live (unexpired) entries.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.sessions {
		if !e.expired(now) {
			n++
		}
	}
	for _, e := range c.states {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Sweep removes expired entries and returns the number reclaimed.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	swept := 0
	for k, e := range c.sessions {
		if e.expired(now) {
			delete(c.sessions, k)
			swept++
		}
	}
	for k, e := range c.states {
		if e.expired(now) {
			delete(c.states, k)
			swept++
		}
	}
	return swept
}

// deadline converts a TTL into an absolute deadline. A non-positive TTL
// means no expiry.
func (c *TTLCache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}
