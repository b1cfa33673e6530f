// Package cache provides the optional fast-path cache for session state
// and backend continuation tokens. The real implementation is an in-memory
// TTL cache; NopCache disables the fast path entirely. The choice is made
// once at startup, so call sites never feature-detect.
package cache

import "time"

// Cache is the capability interface consumed by the conversation manager.
// Entries expire after their TTL; a read of an expired entry behaves as a
// miss. Implementations must be safe for concurrent use.
type Cache interface {
	// SetSession stores a serialized conversation snapshot.
	SetSession(sessionID string, data []byte, ttl time.Duration)

	// Session returns the serialized snapshot, or false on a miss.
	Session(sessionID string) ([]byte, bool)

	// SetState stores the backend's opaque continuation token sequence.
	SetState(sessionID string, state []int, ttl time.Duration)

	// State returns the continuation tokens, or false on a miss.
	State(sessionID string) ([]int, bool)

	// Delete removes all entries for the session.
	Delete(sessionID string)

	// Len returns the number of live entries.
	Len() int
}

// NopCache is the disabled-cache implementation: every read misses and
// every write is dropped.
type NopCache struct{}

// Compile-time interface guard.
var _ Cache = NopCache{}

func (NopCache) SetSession(string, []byte, time.Duration) {}
func (NopCache) Session(string) ([]byte, bool)            { return nil, false }
func (NopCache) SetState(string, []int, time.Duration)    {}
func (NopCache) State(string) ([]int, bool)               { return nil, false }
func (NopCache) Delete(string)                            {}
func (NopCache) Len() int                                 { return 0 }
