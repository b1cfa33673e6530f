package conversation

import "errors"

// ErrSessionNotFound is returned by mutating operations against a session
// id that no tier (memory, cache, durable store) knows about. Read paths
// never return it; they degrade to empty results instead.
var ErrSessionNotFound = errors.New("session not found")
