// Package conversation implements the session and context-window manager:
// conversation state, message history, token budgeting, and prompt assembly
// for the inference bridge.
package conversation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Label returns the role name as it appears in assembled prompts.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	}
	return string(r)
}

// Message is a single entry in a conversation. Messages are immutable once
// created and owned by their parent Conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Tokens is the known token count for the message. Zero means unknown;
	// consumers fall back to estimation.
	Tokens int `json:"tokens,omitempty"`
}

// newID produces a 32-character hex string from 16 random bytes.
// crypto/rand gives a collision space large enough that uniqueness
// checks are unnecessary.
func newID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Requires broken OS entropy; fold the error into the ID rather
		// than failing session creation.
		return fmt.Sprintf("err-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
