package conversation

import "time"

// Conversation is a single chat session: an ordered message history plus
// bookkeeping. Instances are owned exclusively by the Manager; the durable
// store and fast-path cache hold serialized snapshots, never live references.
type Conversation struct {
	SessionID   string         `json:"session_id"`
	Messages    []Message      `json:"messages"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	TotalTokens int            `json:"total_tokens"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// ContextState is the backend's opaque continuation token sequence.
	// It is stored and returned verbatim, never parsed.
	ContextState []int `json:"context_tokens,omitempty"`
}

// append adds a message and bumps the bookkeeping. Truncation to the
// retention limit is the Manager's responsibility.
func (c *Conversation) append(msg Message, now time.Time) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now
	if msg.Tokens > 0 {
		c.TotalTokens += msg.Tokens
	}
}

// truncate drops the oldest messages so that at most max remain, and
// recomputes TotalTokens from the survivors so the cumulative count stays
// the sum of known per-message counts.
func (c *Conversation) truncate(max int) {
	if max <= 0 || len(c.Messages) <= max {
		return
	}
	kept := make([]Message, max)
	copy(kept, c.Messages[len(c.Messages)-max:])
	c.Messages = kept

	total := 0
	for i := range c.Messages {
		if c.Messages[i].Tokens > 0 {
			total += c.Messages[i].Tokens
		}
	}
	c.TotalTokens = total
}

// contextWindow returns the longest suffix of the history whose total
// estimated token cost fits within maxTokens. The walk runs newest to
// oldest and stops at the first message that would overflow the budget;
// the result preserves chronological order.
func (c *Conversation) contextWindow(estimator TokenEstimator, maxTokens int) []Message {
	if len(c.Messages) == 0 {
		return nil
	}

	used := 0
	start := len(c.Messages)
	for i := len(c.Messages) - 1; i >= 0; i-- {
		cost := messageCost(estimator, c.Messages[i])
		if used+cost > maxTokens {
			break
		}
		used += cost
		start = i
	}

	if start == len(c.Messages) {
		return nil
	}
	window := make([]Message, len(c.Messages)-start)
	copy(window, c.Messages[start:])
	return window
}

// clone returns a deep copy safe to hand to callers outside the Manager lock.
func (c *Conversation) clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.ContextState != nil {
		out.ContextState = make([]int, len(c.ContextState))
		copy(out.ContextState, c.ContextState)
	}
	return &out
}
