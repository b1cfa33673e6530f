package conversation

import "strings"

// RenderPrompt deterministically assembles the full prompt sent to the
// inference backend on the non-continuation path: an optional system line,
// the historical messages in chronological order, the new user message,
// and a trailing assistant-turn marker, joined by blank lines.
func RenderPrompt(history []Message, userMessage, systemPrompt string) string {
	parts := make([]string, 0, len(history)+3)

	if systemPrompt != "" {
		parts = append(parts, "System: "+systemPrompt+"\n")
	}

	for _, msg := range history {
		parts = append(parts, msg.Role.Label()+": "+msg.Content)
	}

	parts = append(parts, "User: "+userMessage)
	parts = append(parts, "Assistant:")

	return strings.Join(parts, "\n\n")
}

// RenderContinuationPrompt assembles the short prompt used when the backend
// resumes from opaque continuation state: history lives in the state, so
// only the new turn is sent.
func RenderContinuationPrompt(userMessage string) string {
	return "User: " + userMessage + "\nAssistant:"
}
