package rag

import (
	"context"
	"fmt"
	"strings"
)

// AugmentPrompt retrieves the top-K chunks for the query and wraps the
// user message in a grounding preamble that instructs the model to answer
// from the retrieved context. With no matching chunks the message is
// returned unchanged, so retrieval never blocks a chat.
func (e *Engine) AugmentPrompt(ctx context.Context, collection, userMessage string, topK int) (string, []Result, error) {
	results, err := e.Search(ctx, collection, userMessage, topK)
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return userMessage, nil, nil
	}

	var b strings.Builder
	b.WriteString("Based on the following context, answer the question. If the context does not contain the answer, say so.\n\nContext:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[Document %d]\n%s\n\n", i+1, r.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(userMessage)

	return b.String(), results, nil
}
