package conversation

import "strings"

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// WordEstimator estimates tokens from the whitespace-separated word count
// using a tokens-per-word ratio. English text averages ~1.3 tokens per word;
// a tokenizer-backed estimator can be substituted without changing the
// context-window selection behaviour.
type WordEstimator struct {
	TokensPerWord float64
}

// NewWordEstimator creates a WordEstimator with the given ratio.
// If tokensPerWord is <= 0, defaults to 1.3.
func NewWordEstimator(tokensPerWord float64) *WordEstimator {
	if tokensPerWord <= 0 {
		tokensPerWord = 1.3
	}
	return &WordEstimator{TokensPerWord: tokensPerWord}
}

// Estimate returns the estimated token count for the given text.
func (e *WordEstimator) Estimate(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	tokens := float64(words) * e.TokensPerWord
	// Round up to avoid underestimation.
	if tokens > float64(int(tokens)) {
		return int(tokens) + 1
	}
	return int(tokens)
}

// messageCost returns the token cost of a message: the stored count when
// known, otherwise an estimate from the content.
func messageCost(estimator TokenEstimator, msg Message) int {
	if msg.Tokens > 0 {
		return msg.Tokens
	}
	return estimator.Estimate(msg.Content)
}

// EstimateMessages returns the total token cost for a slice of messages.
func EstimateMessages(estimator TokenEstimator, messages []Message) int {
	total := 0
	for i := range messages {
		total += messageCost(estimator, messages[i])
	}
	return total
}
