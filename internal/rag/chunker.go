package rag

import "strings"

// splitChunks slices text into overlapping word windows. Sizes are
// configured in estimated tokens and converted to word counts with the
// same words-to-tokens ratio the conversation layer uses, so chunk
// budgets and context budgets stay comparable.
func (e *Engine) splitChunks(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunkWords := tokensToWords(e.cfg.ChunkTokens)
	overlapWords := tokensToWords(e.cfg.OverlapTokens)
	if overlapWords >= chunkWords {
		overlapWords = chunkWords - 1
	}
	step := chunkWords - overlapWords

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// tokensToWords inverts the word-count token heuristic (1.3 tokens per word).
func tokensToWords(tokens int) int {
	words := tokens * 10 / 13
	if words < 1 {
		words = 1
	}
	return words
}
