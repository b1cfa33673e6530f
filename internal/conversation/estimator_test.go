package conversation

import "testing"

func TestWordEstimator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		tokensPerWord float64
		text          string
		want          int
	}{
		{"empty", 0, "", 0},
		{"whitespace only", 0, "   \t\n  ", 0},
		{"single word rounds up", 0, "hello", 2},
		{"default ratio", 0, "one two three four five six seven eight nine ten", 13},
		{"custom ratio", 2.0, "a b c", 6},
		{"exact product not rounded", 1.0, "a b c", 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewWordEstimator(tt.tokensPerWord)
			if got := e.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestMessageCost(t *testing.T) {
	t.Parallel()
	e := NewWordEstimator(1.0)

	known := Message{Content: "one two three", Tokens: 42}
	if got := messageCost(e, known); got != 42 {
		t.Errorf("known cost = %d, want stored 42", got)
	}

	unknown := Message{Content: "one two three"}
	if got := messageCost(e, unknown); got != 3 {
		t.Errorf("estimated cost = %d, want 3", got)
	}
}

func TestEstimateMessages(t *testing.T) {
	t.Parallel()
	e := NewWordEstimator(1.0)

	msgs := []Message{
		{Content: "one two", Tokens: 10},
		{Content: "three four five"},
	}
	if got := EstimateMessages(e, msgs); got != 13 {
		t.Errorf("EstimateMessages = %d, want 13", got)
	}
}
