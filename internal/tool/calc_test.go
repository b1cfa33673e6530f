package tool

import "testing"

func TestEvalExpr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512}, // right-associative
		{"-5 + 3", -2},
		{"-(2 + 3)", -5},
		{"3.5 * 2", 7},
		{"1 - 2 - 3", -4}, // left-associative
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			got, err := evalExpr(tt.expr)
			if err != nil {
				t.Fatalf("evalExpr(%q): %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("evalExpr(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalExprErrors(t *testing.T) {
	t.Parallel()

	exprs := []string{
		"",
		"1 / 0",
		"10 % 0",
		"(1 + 2",
		"1 + + 2 +",
		"abc",
		"1 & 2",
	}

	for _, expr := range exprs {
		expr := expr
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			if _, err := evalExpr(expr); err == nil {
				t.Errorf("evalExpr(%q) succeeded, want error", expr)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{4, "4"},
		{2.5, "2.5"},
		{-0.125, "-0.125"},
		{1024, "1024"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
