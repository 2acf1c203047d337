package analytics

import "testing"

func TestRate_ZeroDenominator(t *testing.T) {
	if got := rate(5, 0); got != 0 {
		t.Fatalf("expected 0 with a zero denominator, got %v", got)
	}
}

func TestRate_Percentage(t *testing.T) {
	if got := rate(1, 4); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
}
