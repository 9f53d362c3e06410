package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/steady/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for _, attempt := range []int{1, 2, 10, 100} {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{7, 64 * time.Second}, // would exceed, capped
	}
	for _, tt := range tests {
		got := e.Delay(tt.attempt)
		want := tt.want
		if want > time.Minute {
			want = time.Minute
		}
		if got != want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, want)
		}
	}
}

func TestExponential_NoCap(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0)
	if got := e.Delay(10); got != 512*time.Second {
		t.Errorf("Delay(10) = %v, want 512s", got)
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	j := backoff.NewJitter(time.Second, 30*time.Second)

	for attempt := 1; attempt <= 10; attempt++ {
		for range 50 {
			got := j.Delay(attempt)
			if got < 0 {
				t.Fatalf("Delay(%d) = %v, negative", attempt, got)
			}
			if got > 30*time.Second {
				t.Fatalf("Delay(%d) = %v, above cap", attempt, got)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if got := s.Delay(3); got < 0 || got > time.Minute {
		t.Errorf("Delay(3) = %v, outside [0, 1m]", got)
	}
}
