package backoff_test

import (
	"testing"
	"time"

	"github.com/farmer1st/farmcode/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	t.Parallel()

	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	t.Parallel()

	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // 16s capped
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_ClampsBadAttempt(t *testing.T) {
	t.Parallel()

	e := backoff.NewExponential(time.Second, time.Minute)
	if got := e.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, time.Second)
	}
}

func TestWarmup_Is1s2s4sCapped(t *testing.T) {
	t.Parallel()

	w := backoff.Warmup()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
		{100, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := w.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_JitterStaysInRange(t *testing.T) {
	t.Parallel()

	e := &backoff.Exponential{Initial: time.Second, Max: 8 * time.Second, Jitter: true}
	for i := 0; i < 100; i++ {
		if got := e.Delay(4); got < 0 || got > 8*time.Second {
			t.Fatalf("jittered Delay(4) = %v, want within [0, 8s]", got)
		}
	}
}
