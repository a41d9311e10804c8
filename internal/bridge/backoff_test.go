package bridge

import (
	"math"
	"testing"
	"time"
)

func TestReconnectDelaySequence(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		want := 500.0 * math.Pow(1.6, float64(attempt))
		if want > 30000 {
			want = 30000
		}

		got := reconnectDelay(attempt)
		diff := math.Abs(float64(got) - want*float64(time.Millisecond))
		if diff > float64(time.Microsecond) {
			t.Errorf("attempt %d: delay = %v, want %vms", attempt, got, want)
		}
	}
}

func TestReconnectDelayCapped(t *testing.T) {
	for _, attempt := range []int{10, 50, 1000} {
		if got := reconnectDelay(attempt); got > backoffMax {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, got, backoffMax)
		}
	}
}

func TestReconnectDelayFirstAttempt(t *testing.T) {
	if got := reconnectDelay(0); got != 500*time.Millisecond {
		t.Errorf("first delay = %v, want 500ms", got)
	}
}

func TestReconnectDelayNegativeAttempt(t *testing.T) {
	if got := reconnectDelay(-3); got != 500*time.Millisecond {
		t.Errorf("delay for negative attempt = %v, want 500ms", got)
	}
}
