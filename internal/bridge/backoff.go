package bridge

import (
	"math"
	"time"
)

const (
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 1.6
	backoffMax    = 30 * time.Second
)

// reconnectDelay returns the delay before the n-th consecutive
// reconnect attempt: min(30s, 500ms * 1.6^attempt).
func reconnectDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(backoffBase) * math.Pow(backoffFactor, float64(attempt))
	if delay > float64(backoffMax) {
		return backoffMax
	}
	return time.Duration(delay)
}
