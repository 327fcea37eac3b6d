package session

import "time"

// Backoff returns the wait before reconnect attempt n (zero-based, counted
// since the last successful connect): min(max, initial*(n+1)).
func Backoff(n int, initial, max time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	if initial <= 0 {
		return max
	}
	if int64(n+1) > int64(max/initial) {
		return max
	}
	return initial * time.Duration(n+1)
}
