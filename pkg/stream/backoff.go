package stream

import "time"

// reconnectDelay is the wait before reconnect attempt n (1-based):
// base doubled per attempt, capped. With the defaults (1s base, 10s cap)
// attempts 1..3 wait 2s, 4s, 8s.
func reconnectDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap || d <= 0 {
			return cap
		}
	}
	return d
}
