package realtime

import "time"

// DefaultRetryWindow is how long reconnection keeps being attempted after a
// drop before the channel gives up for good.
const DefaultRetryWindow = time.Hour

// RetryDelay returns the delay before the next connection attempt given the
// number of previous failed attempts in this sequence: immediate first try,
// a short second, then a flat middle band, then the long tail.
func RetryDelay(previousAttempts int) time.Duration {
	switch {
	case previousAttempts <= 0:
		return 0
	case previousAttempts == 1:
		return 2 * time.Second
	case previousAttempts < 10:
		return 5 * time.Second
	default:
		return 10 * time.Second
	}
}

// SignalStrength buckets a measured round-trip latency into the 4-bar
// indicator shown next to the connection icon.
func SignalStrength(latency time.Duration) int {
	switch {
	case latency <= 200*time.Millisecond:
		return 4
	case latency <= 400*time.Millisecond:
		return 3
	case latency <= 800*time.Millisecond:
		return 2
	default:
		return 1
	}
}
