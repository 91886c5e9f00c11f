package realtime

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{name: "first attempt is immediate", attempts: 0, want: 0},
		{name: "negative attempts treated as first", attempts: -3, want: 0},
		{name: "second attempt waits two seconds", attempts: 1, want: 2 * time.Second},
		{name: "third attempt waits five seconds", attempts: 2, want: 5 * time.Second},
		{name: "tenth attempt still five seconds", attempts: 9, want: 5 * time.Second},
		{name: "eleventh attempt caps at ten seconds", attempts: 10, want: 10 * time.Second},
		{name: "stays capped well past ten", attempts: 500, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryDelay(tt.attempts); got != tt.want {
				t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
			}
		})
	}
}

func TestSignalStrength(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		want    int
	}{
		{name: "instant", latency: 0, want: 4},
		{name: "upper edge of full bars", latency: 200 * time.Millisecond, want: 4},
		{name: "three bars", latency: 201 * time.Millisecond, want: 3},
		{name: "upper edge of three bars", latency: 400 * time.Millisecond, want: 3},
		{name: "two bars", latency: 600 * time.Millisecond, want: 2},
		{name: "upper edge of two bars", latency: 800 * time.Millisecond, want: 2},
		{name: "one bar", latency: 801 * time.Millisecond, want: 1},
		{name: "terrible link", latency: 5 * time.Second, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SignalStrength(tt.latency); got != tt.want {
				t.Errorf("SignalStrength(%v) = %d, want %d", tt.latency, got, tt.want)
			}
		})
	}
}
