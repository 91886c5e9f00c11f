package clocksync

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitTick(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return 0
	}
}

func TestSyncBackComputesTimeLimit(t *testing.T) {
	tests := []struct {
		name        string
		remaining   int
		progressPct int
		wantLimit   int
		wantPassed  int
	}{
		{"fresh round", 20, 0, 20, 0},
		{"quarter done", 15, 25, 20, 5},
		{"half done", 10, 50, 20, 10},
		{"uneven split", 19, 5, 20, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			c := NewCountdown(clock, nil, nil)
			c.Sync(tt.remaining, tt.progressPct)
			if got := c.TimeLimit(); got != tt.wantLimit {
				t.Errorf("TimeLimit() = %d, want %d", got, tt.wantLimit)
			}
			if got := c.TimePassed(); got != tt.wantPassed {
				t.Errorf("TimePassed() = %d, want %d", got, tt.wantPassed)
			}
			if got := c.TimeLeft(); got != tt.wantLimit-tt.wantPassed {
				t.Errorf("TimeLeft() = %d, want %d", got, tt.wantLimit-tt.wantPassed)
			}
			c.Stop()
		})
	}
}

func TestSyncZeroRemainingExpiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := 0
	c := NewCountdown(clock, nil, func() { expired++ })

	c.Sync(0, 0)
	if c.Running() {
		t.Error("countdown should not be running after zero sync")
	}
	if expired != 1 {
		t.Errorf("onExpire fired %d times, want 1", expired)
	}
	if c.TimeLeft() != 0 {
		t.Errorf("TimeLeft() = %d, want 0", c.TimeLeft())
	}
}

func TestSyncWithinToleranceKeepsRunningLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 16)
	c := NewCountdown(clock, func(left int) { ticks <- left }, nil)

	c.Sync(20, 0)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if got := waitTick(t, ticks); got != 19 {
		t.Fatalf("first tick left = %d, want 19", got)
	}

	// Server reports elapsed=1 while we are at timePassed=1: drift 0, the
	// running loop must not be restarted.
	c.Sync(19, 5)
	if got := c.TimePassed(); got != 1 {
		t.Errorf("TimePassed() = %d after in-tolerance sync, want 1", got)
	}

	// The original loop keeps ticking from where it was.
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if got := waitTick(t, ticks); got != 18 {
		t.Errorf("tick after in-tolerance sync left = %d, want 18", got)
	}
	c.Stop()
}

func TestSyncDriftRestartsLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 16)
	c := NewCountdown(clock, func(left int) { ticks <- left }, nil)

	c.Sync(20, 0)

	// Server says the round is half over: elapsed=10 vs local 0, drift >= 2.
	c.Sync(10, 50)
	if got := c.TimeLimit(); got != 20 {
		t.Errorf("TimeLimit() = %d, want 20", got)
	}
	if got := c.TimeLeft(); got != 10 {
		t.Errorf("TimeLeft() = %d, want exactly 10", got)
	}

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if got := waitTick(t, ticks); got != 9 {
		t.Errorf("tick after restart left = %d, want 9", got)
	}
	c.Stop()
}

func TestCountdownExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 16)
	done := make(chan struct{}, 1)
	c := NewCountdown(clock, func(left int) { ticks <- left }, func() { done <- struct{}{} })

	c.Sync(2, 0)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if got := waitTick(t, ticks); got != 1 {
		t.Fatalf("tick = %d, want 1", got)
	}
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if got := waitTick(t, ticks); got != 0 {
		t.Fatalf("tick = %d, want 0", got)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onExpire never fired")
	}
	if c.Running() {
		t.Error("countdown still running after expiry")
	}
}

func TestSyncClampsMalformedInput(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCountdown(clock, nil, nil)

	c.Sync(-5, 0)
	if c.Running() {
		t.Error("negative remaining must not start a loop")
	}
	c.Sync(10, -20)
	if got := c.TimePassed(); got != 0 {
		t.Errorf("TimePassed() = %d with negative progress, want 0", got)
	}
	c.Stop()

	c.Sync(10, 150)
	if c.Running() {
		t.Error("progress >= 100 must not start a loop")
	}
}
