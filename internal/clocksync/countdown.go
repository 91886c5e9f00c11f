package clocksync

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DriftTolerance is the maximum divergence, in seconds, between the locally
// ticked elapsed time and the server-reported elapsed time before a running
// countdown is restarted.
const DriftTolerance = 2

// Countdown is a locally ticking round timer that is periodically
// resynchronized from server pushes. The server reports the remaining time
// and how far through the round it is; the original time limit and elapsed
// portion are back-computed from that pair so the local tick can continue
// smoothly between pushes.
type Countdown struct {
	mu    sync.Mutex
	clock clockwork.Clock

	timeLimit  int
	timePassed int

	onTick   func(timeLeft int)
	onExpire func()

	// cancel is non-nil while a tick loop is running. At most one loop is
	// live at any time.
	cancel chan struct{}
}

// NewCountdown creates a countdown driven by the given clock. onTick is
// invoked once per second with the updated time left; onExpire fires when the
// countdown reaches zero. Either callback may be nil.
func NewCountdown(clock clockwork.Clock, onTick func(timeLeft int), onExpire func()) *Countdown {
	return &Countdown{
		clock:    clock,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Sync resynchronizes the countdown from a server push. remaining is the
// server-reported remaining time in seconds and progressPct the completion
// percentage of the round. If a tick loop is already running it is only
// restarted when the drift between local and server elapsed time reaches
// DriftTolerance; smaller divergence leaves the running loop untouched so the
// displayed tick never stutters on jittery pushes.
func (c *Countdown) Sync(remaining, progressPct int) {
	if remaining <= 0 {
		c.expire()
		return
	}
	if progressPct < 0 {
		progressPct = 0
	}
	if progressPct >= 100 {
		c.expire()
		return
	}

	timeLimit := remaining
	if progressPct > 0 {
		timeLimit = int(math.Round(float64(remaining) / float64(100-progressPct) * 100))
	}
	elapsed := int(math.Round(float64(progressPct) / 100 * float64(timeLimit)))

	c.mu.Lock()
	if c.cancel != nil {
		if abs(elapsed-c.timePassed) < DriftTolerance {
			c.mu.Unlock()
			return
		}
		close(c.cancel)
		c.cancel = nil
	}

	c.timeLimit = timeLimit
	c.timePassed = elapsed

	cancel := make(chan struct{})
	c.cancel = cancel
	ticker := c.clock.NewTicker(time.Second)
	c.mu.Unlock()

	log.Debug().
		Int("time_limit", timeLimit).
		Int("elapsed", elapsed).
		Msg("countdown resynced")

	go c.run(cancel, ticker)
}

func (c *Countdown) run(cancel chan struct{}, ticker clockwork.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.cancel != cancel {
				c.mu.Unlock()
				return
			}
			c.timePassed++
			left := c.timeLimit - c.timePassed
			expired := left <= 0
			if expired {
				close(c.cancel)
				c.cancel = nil
			}
			onTick := c.onTick
			onExpire := c.onExpire
			c.mu.Unlock()

			if onTick != nil {
				onTick(left)
			}
			if expired {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// expire stops any running loop and drives the countdown straight to zero.
func (c *Countdown) expire() {
	c.mu.Lock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
	c.timePassed = c.timeLimit
	onExpire := c.onExpire
	c.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

// Stop cancels the running tick loop, if any, without firing onExpire.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

// Running reports whether a tick loop is currently live.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// TimeLeft returns the seconds remaining in the current round.
func (c *Countdown) TimeLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLimit - c.timePassed
}

// TimeLimit returns the back-computed full duration of the current round.
func (c *Countdown) TimeLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLimit
}

// TimePassed returns the locally tracked elapsed seconds.
func (c *Countdown) TimePassed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timePassed
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
