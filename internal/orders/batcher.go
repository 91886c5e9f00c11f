package orders

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultFlushInterval is the cadence at which buffered order deltas are
	// applied; bursts of pushes collapse into one list update per interval.
	DefaultFlushInterval = 250 * time.Millisecond
	// DefaultMatchedCap bounds the matched list to the most recent entries.
	DefaultMatchedCap = 100
)

// Batcher buffers realtime order deltas and applies them to the matched and
// unmatched lists on a fixed cadence, so a burst of pushes produces one list
// update instead of a re-render storm. Pushes scoped to a different event
// than the active one are dropped: they are stragglers racing a market
// change.
type Batcher struct {
	mu            sync.Mutex
	clock         clockwork.Clock
	interval      time.Duration
	matchedCap    int
	queue         []PushedOrder
	matched       []PushedOrder
	unmatched     []PushedOrder
	activeEventID string
}

// NewBatcher creates a batcher with the given flush interval and matched
// cap; zero values select the defaults.
func NewBatcher(clock clockwork.Clock, interval time.Duration, matchedCap int) *Batcher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if matchedCap <= 0 {
		matchedCap = DefaultMatchedCap
	}
	return &Batcher{
		clock:      clock,
		interval:   interval,
		matchedCap: matchedCap,
	}
}

// Run flushes the buffer on the configured cadence until ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) {
	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.Flush()
		}
	}
}

// Enqueue buffers one pushed order delta for the next flush.
func (b *Batcher) Enqueue(o PushedOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, o)
}

// Flush drains the buffer and applies each delta: the order is removed from
// both lists by identity, then re-inserted at the front of whichever lists
// its sizes place it in. The matched list is truncated to the cap afterward.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return
	}
	queue := b.queue
	b.queue = nil

	for _, o := range queue {
		if o.ID == "" {
			continue
		}
		if o.EventID != b.activeEventID {
			log.Debug().
				Str("order", o.ID).
				Str("event", o.EventID).
				Msg("dropped order push for inactive event")
			continue
		}

		b.unmatched = removeByID(b.unmatched, o.ID)
		b.matched = removeByID(b.matched, o.ID)

		if o.MatchedSize > 0 {
			b.matched = append([]PushedOrder{o}, b.matched...)
		}
		if o.UnmatchedSize-o.MatchedSize > 0 {
			b.unmatched = append([]PushedOrder{o}, b.unmatched...)
		}
	}

	if len(b.matched) > b.matchedCap {
		b.matched = b.matched[:b.matchedCap]
	}
}

// SetActiveEvent switches the batcher to a new event scope, clearing both
// lists and any buffered deltas from the previous market.
func (b *Batcher) SetActiveEvent(eventID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeEventID = eventID
	b.queue = nil
	b.matched = nil
	b.unmatched = nil
}

// ReplaceAll swaps in a full order list, as returned by a poll or pushed on
// reconnect: matched orders are those with any matched size, unmatched
// those with remaining unmatched size.
func (b *Batcher) ReplaceAll(orders []PushedOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.matched = b.matched[:0]
	b.unmatched = b.unmatched[:0]
	for _, o := range orders {
		if o.MatchedSize > 0 {
			b.matched = append(b.matched, o)
		}
		if o.UnmatchedSize-o.MatchedSize > 0 {
			b.unmatched = append(b.unmatched, o)
		}
	}
	if len(b.matched) > b.matchedCap {
		b.matched = b.matched[:b.matchedCap]
	}
}

// Matched returns a copy of the matched list, most recent first.
func (b *Batcher) Matched() []PushedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PushedOrder, len(b.matched))
	copy(out, b.matched)
	return out
}

// Unmatched returns a copy of the unmatched list, most recent first.
func (b *Batcher) Unmatched() []PushedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PushedOrder, len(b.unmatched))
	copy(out, b.unmatched)
	return out
}

func removeByID(list []PushedOrder, id string) []PushedOrder {
	for i, o := range list {
		if o.ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
