package game

import (
	"errors"
	"sync"
)

var (
	// ErrRoundNotOpen is returned when a chip is placed or withdrawn outside
	// the betting window.
	ErrRoundNotOpen = errors.New("wait for next round")
	// ErrNoChipSelected is returned when no chip denomination is active.
	ErrNoChipSelected = errors.New("no chip selected")
)

// ChipOrder is one chip placed on a selection in a multi-selection game
// variant. Chips accumulate during the open phase and are consolidated into
// a single bulk submit at round close.
type ChipOrder struct {
	Selection  int64   `json:"selection"`
	RunnerName string  `json:"runnerName"`
	Price      float64 `json:"price"`
	Size       int64   `json:"size"`
}

// ChipTray collects chip orders for the current round. Unlike the slot book
// it has no per-entry lifecycle: the whole tray submits once and resets when
// the round closes.
type ChipTray struct {
	mu        sync.Mutex
	orders    []ChipOrder
	submitted bool
}

// NewChipTray creates an empty tray.
func NewChipTray() *ChipTray {
	return &ChipTray{}
}

// Place adds a chip. Rejected once the round has left the open phase or in
// the final second before close.
func (t *ChipTray) Place(o ChipOrder, state State, timeLeft int) error {
	if state != StateOpen || timeLeft < 2 {
		return ErrRoundNotOpen
	}
	if o.Size <= 0 {
		return ErrNoChipSelected
	}
	if o.Price <= 0 {
		return ErrRoundNotOpen
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders = append(t.orders, o)
	return nil
}

// Undo removes the most recently placed chip.
func (t *ChipTray) Undo(state State, timeLeft int) error {
	if state != StateOpen || timeLeft < 2 {
		return ErrRoundNotOpen
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.orders); n > 0 {
		t.orders = t.orders[:n-1]
	}
	return nil
}

// TotalStaked returns the sum of all placed chip sizes.
func (t *ChipTray) TotalStaked() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum int64
	for _, o := range t.orders {
		sum += o.Size
	}
	return sum
}

// StakedOn returns the total placed on one runner.
func (t *ChipTray) StakedOn(runnerName string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum int64
	for _, o := range t.orders {
		if o.RunnerName == runnerName {
			sum += o.Size
		}
	}
	return sum
}

// Drain consolidates the tray into one order per selection, summing sizes,
// and marks the tray submitted so the round-close trigger fires only once.
// Returns nil if the tray is empty or already submitted this round.
func (t *ChipTray) Drain() []ChipOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.submitted || len(t.orders) == 0 {
		return nil
	}
	t.submitted = true

	byRunner := make(map[string]*ChipOrder)
	var order []string
	for _, o := range t.orders {
		if agg, ok := byRunner[o.RunnerName]; ok {
			agg.Size += o.Size
			continue
		}
		c := o
		byRunner[o.RunnerName] = &c
		order = append(order, o.RunnerName)
	}

	out := make([]ChipOrder, 0, len(order))
	for _, name := range order {
		out = append(out, *byRunner[name])
	}
	return out
}

// Reset clears the tray for the next round; also used when a bulk submit
// fails so the player can re-place.
func (t *ChipTray) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders = nil
	t.submitted = false
}

// Orders returns a copy of the currently placed chips.
func (t *ChipTray) Orders() []ChipOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ChipOrder, len(t.orders))
	copy(out, t.orders)
	return out
}
