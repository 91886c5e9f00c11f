package game

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

// SlotState is the lifecycle state of one betting slot.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotQueued
	SlotProcessing
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotQueued:
		return "QUEUED"
	case SlotProcessing:
		return "PROCESSING"
	case SlotSubmitted:
		return "SUBMITTED"
	default:
		return "EMPTY"
	}
}

// Action labels shown on a slot's button.
const (
	LabelNext    = "Next"
	LabelPlace   = "Place"
	LabelCancel  = "Cancel"
	LabelCashout = "Cashout"
)

// MinAutoCashoutPrice is the lowest multiplier an auto-cashout can target.
const MinAutoCashoutPrice = 1.10

// PriceStep is the increment applied by the auto-cashout price nudge buttons.
const PriceStep = 0.01

// Slot is one fixed betting position, reused every round.
type Slot struct {
	ID               int       `json:"id"`
	State            SlotState `json:"state"`
	Label            string    `json:"label"`
	BetSize          int64     `json:"betSize"`
	AutoBet          bool      `json:"autoBet"`
	AutoCashout      bool      `json:"autoCashout"`
	AutoCashoutPrice float64   `json:"autoCashoutPrice"`
	Visible          bool      `json:"visible"`
	Enabled          bool      `json:"enabled"`
	PartialCashedOut bool      `json:"partialCashedOut"`
	WinLose          int64     `json:"winLose"`

	// cashoutSent latches after a cashout request leaves for this slot so a
	// rising price cannot fire the same fire-and-forget request twice before
	// the acknowledgement arrives. Cleared on reset.
	cashoutSent bool
}

// Stake is one slot's contribution to a round-close submit batch.
type Stake struct {
	SlotID int
	Size   int64
}

// SubmitFunc receives the stakes of all processing slots at round close and
// is expected to issue a single order-creation request for them.
type SubmitFunc func(stakes []Stake)

// CashoutFunc sends a cashout request for a slot over the realtime channel.
// It is fire-and-forget; the acknowledgement arrives later as a push event.
type CashoutFunc func(slotID int, price float64, partial bool)

// SlotBook owns the fixed array of betting slots and drives their lifecycle:
// EMPTY -> QUEUED -> PROCESSING -> SUBMITTED -> EMPTY, with QUEUED -> EMPTY
// on cancel. PROCESSING doubles as the in-flight marker: only one submit
// batch can exist per round because queued slots move to PROCESSING exactly
// once, at round close.
type SlotBook struct {
	mu      sync.Mutex
	slots   []*Slot
	price   float64
	notify  Notifier
	submit  SubmitFunc
	cashout CashoutFunc
}

// NewSlotBook creates count slots with the given default bet size.
func NewSlotBook(count int, defaultBetSize int64, notify Notifier, submit SubmitFunc, cashout CashoutFunc) *SlotBook {
	if notify == nil {
		notify = NopNotifier{}
	}
	b := &SlotBook{
		notify:  notify,
		submit:  submit,
		cashout: cashout,
	}
	for i := 1; i <= count; i++ {
		b.slots = append(b.slots, &Slot{
			ID:               i,
			State:            SlotEmpty,
			Label:            LabelNext,
			BetSize:          defaultBetSize,
			AutoCashoutPrice: MinAutoCashoutPrice,
			Visible:          true,
			Enabled:          true,
		})
	}
	return b
}

func (b *SlotBook) slot(id int) *Slot {
	if id < 1 || id > len(b.slots) {
		return nil
	}
	return b.slots[id-1]
}

// Enqueue queues a bet on the slot for the next round close. Only an empty
// slot can be queued; anything else is a no-op.
func (b *SlotBook) Enqueue(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil || s.State != SlotEmpty {
		return
	}
	s.State = SlotQueued
	s.Label = LabelCancel
}

// Cancel withdraws a queued bet. Only a queued slot can be cancelled.
func (b *SlotBook) Cancel(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil || s.State != SlotQueued {
		return
	}
	s.State = SlotEmpty
	s.Label = LabelNext
}

// Reset returns a slot to its idle state. Idempotent.
func (b *SlotBook) Reset(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(id)
}

func (b *SlotBook) resetLocked(id int) {
	s := b.slot(id)
	if s == nil {
		return
	}
	s.State = SlotEmpty
	s.Label = LabelNext
	s.WinLose = 0
	s.PartialCashedOut = false
	s.Enabled = true
	s.cashoutSent = false
}

// HandleTick reacts to the countdown. In the open phase auto-bet slots queue
// themselves just before close, and at timeLeft <= 1 all queued slots are
// moved to processing and submitted as one batch.
func (b *SlotBook) HandleTick(timeLeft int, state State) {
	b.mu.Lock()

	if state != StateCashout {
		for _, s := range b.slots {
			if s.Label != LabelCashout {
				s.Enabled = true
			}
		}
	}

	if state != StateOpen {
		b.mu.Unlock()
		return
	}

	if timeLeft >= 1 && timeLeft <= 2 {
		for _, s := range b.slots {
			if s.AutoBet && s.State == SlotEmpty {
				s.State = SlotQueued
				s.Label = LabelCancel
			}
			s.WinLose = 0
		}
	}

	if timeLeft > 1 {
		b.mu.Unlock()
		return
	}

	for _, s := range b.slots {
		if s.Label == LabelPlace {
			s.Enabled = false
		}
	}

	stakes, submit := b.collectStakesLocked()
	b.mu.Unlock()

	if submit != nil {
		submit(stakes)
	}
}

// collectStakesLocked moves queued slots to processing and gathers their
// stakes. A queued slot without a stake sends no order, so no response would
// ever release it from processing; it resets instead.
func (b *SlotBook) collectStakesLocked() ([]Stake, SubmitFunc) {
	var stakes []Stake
	for _, s := range b.slots {
		if s.State != SlotQueued {
			continue
		}
		if s.BetSize <= 0 {
			b.resetLocked(s.ID)
			continue
		}
		s.State = SlotProcessing
		stakes = append(stakes, Stake{SlotID: s.ID, Size: s.BetSize})
	}
	if len(stakes) == 0 {
		return nil, nil
	}
	return stakes, b.submit
}

// MarkSubmitted records a per-order success: the slot holds a live bet and
// its action becomes cashout. Also used to repair slot state from a pushed
// order list after a reconnect.
func (b *SlotBook) MarkSubmitted(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil {
		return
	}
	s.State = SlotSubmitted
	s.Label = LabelCashout
}

// FailOrder records a per-order rejection: only the affected slot resets,
// and the failure is surfaced to the player.
func (b *SlotBook) FailOrder(id int, message string) {
	b.mu.Lock()
	b.resetLocked(id)
	b.mu.Unlock()
	b.notify.Notify(NotifyError, fmt.Sprintf("Order #%d failed: %s", id, message))
}

// FailBatch handles a transport-level submit failure: every processing or
// submitted slot resets and the player gets a single notification.
func (b *SlotBook) FailBatch(message string) {
	b.mu.Lock()
	for _, s := range b.slots {
		if s.State == SlotProcessing || s.State == SlotSubmitted {
			b.resetLocked(s.ID)
		}
	}
	b.mu.Unlock()
	b.notify.Notify(NotifyError, message)
}

// RequestCashout sends a manual cashout for a submitted slot. Only valid
// while the game is in the cashout phase.
func (b *SlotBook) RequestCashout(id int, state State, partial bool) {
	b.mu.Lock()
	s := b.slot(id)
	if s == nil || s.State != SlotSubmitted || state != StateCashout {
		b.mu.Unlock()
		return
	}
	if !partial {
		if s.cashoutSent {
			b.mu.Unlock()
			return
		}
		s.cashoutSent = true
	}
	price := b.price
	cashout := b.cashout
	b.mu.Unlock()

	if cashout != nil {
		cashout(id, price, partial)
	}
}

// HandleCashoutAck applies a server cashout acknowledgement. A partial
// cashout only flags the slot; a full cashout resets it.
func (b *SlotBook) HandleCashoutAck(id int, partial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil {
		return
	}
	if partial {
		s.PartialCashedOut = true
		s.cashoutSent = false
		return
	}
	b.resetLocked(id)
}

// UpdatePrice records a new live multiplier, recomputes every submitted
// slot's potential win/lose amount, and fires auto-cashouts whose target the
// price has crossed. Slots are evaluated in index order and each fires at
// most once per bet.
func (b *SlotBook) UpdatePrice(price float64) {
	b.mu.Lock()
	b.price = price

	var fired []int
	for _, s := range b.slots {
		if s.State != SlotSubmitted {
			continue
		}
		s.WinLose = int64(math.Round(float64(s.BetSize)*price)) - s.BetSize
		if s.AutoCashout && !s.cashoutSent && price >= s.AutoCashoutPrice {
			s.cashoutSent = true
			fired = append(fired, s.ID)
		}
	}
	cashout := b.cashout
	b.mu.Unlock()

	for _, id := range fired {
		log.Debug().Int("slot", id).Float64("price", price).Msg("auto cashout triggered")
		if cashout != nil {
			cashout(id, price, false)
		}
	}
}

// EnterOpen applies the open-phase transition: any slot still submitted from
// the previous round is force-reset, idle slots switch from Next to Place,
// and every slot becomes visible.
func (b *SlotBook) EnterOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.slots {
		if s.State == SlotSubmitted {
			b.resetLocked(s.ID)
		}
	}
	for _, s := range b.slots {
		if s.Label == LabelNext {
			s.Label = LabelPlace
		}
		s.Visible = true
	}
}

// EnterCashout applies the cashout-phase transition: unengaged action labels
// revert from Place to Next and all slots are re-enabled.
func (b *SlotBook) EnterCashout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.slots {
		if s.Label == LabelPlace {
			s.Label = LabelNext
		}
		s.Visible = true
		s.Enabled = true
	}
}

// EnterClosed applies the closed-phase transition: any submitted slot is
// force-reset.
func (b *SlotBook) EnterClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.slots {
		if s.State == SlotSubmitted {
			b.resetLocked(s.ID)
		}
	}
}

// Price returns the last live multiplier seen.
func (b *SlotBook) Price() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.price
}

// Slots returns a copy of the current slot states.
func (b *SlotBook) Slots() []Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Slot, len(b.slots))
	for i, s := range b.slots {
		out[i] = *s
	}
	return out
}

// SlotState returns the lifecycle state of one slot.
func (b *SlotBook) SlotState(id int) SlotState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil {
		return SlotEmpty
	}
	return s.State
}

// SetAutoBet toggles automatic bet queueing for a slot.
func (b *SlotBook) SetAutoBet(id int, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(id); s != nil {
		s.AutoBet = on
	}
}

// SetAutoCashout toggles the auto-cashout trigger for a slot.
func (b *SlotBook) SetAutoCashout(id int, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(id); s != nil {
		s.AutoCashout = on
	}
}

// SetAutoCashoutPrice sets the auto-cashout target, clamped to the minimum.
func (b *SlotBook) SetAutoCashoutPrice(id int, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil {
		return
	}
	if price < MinAutoCashoutPrice {
		price = MinAutoCashoutPrice
	}
	s.AutoCashoutPrice = round2(price)
}

// IncrementAutoCashoutPrice nudges the auto-cashout target up one step.
func (b *SlotBook) IncrementAutoCashoutPrice(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(id); s != nil {
		s.AutoCashoutPrice = round2(s.AutoCashoutPrice + PriceStep)
	}
}

// DecrementAutoCashoutPrice nudges the auto-cashout target down one step,
// stopping at the minimum.
func (b *SlotBook) DecrementAutoCashoutPrice(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.slot(id)
	if s == nil {
		return
	}
	if s.AutoCashoutPrice-PriceStep < MinAutoCashoutPrice {
		return
	}
	s.AutoCashoutPrice = round2(s.AutoCashoutPrice - PriceStep)
}

// SetBetSize sets a slot's stake.
func (b *SlotBook) SetBetSize(id int, size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(id); s != nil && size >= 0 {
		s.BetSize = size
	}
}

// IncrementBetSize adds amount to a slot's stake.
func (b *SlotBook) IncrementBetSize(id int, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(id); s != nil && amount > 0 {
		s.BetSize += amount
	}
}

// DecrementBetSize subtracts amount from a slot's stake, refusing to go to
// zero or below.
func (b *SlotBook) DecrementBetSize(id int, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.slot(id); s != nil && s.BetSize-amount > 0 {
		s.BetSize -= amount
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
