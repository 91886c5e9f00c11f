package game

import (
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
)

// defaultPrevPrice is assumed when no earlier snapshot exists, so the very
// first push at the base multiplier does not count as a price change.
const defaultPrevPrice = 1.1

// Machine derives the game state from server snapshots and drives the slot
// book, leaderboard and chip tray through the round transitions. It is the
// single entry point for authoritative server state.
type Machine struct {
	mu sync.Mutex

	book  *SlotBook
	lucky *Leaderboard
	chips *ChipTray

	state       State
	snapshot    *Snapshot
	lastRoundID string
	lastOrdinal int
	prevPrice   float64
	funFact     string

	// onRoundState forwards the raw wire state to the animation driver.
	onRoundState func(RoundState)
}

// NewMachine wires a state machine over the given collaborators. lucky,
// chips and onRoundState may be nil.
func NewMachine(book *SlotBook, lucky *Leaderboard, chips *ChipTray, onRoundState func(RoundState)) *Machine {
	return &Machine{
		book:         book,
		lucky:        lucky,
		chips:        chips,
		prevPrice:    defaultPrevPrice,
		funFact:      funFacts[len(funFacts)-1],
		onRoundState: onRoundState,
	}
}

// OnSnapshot applies a server snapshot. Snapshots that regress within the
// same round are stale echoes and are dropped.
func (m *Machine) OnSnapshot(snap *Snapshot) {
	if snap == nil || len(snap.Players) == 0 {
		return
	}
	if snap.State.ordinal() == 0 {
		log.Debug().Str("round", snap.ID).Int("state", int(snap.State)).Msg("snapshot with unknown state ignored")
		return
	}

	m.mu.Lock()
	if snap.ID == m.lastRoundID && snap.State.ordinal() < m.lastOrdinal {
		m.mu.Unlock()
		log.Warn().
			Str("round", snap.ID).
			Int("state", int(snap.State)).
			Msg("stale snapshot dropped")
		return
	}

	var priceChanged bool
	price, ok := snap.LivePrice()
	if ok && price != m.prevPrice {
		m.prevPrice = price
		priceChanged = true
	}

	newState := snap.State.DerivedState()
	m.state = newState
	m.snapshot = snap
	m.lastRoundID = snap.ID
	m.lastOrdinal = snap.State.ordinal()
	if newState == StateClosed {
		m.funFact = funFacts[rand.Intn(len(funFacts))]
	}
	onRoundState := m.onRoundState
	m.mu.Unlock()

	if priceChanged {
		m.book.UpdatePrice(price)
	}

	switch newState {
	case StateOpen:
		if m.lucky != nil {
			m.lucky.Clear()
		}
		m.book.EnterOpen()
	case StateCashout:
		log.Debug().Str("round", snap.ID).Msg("cashout phase started")
		m.book.EnterCashout()
	case StateClosed:
		m.book.EnterClosed()
		if m.chips != nil {
			m.chips.Reset()
		}
	}

	if onRoundState != nil {
		onRoundState(snap.State)
	}
}

// ApplyPricePush applies a dedicated price push (as opposed to the price
// embedded in a snapshot).
func (m *Machine) ApplyPricePush(price float64) {
	m.mu.Lock()
	m.prevPrice = price
	m.mu.Unlock()
	m.book.UpdatePrice(price)
}

// State returns the current derived game state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RoundID returns the id of the current round, which doubles as the market
// id on outgoing orders.
func (m *Machine) RoundID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRoundID
}

// Snapshot returns the last accepted snapshot, or nil before the first push.
func (m *Machine) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// FunFact returns the string shown between rounds.
func (m *Machine) FunFact() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.funFact
}

var funFacts = []string{
	"Sometimes you lose, sometimes you win. Try again!",
	"A player cashed out 4.5 lakhs from a single bet.",
	"The best day to play is.. Every day!",
	"The highest consecutive days played by a player is 12.",
	"Chances of winning are high when you play more.",
	"The average bet per round is 500.",
	"Inviting your friend doubles your combined chances of winning.",
}
