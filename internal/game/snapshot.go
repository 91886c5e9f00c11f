package game

import (
	"strconv"
	"strings"
)

// RoundState is the wire value the server attaches to every snapshot.
type RoundState int

const (
	RoundOpen    RoundState = 1
	RoundCashout RoundState = 2
	RoundClosed  RoundState = 3
	RoundSettled RoundState = 4
)

// State is the derived game state the UI keys off.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateCashout
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCashout:
		return "CASHOUT"
	default:
		return "CLOSED"
	}
}

// DerivedState maps the wire round state onto the derived game state.
// Unknown wire values map to CLOSED, the safe default.
func (r RoundState) DerivedState() State {
	switch r {
	case RoundOpen:
		return StateOpen
	case RoundCashout:
		return StateCashout
	default:
		return StateClosed
	}
}

// ordinal orders the round states within a single round so a regression
// (e.g. a CASHOUT push arriving after CLOSED for the same round id) can be
// detected and dropped as stale.
func (r RoundState) ordinal() int {
	switch r {
	case RoundOpen:
		return 1
	case RoundCashout:
		return 2
	case RoundClosed, RoundSettled:
		return 3
	default:
		return 0
	}
}

// Player is one entry of a snapshot's players list. For crash games the
// first player's description carries the live multiplier as a string.
type Player struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

// MarketSelection is one runner of the snapshot's market.
type MarketSelection struct {
	ID        int64   `json:"id"`
	BackPrice float64 `json:"backPrice"`
	Status    string  `json:"status"`
}

// Snapshot is the authoritative round state pushed by the server.
type Snapshot struct {
	ID                   string            `json:"id"`
	State                RoundState        `json:"state"`
	RemainingTime        string            `json:"remainingTime"`
	CompletionPercentage float64           `json:"completionPercentage"`
	Players              []Player          `json:"players"`
	MarketSelections     []MarketSelection `json:"marketSelections"`
}

// RemainingSeconds extracts the seconds component of the server's
// "HH:MM:SS" remaining-time string. A bare integer is accepted as-is.
func (s *Snapshot) RemainingSeconds() int {
	parts := strings.Split(s.RemainingTime, ":")
	sec, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || sec < 0 {
		return 0
	}
	return sec
}

// LivePrice parses the current multiplier from the first player's
// description. ok is false when the snapshot carries no parsable price.
func (s *Snapshot) LivePrice() (price float64, ok bool) {
	if len(s.Players) == 0 {
		return 0, false
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(s.Players[0].Description), 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// BackPrice returns the back price of the given selection, or 0 when the
// selection is missing from the snapshot.
func (s *Snapshot) BackPrice(selectionID int64) float64 {
	for _, sel := range s.MarketSelections {
		if sel.ID == selectionID {
			return sel.BackPrice
		}
	}
	return 0
}

// IsWinner reports whether the given selection is flagged as the round winner.
func (s *Snapshot) IsWinner(selectionID int64) bool {
	for _, sel := range s.MarketSelections {
		if sel.ID == selectionID && sel.Status == "WINNER" {
			return true
		}
	}
	return false
}
