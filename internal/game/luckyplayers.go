package game

import (
	"sort"
	"sync"
)

// CommunityOrder is one pushed community bet shown on the lucky-players
// leaderboard. A bet arrives first with no price and no result; a later push
// with the same user and size settles it.
type CommunityOrder struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	WinLose  float64 `json:"winLose"`
	Rank     int     `json:"rank"`
}

// Leaderboard accumulates community orders for the current round. Amounts
// are scaled into the viewer's currency on the way in. Cleared every time a
// new round opens.
type Leaderboard struct {
	mu           sync.Mutex
	currencyRate float64
	entries      []*CommunityOrder
}

// NewLeaderboard creates a leaderboard scaling amounts by the given rate.
// A rate of 0 is treated as 1.
func NewLeaderboard(currencyRate float64) *Leaderboard {
	if currencyRate <= 0 {
		currencyRate = 1
	}
	return &Leaderboard{currencyRate: currencyRate}
}

// Apply records a community order push. An unsettled push (no price, no
// result) appends a new entry; a settlement push fills the matching open
// entry in place.
func (l *Leaderboard) Apply(o CommunityOrder) {
	o.Size = round2(o.Size / l.currencyRate)
	o.WinLose = round2(o.WinLose / l.currencyRate)

	l.mu.Lock()
	defer l.mu.Unlock()

	if o.Price == 0 && o.WinLose == 0 {
		entry := o
		l.entries = append(l.entries, &entry)
		l.rankLocked()
		return
	}

	for _, e := range l.entries {
		if e.UserID == o.UserID && e.Size == o.Size && e.WinLose == 0 {
			e.Price = o.Price
			e.WinLose = o.WinLose
			return
		}
	}
}

// rankLocked orders entries by stake size and assigns each username a rank
// by its first appearance in that order, so multiple bets by one player
// stay grouped.
func (l *Leaderboard) rankLocked() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].Size > l.entries[j].Size
	})

	ranks := make(map[string]int)
	next := 1
	for _, e := range l.entries {
		if _, seen := ranks[e.Username]; !seen {
			ranks[e.Username] = next
			next++
		}
		e.Rank = ranks[e.Username]
	}

	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].Rank < l.entries[j].Rank
	})
}

// Clear drops all entries; called when a new round opens.
func (l *Leaderboard) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a copy of the current leaderboard.
func (l *Leaderboard) Entries() []CommunityOrder {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CommunityOrder, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}
