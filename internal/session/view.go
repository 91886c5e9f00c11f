package session

import (
	"github.com/bpexchange/crashclient/internal/game"
	"github.com/bpexchange/crashclient/internal/orders"
)

// View is a point-in-time copy of everything a UI needs to render the
// session.
type View struct {
	GameID     string `json:"gameId"`
	Connection string `json:"connection"`

	State   string  `json:"state"`
	RoundID string  `json:"roundId"`
	Price   float64 `json:"price"`
	FunFact string  `json:"funFact"`

	TimeLeft  int `json:"timeLeft"`
	TimeLimit int `json:"timeLimit"`

	MemberCount    int   `json:"memberCount"`
	SignalStrength int   `json:"signalStrength"`
	LatencyMS      int64 `json:"latencyMs"`

	Slots        []game.Slot           `json:"slots"`
	LuckyPlayers []game.CommunityOrder `json:"luckyPlayers"`
	Chips        []game.ChipOrder      `json:"chips"`
	ChipsStaked  int64                 `json:"chipsStaked"`

	ShortResults  []ShortResult        `json:"shortResults"`
	Positions     []orders.Position    `json:"positions"`
	Matched       []orders.PushedOrder `json:"matched"`
	Unmatched     []orders.PushedOrder `json:"unmatched"`
	Notifications []Notification       `json:"notifications"`
}

// View assembles the current render state.
func (s *Session) View() View {
	s.mu.Lock()
	memberCount := s.memberCount
	signal := s.signalStrength
	latency := s.latency
	connState := s.connState
	shortResults := make([]ShortResult, len(s.shortResults))
	copy(shortResults, s.shortResults)
	positions := make([]orders.Position, len(s.positions))
	copy(positions, s.positions)
	s.mu.Unlock()

	return View{
		GameID:         s.opts.GameID,
		Connection:     connState.String(),
		State:          s.machine.State().String(),
		RoundID:        s.machine.RoundID(),
		Price:          s.book.Price(),
		FunFact:        s.machine.FunFact(),
		TimeLeft:       s.countdown.TimeLeft(),
		TimeLimit:      s.countdown.TimeLimit(),
		MemberCount:    memberCount,
		SignalStrength: signal,
		LatencyMS:      latency.Milliseconds(),
		Slots:          s.book.Slots(),
		LuckyPlayers:   s.lucky.Entries(),
		Chips:          s.chips.Orders(),
		ChipsStaked:    s.chips.TotalStaked(),
		ShortResults:   shortResults,
		Positions:      positions,
		Matched:        s.batcher.Matched(),
		Unmatched:      s.batcher.Unmatched(),
		Notifications:  s.feed.Recent(),
	}
}
