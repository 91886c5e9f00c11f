package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bpexchange/crashclient/internal/clocksync"
	"github.com/bpexchange/crashclient/internal/game"
	"github.com/bpexchange/crashclient/internal/orders"
	"github.com/bpexchange/crashclient/internal/realtime"
)

const (
	// memberCountPadding is added to the pushed viewer count before display.
	memberCountPadding = 50
	// shortResultCap bounds the recent-results strip.
	shortResultCap = 20

	submitTimeout = 10 * time.Second
)

// Options configures a game session.
type Options struct {
	GameID         string
	Slots          int
	DefaultBetSize int64
	CurrencyRate   float64

	// FlushInterval and MatchedCap tune the order delta batcher; zero values
	// select its defaults.
	FlushInterval time.Duration
	MatchedCap    int

	// OnSessionExpired fires after the order API rejects the session token,
	// giving the embedder a chance to re-authenticate. Called at most once
	// per expiry, two seconds after the rejection so the failure
	// notification is seen first.
	OnSessionExpired func()
}

// ShortResult is one entry of the recent-results strip.
type ShortResult struct {
	RoundID string  `json:"id"`
	Price   float64 `json:"price"`
}

// Session wires the realtime channel, game state machine, slot book, chip
// tray, countdown, leaderboard and order batcher into one playable client.
type Session struct {
	opts   Options
	clock  clockwork.Clock
	client *orders.Client

	identity   string
	clientSeed uint32
	book       *game.SlotBook
	machine    *game.Machine
	lucky      *game.Leaderboard
	chips      *game.ChipTray
	countdown  *clocksync.Countdown
	batcher    *orders.Batcher
	feed       *Feed

	source realtime.EventSource

	mu             sync.Mutex
	memberCount    int
	signalStrength int
	latency        time.Duration
	connState      realtime.State
	shortResults   []ShortResult
	positions      []orders.Position
	expiredFired   bool

	cancel context.CancelFunc
}

// New creates a session. The realtime transport is attached separately with
// Attach because its handlers come from the session itself.
func New(opts Options, clock clockwork.Clock, client *orders.Client) *Session {
	if opts.Slots <= 0 {
		opts.Slots = 2
	}
	if opts.DefaultBetSize <= 0 {
		opts.DefaultBetSize = 100
	}

	s := &Session{
		opts:       opts,
		clock:      clock,
		client:     client,
		identity:   uuid.NewString(),
		clientSeed: rand.Uint32(),
		feed:       NewFeed(clock),
		lucky:      game.NewLeaderboard(opts.CurrencyRate),
		chips:      game.NewChipTray(),
		batcher:    orders.NewBatcher(clock, opts.FlushInterval, opts.MatchedCap),
	}
	s.book = game.NewSlotBook(opts.Slots, opts.DefaultBetSize, s.feed, s.submitStakes, s.sendCashout)
	s.machine = game.NewMachine(s.book, s.lucky, s.chips, nil)
	s.countdown = clocksync.NewCountdown(clock, s.onTick, s.onCountdownExpired)
	return s
}

// Handlers returns the realtime callbacks the transport should dispatch
// into.
func (s *Session) Handlers() realtime.Handlers {
	return realtime.Handlers{
		OnSnapshot:            s.onSnapshot,
		OnShortResult:         s.onShortResult,
		OnCashoutNotification: s.onCashoutNotification,
		OnCommunityOrder:      s.lucky.Apply,
		OnPrice:               s.machine.ApplyPricePush,
		OnMemberCount:         s.onMemberCount,
		OnOrders:              s.onOrders,
		OnOrderUpdate:         s.batcher.Enqueue,
		OnCashoutAck:          s.onCashoutAck,
		OnLatency:             s.onLatency,
		OnStateChange:         s.onConnState,
	}
}

// Attach binds the realtime transport. Must be called before Start.
func (s *Session) Attach(source realtime.EventSource) {
	s.source = source
}

// Start opens the realtime channel and starts the order batcher.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.batcher.SetActiveEvent(s.opts.GameID)
	go s.batcher.Run(runCtx)

	if err := s.source.Start(runCtx); err != nil {
		cancel()
		return err
	}
	log.Info().Str("game_id", s.opts.GameID).Msg("session started")
	return nil
}

// Stop tears the session down.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.countdown.Stop()
	if s.source != nil {
		s.source.Stop()
	}
	log.Info().Msg("session stopped")
}

func (s *Session) onSnapshot(snap game.Snapshot) {
	s.machine.OnSnapshot(&snap)

	switch s.machine.State() {
	case game.StateOpen:
		s.countdown.Sync(snap.RemainingSeconds(), int(math.Round(snap.CompletionPercentage)))
	default:
		s.countdown.Stop()
	}
}

func (s *Session) onTick(timeLeft int) {
	state := s.machine.State()
	s.book.HandleTick(timeLeft, state)
	if timeLeft <= 1 {
		s.submitChips()
	}
}

func (s *Session) onCountdownExpired() {
	s.onTick(0)
}

// submitStakes sends one round-close batch for the queued slots. Runs in its
// own goroutine because it is called from the countdown tick.
func (s *Session) submitStakes(stakes []game.Stake) {
	roundID := s.machine.RoundID()
	reqs := make([]orders.Request, 0, len(stakes))
	for _, st := range stakes {
		reqs = append(reqs, orders.Request{
			Price:      1,
			Side:       "b",
			MarketID:   roundID,
			ChannelID:  s.opts.GameID,
			Identity:   s.identity,
			Selection:  st.SlotID,
			ClientSeed: s.clientSeed,
			Size:       st.Size,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		results, err := s.client.SubmitGameOrders(ctx, s.opts.GameID, reqs)
		if err != nil {
			s.handleSubmitError(err)
			return
		}

		placed := 0
		for i := range results {
			r := &results[i]
			if r.Success {
				s.book.MarkSubmitted(r.SelectionID())
				placed++
				continue
			}
			s.book.FailOrder(r.SelectionID(), r.Message)
		}
		if placed > 0 {
			s.feed.Notify(game.NotifySuccess, pluralOrders(placed))
		}
	}()
}

func (s *Session) handleSubmitError(err error) {
	if err == orders.ErrUnauthorized {
		s.book.FailBatch("Your session has expired")
		s.fireSessionExpired()
		return
	}
	log.Error().Err(err).Msg("order batch failed")
	s.book.FailBatch("Could not place your bets. Please try again.")
}

// fireSessionExpired invokes the expiry hook once, delayed so the player
// sees the failure notification before any redirect.
func (s *Session) fireSessionExpired() {
	s.mu.Lock()
	if s.expiredFired || s.opts.OnSessionExpired == nil {
		s.mu.Unlock()
		return
	}
	s.expiredFired = true
	s.mu.Unlock()

	go func() {
		s.clock.Sleep(2 * time.Second)
		s.opts.OnSessionExpired()
	}()
}

// submitChips drains the chip tray into one bulk request. The tray latches
// so repeated final-second ticks cannot double-submit.
func (s *Session) submitChips() {
	chips := s.chips.Drain()
	if len(chips) == 0 {
		return
	}

	roundID := s.machine.RoundID()
	reqs := make([]orders.BulkRequest, 0, len(chips))
	for _, c := range chips {
		reqs = append(reqs, orders.BulkRequest{
			Side:       "b",
			Size:       c.Size,
			MarketID:   roundID,
			Price:      c.Price,
			RoundID:    roundID,
			ChannelID:  s.opts.GameID,
			RunnerName: c.RunnerName,
			Identity:   s.identity,
			BetType:    "game",
			Selection:  c.Selection,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		if err := s.client.SubmitBulkOrders(ctx, s.opts.GameID, reqs); err != nil {
			if err == orders.ErrUnauthorized {
				s.fireSessionExpired()
			}
			log.Error().Err(err).Msg("bulk chip submit failed")
			s.feed.Notify(game.NotifyError, "Could not place your chips. Please try again.")
			s.chips.Reset()
			return
		}
		s.feed.Notify(game.NotifySuccess, pluralOrders(len(reqs)))
	}()
}

func (s *Session) sendCashout(slotID int, price float64, partial bool) {
	err := s.source.CashOut(realtime.CashoutRequest{
		GameID:      s.opts.GameID,
		MarketID:    s.machine.RoundID(),
		Price:       price,
		SelectionID: slotID,
		IsPartial:   partial,
	})
	if err != nil {
		log.Error().Err(err).Int("slot", slotID).Msg("cashout send failed")
	}
}

func (s *Session) onShortResult(raw json.RawMessage) {
	var results []ShortResult
	if err := json.Unmarshal(raw, &results); err != nil {
		var single ShortResult
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			log.Debug().Err(err).Msg("unparsable short result")
			return
		}
		s.mu.Lock()
		s.shortResults = append([]ShortResult{single}, s.shortResults...)
		if len(s.shortResults) > shortResultCap {
			s.shortResults = s.shortResults[:shortResultCap]
		}
		s.mu.Unlock()
		return
	}

	if len(results) > shortResultCap {
		results = results[:shortResultCap]
	}
	s.mu.Lock()
	s.shortResults = results
	s.mu.Unlock()
}

func (s *Session) onCashoutNotification(n realtime.Notification) {
	s.feed.Notify(game.NotifySuccess, n.Message)
}

func (s *Session) onMemberCount(count int) {
	s.mu.Lock()
	s.memberCount = count + memberCountPadding
	s.mu.Unlock()
}

// onOrders repairs slot state from the pushed live-order list, covering
// bets whose submit response was lost to a reconnect, and applies any
// position deltas riding on the same push.
func (s *Session) onOrders(push orders.OrdersPush) {
	for _, o := range push.Orders {
		s.book.MarkSubmitted(o.Selection)
	}
	if len(push.Position) > 0 {
		s.applyPositions(push.Position)
	}
}

func (s *Session) applyPositions(raw json.RawMessage) {
	var positions []orders.Position
	if err := json.Unmarshal(raw, &positions); err != nil {
		var single orders.Position
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			log.Debug().Err(err).Msg("unparsable position push")
			return
		}
		positions = []orders.Position{single}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range positions {
		s.positions = upsertPosition(s.positions, p)
	}
}

func upsertPosition(list []orders.Position, p orders.Position) []orders.Position {
	for i, existing := range list {
		if existing.MarketID == p.MarketID && existing.Selection == p.Selection {
			list[i] = p
			return list
		}
	}
	return append(list, p)
}

func (s *Session) onCashoutAck(ack realtime.CashoutAck) {
	s.book.HandleCashoutAck(ack.SelectionID, ack.IsPartial)
}

func (s *Session) onLatency(latency time.Duration, strength int) {
	s.mu.Lock()
	s.latency = latency
	s.signalStrength = strength
	s.mu.Unlock()
}

func (s *Session) onConnState(state realtime.State) {
	s.mu.Lock()
	s.connState = state
	s.mu.Unlock()
}

// PlaceBet queues a bet on the slot for the next round close.
func (s *Session) PlaceBet(slotID int) { s.book.Enqueue(slotID) }

// CancelBet withdraws a queued bet.
func (s *Session) CancelBet(slotID int) { s.book.Cancel(slotID) }

// Cashout requests a full cashout for a live bet.
func (s *Session) Cashout(slotID int) {
	s.book.RequestCashout(slotID, s.machine.State(), false)
}

// CashoutPartial requests a half cashout for a live bet.
func (s *Session) CashoutPartial(slotID int) {
	s.book.RequestCashout(slotID, s.machine.State(), true)
}

// SetAutoBet toggles automatic bet queueing for a slot.
func (s *Session) SetAutoBet(slotID int, on bool) { s.book.SetAutoBet(slotID, on) }

// SetAutoCashout toggles the auto-cashout trigger for a slot.
func (s *Session) SetAutoCashout(slotID int, on bool) { s.book.SetAutoCashout(slotID, on) }

// SetAutoCashoutPrice sets a slot's auto-cashout target multiplier.
func (s *Session) SetAutoCashoutPrice(slotID int, price float64) {
	s.book.SetAutoCashoutPrice(slotID, price)
}

// IncrementAutoCashoutPrice nudges a slot's auto-cashout target up.
func (s *Session) IncrementAutoCashoutPrice(slotID int) { s.book.IncrementAutoCashoutPrice(slotID) }

// DecrementAutoCashoutPrice nudges a slot's auto-cashout target down.
func (s *Session) DecrementAutoCashoutPrice(slotID int) { s.book.DecrementAutoCashoutPrice(slotID) }

// SetBetSize sets a slot's stake.
func (s *Session) SetBetSize(slotID int, size int64) { s.book.SetBetSize(slotID, size) }

// IncrementBetSize adds amount to a slot's stake.
func (s *Session) IncrementBetSize(slotID int, amount int64) {
	s.book.IncrementBetSize(slotID, amount)
}

// DecrementBetSize subtracts amount from a slot's stake.
func (s *Session) DecrementBetSize(slotID int, amount int64) {
	s.book.DecrementBetSize(slotID, amount)
}

// PlaceChip adds a chip to the tray for the current open round.
func (s *Session) PlaceChip(o game.ChipOrder) error {
	return s.chips.Place(o, s.machine.State(), s.countdown.TimeLeft())
}

// UndoChip removes the most recently placed chip.
func (s *Session) UndoChip() error {
	return s.chips.Undo(s.machine.State(), s.countdown.TimeLeft())
}

func pluralOrders(n int) string {
	if n == 1 {
		return "1 order placed"
	}
	return fmt.Sprintf("%d orders placed", n)
}
