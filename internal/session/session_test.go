package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bpexchange/crashclient/internal/game"
	"github.com/bpexchange/crashclient/internal/orders"
	"github.com/bpexchange/crashclient/internal/realtime"
)

type fakeSource struct {
	mu       sync.Mutex
	cashouts []realtime.CashoutRequest
}

func (f *fakeSource) Start(ctx context.Context) error { return nil }
func (f *fakeSource) Stop()                           {}
func (f *fakeSource) State() realtime.State           { return realtime.Connected }

func (f *fakeSource) CashOut(req realtime.CashoutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cashouts = append(f.cashouts, req)
	return nil
}

func (f *fakeSource) recorded() []realtime.CashoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]realtime.CashoutRequest, len(f.cashouts))
	copy(out, f.cashouts)
	return out
}

func openSnapshot(id, price, remaining string, pct float64) game.Snapshot {
	return game.Snapshot{
		ID:                   id,
		State:                game.RoundOpen,
		RemainingTime:        remaining,
		CompletionPercentage: pct,
		Players:              []game.Player{{ID: 1, Description: price}},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func newTestSession(t *testing.T, handler http.Handler) (*Session, *fakeSource, *clockwork.FakeClock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	s := New(Options{GameID: "crash-1", Slots: 2, DefaultBetSize: 100}, clock, orders.NewClient(srv.URL, nil))
	src := &fakeSource{}
	s.Attach(src)
	t.Cleanup(s.Stop)
	return s, src, clock
}

func acceptAll(w http.ResponseWriter, r *http.Request) {
	var reqs []orders.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var results []orders.Result
	for _, req := range reqs {
		results = append(results, orders.Result{
			Success: true,
			Order:   &orders.Placed{ID: "ord", SelectionID: req.Selection, Size: req.Size},
		})
	}
	json.NewEncoder(w).Encode(results)
}

func TestRoundCloseSubmitsQueuedBet(t *testing.T) {
	s, _, clock := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	h.OnSnapshot(openSnapshot("r1", "1.00", "00:00:02", 0))
	s.PlaceBet(1)

	clock.BlockUntil(1)
	clock.Advance(time.Second) // ticks to timeLeft=1, the submit trigger

	waitFor(t, "slot 1 to submit", func() bool {
		slots := s.View().Slots
		return slots[0].State == game.SlotSubmitted
	})

	view := s.View()
	if view.Slots[0].Label != game.LabelCashout {
		t.Errorf("submitted slot label = %q, want Cashout", view.Slots[0].Label)
	}
	if len(view.Notifications) == 0 || view.Notifications[0].Message != "1 order placed" {
		t.Errorf("notifications = %v", view.Notifications)
	}
}

func TestUnauthorizedSubmitResetsSlots(t *testing.T) {
	expired := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	s := New(Options{
		GameID:           "crash-1",
		Slots:            2,
		OnSessionExpired: func() { expired <- struct{}{} },
	}, clock, orders.NewClient(srv.URL, nil))
	s.Attach(&fakeSource{})
	t.Cleanup(s.Stop)
	h := s.Handlers()

	h.OnSnapshot(openSnapshot("r1", "1.00", "00:00:02", 0))
	s.PlaceBet(1)
	s.PlaceBet(2)

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	waitFor(t, "expiry notification", func() bool {
		n := s.View().Notifications
		return len(n) == 1 && n[0].Message == "Your session has expired"
	})
	for i, slot := range s.View().Slots {
		if slot.State != game.SlotEmpty {
			t.Errorf("slot %d state = %v, want EMPTY", i+1, slot.State)
		}
	}

	// The expiry hook fires two fake-clock seconds after the rejection; the
	// countdown loop is the other sleeper.
	clock.BlockUntil(2)
	clock.Advance(2 * time.Second)
	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatal("OnSessionExpired never fired")
	}
}

func TestCashoutRoundTrip(t *testing.T) {
	s, src, clock := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	h.OnSnapshot(openSnapshot("r1", "1.00", "00:00:02", 0))
	s.PlaceBet(1)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitFor(t, "slot 1 to submit", func() bool {
		return s.View().Slots[0].State == game.SlotSubmitted
	})

	h.OnSnapshot(game.Snapshot{
		ID:      "r1",
		State:   game.RoundCashout,
		Players: []game.Player{{ID: 1, Description: "1.50"}},
	})

	s.Cashout(1)
	calls := src.recorded()
	if len(calls) != 1 {
		t.Fatalf("got %d cashout calls, want 1", len(calls))
	}
	if calls[0].SelectionID != 1 || calls[0].Price != 1.50 || calls[0].IsPartial {
		t.Errorf("cashout request = %+v", calls[0])
	}
	if calls[0].GameID != "crash-1" || calls[0].MarketID != "r1" {
		t.Errorf("cashout routing = %+v", calls[0])
	}

	h.OnCashoutAck(realtime.CashoutAck{SelectionID: 1})
	if got := s.View().Slots[0].State; got != game.SlotEmpty {
		t.Errorf("slot after full cashout ack = %v, want EMPTY", got)
	}
}

func TestMemberCountIsPadded(t *testing.T) {
	s, _, _ := newTestSession(t, http.HandlerFunc(acceptAll))

	s.Handlers().OnMemberCount(150)
	if got := s.View().MemberCount; got != 200 {
		t.Errorf("member count = %d, want 200", got)
	}
}

func TestShortResultsReplaceAndTrim(t *testing.T) {
	s, _, _ := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	var batch []ShortResult
	for i := 0; i < 30; i++ {
		batch = append(batch, ShortResult{RoundID: "r", Price: float64(i)})
	}
	raw, _ := json.Marshal(batch)
	h.OnShortResult(raw)

	if got := len(s.View().ShortResults); got != shortResultCap {
		t.Errorf("short results = %d entries, want %d", got, shortResultCap)
	}

	single, _ := json.Marshal(ShortResult{RoundID: "r31", Price: 4.2})
	h.OnShortResult(single)
	results := s.View().ShortResults
	if results[0].RoundID != "r31" {
		t.Errorf("newest result = %+v, want r31 first", results[0])
	}
	if len(results) != shortResultCap {
		t.Errorf("short results grew past the cap: %d", len(results))
	}
}

func TestCommunityOrdersReachLeaderboard(t *testing.T) {
	s, _, _ := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	h.OnCommunityOrder(game.CommunityOrder{UserID: "u1", Username: "alice", Size: 300})
	h.OnCommunityOrder(game.CommunityOrder{UserID: "u2", Username: "bob", Size: 500})

	lucky := s.View().LuckyPlayers
	if len(lucky) != 2 || lucky[0].Username != "bob" {
		t.Errorf("leaderboard = %v", lucky)
	}
}

func TestOrdersPushRepairsSlots(t *testing.T) {
	s, _, _ := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	h.OnSnapshot(openSnapshot("r1", "1.00", "00:00:10", 0))
	h.OnOrders(orders.OrdersPush{Orders: []orders.GameOrder{{Selection: 2, Size: 100}}})

	if got := s.View().Slots[1].State; got != game.SlotSubmitted {
		t.Errorf("slot 2 after orders push = %v, want SUBMITTED", got)
	}
}

func TestBatcherOptionsReachTheBatcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(acceptAll))
	t.Cleanup(srv.Close)

	s := New(Options{
		GameID:        "crash-1",
		FlushInterval: 50 * time.Millisecond,
		MatchedCap:    2,
	}, clockwork.NewFakeClock(), orders.NewClient(srv.URL, nil))
	s.Attach(&fakeSource{})
	t.Cleanup(s.Stop)
	h := s.Handlers()

	s.batcher.SetActiveEvent("crash-1")
	for _, id := range []string{"o1", "o2", "o3"} {
		h.OnOrderUpdate(orders.PushedOrder{ID: id, EventID: "crash-1", MatchedSize: 10, UnmatchedSize: 10})
	}
	s.batcher.Flush()

	matched := s.View().Matched
	if len(matched) != 2 {
		t.Fatalf("matched holds %d orders, want the configured cap of 2", len(matched))
	}
	if matched[0].ID != "o3" || matched[1].ID != "o2" {
		t.Errorf("cap kept [%s %s], want the most recent [o3 o2]", matched[0].ID, matched[1].ID)
	}
}

func TestPositionPushesAccumulate(t *testing.T) {
	s, _, _ := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	first, _ := json.Marshal([]orders.Position{
		{MarketID: "m1", Selection: 2, Runner: "2", PL: -50},
		{MarketID: "m1", Selection: 5, Runner: "5", PL: 120},
	})
	h.OnOrders(orders.OrdersPush{Position: first})

	// A later push for the same selection supersedes it.
	update, _ := json.Marshal(orders.Position{MarketID: "m1", Selection: 2, Runner: "2", PL: 75})
	h.OnOrders(orders.OrdersPush{Position: update})

	positions := s.View().Positions
	if len(positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(positions))
	}
	byCollection := map[int64]float64{}
	for _, p := range positions {
		byCollection[p.Selection] = p.PL
	}
	if byCollection[2] != 75 || byCollection[5] != 120 {
		t.Errorf("positions = %v, want selection 2 at 75 and selection 5 at 120", positions)
	}
}

func TestOrderUpdatesFlowIntoBatcher(t *testing.T) {
	s, _, _ := newTestSession(t, http.HandlerFunc(acceptAll))
	h := s.Handlers()

	s.batcher.SetActiveEvent("crash-1")
	h.OnOrderUpdate(orders.PushedOrder{ID: "o1", EventID: "crash-1", MatchedSize: 40, UnmatchedSize: 100})
	s.batcher.Flush()

	view := s.View()
	if len(view.Matched) != 1 || view.Matched[0].ID != "o1" {
		t.Errorf("matched = %v", view.Matched)
	}
	if len(view.Unmatched) != 1 {
		t.Errorf("unmatched = %v", view.Unmatched)
	}
}
