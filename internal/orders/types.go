package orders

import "encoding/json"

// Request is one order in a round-close submit batch.
type Request struct {
	Price      float64 `json:"price"`
	Side       string  `json:"side"`
	MarketID   string  `json:"marketId"`
	ChannelID  string  `json:"channelId"`
	Identity   string  `json:"identity"`
	Selection  int     `json:"selection"`
	ClientSeed uint32  `json:"clientSeed"`
	Size       int64   `json:"size"`
}

// Placed is the server's record of an accepted order.
type Placed struct {
	ID          string  `json:"id"`
	SelectionID int     `json:"selectionId"`
	Price       float64 `json:"price"`
	Size        int64   `json:"size"`
}

// requestEcho is the rejected request echoed back alongside a failure.
type requestEcho struct {
	SelectionID int `json:"selectionId"`
}

// Result is the per-order outcome of a submit batch.
type Result struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	Order        *Placed      `json:"order,omitempty"`
	OrderRequest *requestEcho `json:"orderRequest,omitempty"`
}

// SelectionID returns the selection the result refers to, regardless of
// whether the order was accepted or rejected.
func (r *Result) SelectionID() int {
	if r.Order != nil {
		return r.Order.SelectionID
	}
	if r.OrderRequest != nil {
		return r.OrderRequest.SelectionID
	}
	return 0
}

// BulkRequest is one consolidated per-selection order for multi-selection
// game variants. Field casing matches the order API's wire format.
type BulkRequest struct {
	Side       string  `json:"side"`
	Size       int64   `json:"size"`
	MarketID   string  `json:"MarketId"`
	Price      float64 `json:"price"`
	RoundID    string  `json:"RoundId"`
	ChannelID  string  `json:"ChannelId"`
	RunnerName string  `json:"runnerName"`
	Identity   string  `json:"identity"`
	BetType    string  `json:"BetType"`
	Selection  int64   `json:"Selection"`
	Metadata   string  `json:"Metadata"`
}

// PushedOrder is a realtime order delta. The terse field names are the
// exchange's wire format.
type PushedOrder struct {
	ID            string  `json:"id"`
	EventID       string  `json:"eid"`
	MarketID      string  `json:"mid"`
	Runner        string  `json:"rn"`
	Price         float64 `json:"mp"`
	MatchedSize   float64 `json:"ms"`
	UnmatchedSize float64 `json:"us"`
	Side          string  `json:"bs"`
	Customer      string  `json:"bn"`
	Dealer        string  `json:"mn"`
}

// IsBack reports whether the order is a back bet.
func (o PushedOrder) IsBack() bool { return o.Side == "B" }

// IsLay reports whether the order is a lay bet.
func (o PushedOrder) IsLay() bool { return o.Side == "L" }

// GameOrder is one of the player's own live orders as pushed with the
// orders event; used to repair slot state after reconnect.
type GameOrder struct {
	Selection int     `json:"selection"`
	Price     float64 `json:"price"`
	Size      int64   `json:"size"`
}

// OrdersPush is the payload of the orders realtime event.
type OrdersPush struct {
	Orders   []GameOrder     `json:"orders"`
	Position json.RawMessage `json:"position"`
}

// Position is the pushed profit/loss for one market selection. A later push
// for the same market and selection supersedes the earlier one.
type Position struct {
	MarketID  string  `json:"mid"`
	Selection int64   `json:"sid"`
	Runner    string  `json:"rn"`
	PL        float64 `json:"pl"`
}
