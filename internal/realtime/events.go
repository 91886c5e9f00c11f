package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bpexchange/crashclient/internal/game"
	"github.com/bpexchange/crashclient/internal/orders"
)

// Server push event names.
const (
	EventSnapshot            = "snapshot"
	EventShortResult         = "shortResult"
	EventCashoutNotification = "cashoutNotification"
	EventCommunityOrder      = "communityOrder"
	EventPrice               = "price"
	EventMemberCount         = "memberCount"
	EventPong                = "pong"
	EventOrders              = "orders"
	EventOrderUpdate         = "orderUpdate"
	EventCashoutAck          = "cashoutAck"
)

// Client invocation names.
const (
	InvokeSubscribe = "subscribe"
	InvokePing      = "ping"
	InvokeCashOut   = "cashOut"
)

// Envelope frames every message on the realtime channel, both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CashoutRequest is the payload of the cashOut invocation.
type CashoutRequest struct {
	GameID      string  `json:"gameId"`
	MarketID    string  `json:"marketId"`
	Price       float64 `json:"price"`
	SelectionID int     `json:"selectionId"`
	IsPartial   bool    `json:"isPartial"`
}

// CashoutAck is the server's asynchronous answer to a cashout request.
type CashoutAck struct {
	SelectionID int  `json:"selectionId"`
	IsPartial   bool `json:"isPartial"`
}

// PricePush is a dedicated live-price update.
type PricePush struct {
	Price float64 `json:"price"`
}

// Notification is a server-sent user message.
type Notification struct {
	Message string `json:"message"`
}

// Handlers holds the typed callbacks the channel dispatches server events
// into. Any callback may be nil; unhandled events are dropped.
type Handlers struct {
	OnSnapshot            func(game.Snapshot)
	OnShortResult         func(json.RawMessage)
	OnCashoutNotification func(Notification)
	OnCommunityOrder      func(game.CommunityOrder)
	OnPrice               func(float64)
	OnMemberCount         func(int)
	OnOrders              func(orders.OrdersPush)
	OnOrderUpdate         func(orders.PushedOrder)
	OnCashoutAck          func(CashoutAck)
	OnLatency             func(latency time.Duration, strength int)
	OnReconnected         func()
	OnStateChange         func(State)
}

// dispatch decodes and routes one envelope. Malformed payloads are logged
// and dropped; a bad push must never take the session down.
func (h Handlers) dispatch(env Envelope) {
	switch env.Type {
	case EventSnapshot:
		if h.OnSnapshot == nil {
			return
		}
		var snap game.Snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			log.Error().Err(err).Msg("bad snapshot payload")
			return
		}
		h.OnSnapshot(snap)

	case EventShortResult:
		if h.OnShortResult != nil {
			h.OnShortResult(env.Data)
		}

	case EventCashoutNotification:
		if h.OnCashoutNotification == nil {
			return
		}
		var n Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			log.Error().Err(err).Msg("bad cashout notification payload")
			return
		}
		h.OnCashoutNotification(n)

	case EventCommunityOrder:
		if h.OnCommunityOrder == nil {
			return
		}
		var o game.CommunityOrder
		if err := json.Unmarshal(env.Data, &o); err != nil {
			log.Error().Err(err).Msg("bad community order payload")
			return
		}
		h.OnCommunityOrder(o)

	case EventPrice:
		if h.OnPrice == nil {
			return
		}
		var p PricePush
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Error().Err(err).Msg("bad price payload")
			return
		}
		h.OnPrice(p.Price)

	case EventMemberCount:
		if h.OnMemberCount == nil {
			return
		}
		var count int
		if err := json.Unmarshal(env.Data, &count); err != nil {
			log.Error().Err(err).Msg("bad member count payload")
			return
		}
		h.OnMemberCount(count)

	case EventOrders:
		if h.OnOrders == nil {
			return
		}
		var push orders.OrdersPush
		if err := json.Unmarshal(env.Data, &push); err != nil {
			log.Error().Err(err).Msg("bad orders payload")
			return
		}
		h.OnOrders(push)

	case EventOrderUpdate:
		if h.OnOrderUpdate == nil {
			return
		}
		var o orders.PushedOrder
		if err := json.Unmarshal(env.Data, &o); err != nil {
			log.Error().Err(err).Msg("bad order update payload")
			return
		}
		h.OnOrderUpdate(o)

	case EventCashoutAck:
		if h.OnCashoutAck == nil {
			return
		}
		var ack CashoutAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			log.Error().Err(err).Msg("bad cashout ack payload")
			return
		}
		h.OnCashoutAck(ack)

	default:
		log.Debug().Str("type", env.Type).Msg("unhandled realtime event")
	}
}

// EventSource is a realtime channel delivering server events into Handlers
// and accepting the cashout invocation. Implementations own their State.
type EventSource interface {
	Start(ctx context.Context) error
	Stop()
	State() State
	CashOut(req CashoutRequest) error
}
