package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the websocket realtime channel.
type Config struct {
	URL           string
	ChannelID     string
	TokenProvider func() string

	PingInterval     time.Duration // latency probe cadence
	RetryWindow      time.Duration // total time reconnects keep being tried
	HandshakeTimeout time.Duration

	// DisconnectPollInterval is how often Stop re-checks that the connection
	// has actually dropped.
	DisconnectPollInterval time.Duration
}

// DefaultConfig returns the standard channel configuration.
func DefaultConfig(url, channelID string) Config {
	return Config{
		URL:                    url,
		ChannelID:              channelID,
		PingInterval:           5 * time.Second,
		RetryWindow:            DefaultRetryWindow,
		HandshakeTimeout:       10 * time.Second,
		DisconnectPollInterval: 500 * time.Millisecond,
	}
}

// ConnectionManager maintains a single websocket to the casino hub:
// connect, subscribe, auto-reconnect with the bounded backoff schedule, and
// a periodic ping measuring round-trip latency. Server events are fanned
// out through Handlers. Resubscription is an unconditional transition
// action of reaching Connected, never an optimization to skip.
type ConnectionManager struct {
	cfg      Config
	clock    clockwork.Clock
	handlers Handlers

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	cancel     context.CancelFunc
	done       chan struct{}
	pingSentAt time.Time

	writeMu sync.Mutex
}

// NewConnectionManager creates a channel manager; Start must be called to
// open it.
func NewConnectionManager(cfg Config, clock clockwork.Clock, handlers Handlers) *ConnectionManager {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = DefaultRetryWindow
	}
	if cfg.DisconnectPollInterval <= 0 {
		cfg.DisconnectPollInterval = 500 * time.Millisecond
	}
	return &ConnectionManager{
		cfg:      cfg,
		clock:    clock,
		handlers: handlers,
	}
}

// Start opens the channel and keeps it open until the context is cancelled
// or Stop is called. It returns immediately; connection progress is
// reported through State and OnStateChange.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	cm.mu.Lock()
	if cm.cancel != nil {
		cm.mu.Unlock()
		return errors.New("realtime channel already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	cm.cancel = cancel
	cm.done = make(chan struct{})
	cm.mu.Unlock()

	go cm.run(runCtx)
	return nil
}

func (cm *ConnectionManager) run(ctx context.Context) {
	defer close(cm.done)
	defer cm.setState(Disconnected)

	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			cm.setState(Connecting)
		} else {
			cm.setState(Reconnecting)
		}

		conn, ok := cm.connectWithRetry(ctx)
		if !ok {
			return
		}

		cm.mu.Lock()
		cm.conn = conn
		cm.mu.Unlock()
		cm.setState(Connected)

		// Subscription state on the server died with the old connection, so
		// it is re-issued on every connect without exception.
		if err := cm.Subscribe(); err != nil {
			log.Error().Err(err).Msg("channel subscribe failed")
		}
		if !first && cm.handlers.OnReconnected != nil {
			cm.handlers.OnReconnected()
		}
		first = false

		pingCtx, stopPing := context.WithCancel(ctx)
		go cm.pingLoop(pingCtx)

		cm.readLoop(conn)

		stopPing()
		cm.mu.Lock()
		cm.conn = nil
		cm.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Msg("realtime channel dropped, reconnecting")
	}
}

// connectWithRetry dials until it succeeds, the retry window runs out, or
// the context ends. ok is false when retries ceased without a connection.
func (cm *ConnectionManager) connectWithRetry(ctx context.Context) (*websocket.Conn, bool) {
	attempts := 0
	start := cm.clock.Now()

	for {
		if delay := RetryDelay(attempts); delay > 0 {
			select {
			case <-cm.clock.After(delay):
			case <-ctx.Done():
				return nil, false
			}
		}
		if cm.clock.Since(start) >= cm.cfg.RetryWindow {
			log.Error().
				Dur("window", cm.cfg.RetryWindow).
				Msg("retry window exhausted, giving up on realtime channel")
			return nil, false
		}
		if ctx.Err() != nil {
			return nil, false
		}

		conn, err := cm.dial(ctx)
		if err == nil {
			return conn, true
		}
		log.Warn().
			Err(err).
			Int("attempt", attempts).
			Msg("realtime connect failed")
		attempts++
	}
}

func (cm *ConnectionManager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cm.cfg.HandshakeTimeout,
	}
	header := http.Header{}
	if cm.cfg.TokenProvider != nil {
		if tok := cm.cfg.TokenProvider(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, _, err := dialer.DialContext(ctx, cm.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cm.cfg.URL, err)
	}
	return conn, nil
}

func (cm *ConnectionManager) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected realtime close")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Error().Err(err).Msg("bad realtime frame")
			continue
		}

		if env.Type == EventPong {
			cm.handlePong()
			continue
		}
		cm.handlers.dispatch(env)
	}
}

func (cm *ConnectionManager) pingLoop(ctx context.Context) {
	ticker := cm.clock.NewTicker(cm.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			cm.mu.Lock()
			cm.pingSentAt = cm.clock.Now()
			cm.mu.Unlock()
			if err := cm.Invoke(InvokePing, nil); err != nil {
				log.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}

func (cm *ConnectionManager) handlePong() {
	cm.mu.Lock()
	sentAt := cm.pingSentAt
	cm.mu.Unlock()
	if sentAt.IsZero() {
		return
	}
	latency := cm.clock.Since(sentAt)
	if cm.handlers.OnLatency != nil {
		cm.handlers.OnLatency(latency, SignalStrength(latency))
	}
}

// Invoke sends a named invocation with its payload to the hub.
func (cm *ConnectionManager) Invoke(name string, payload any) error {
	cm.mu.Lock()
	conn := cm.conn
	cm.mu.Unlock()
	if conn == nil {
		return errors.New("realtime channel not connected")
	}

	env := Envelope{Type: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", name, err)
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", name, err)
	}

	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("invoke %s: %w", name, err)
	}
	return nil
}

// Subscribe joins the configured game channel.
func (cm *ConnectionManager) Subscribe() error {
	return cm.Invoke(InvokeSubscribe, cm.cfg.ChannelID)
}

// CashOut sends a fire-and-forget cashout request over the channel.
func (cm *ConnectionManager) CashOut(req CashoutRequest) error {
	return cm.Invoke(InvokeCashOut, req)
}

// Stop closes the channel and polls until the drop is confirmed, re-closing
// on each round if the connection is still up.
func (cm *ConnectionManager) Stop() {
	cm.mu.Lock()
	cancel := cm.cancel
	cm.cancel = nil
	conn := cm.conn
	done := cm.done
	cm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}

	for cm.State() != Disconnected {
		cm.clock.Sleep(cm.cfg.DisconnectPollInterval)
		cm.mu.Lock()
		conn := cm.conn
		cm.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	}
	if done != nil {
		<-done
	}
	log.Info().Msg("realtime channel stopped")
}

// State returns the channel's connection state.
func (cm *ConnectionManager) State() State {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

func (cm *ConnectionManager) setState(s State) {
	cm.mu.Lock()
	changed := cm.state != s
	cm.state = s
	cm.mu.Unlock()
	if changed {
		log.Debug().Str("state", s.String()).Msg("realtime state changed")
		if cm.handlers.OnStateChange != nil {
			cm.handlers.OnStateChange(s)
		}
	}
}
