package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig configures the NATS-backed event source.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // events arrive on <prefix>.events.<channel>
	ChannelID     string
	ClientName    string

	PingInterval  time.Duration // latency sample cadence via server RTT
	ReconnectWait time.Duration
}

// NATSSource is an EventSource fed by a NATS deployment that mirrors the
// casino hub's push stream. The broker owns reconnection; this type only
// tracks state and re-announces the subscription after each reconnect.
type NATSSource struct {
	cfg      NATSConfig
	clock    clockwork.Clock
	handlers Handlers

	mu     sync.Mutex
	nc     *nats.Conn
	sub    *nats.Subscription
	state  State
	cancel context.CancelFunc
}

// NewNATSSource creates a NATS event source; Start must be called to
// connect.
func NewNATSSource(cfg NATSConfig, clock clockwork.Clock, handlers Handlers) *NATSSource {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "crash"
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "crashclient"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	return &NATSSource{
		cfg:      cfg,
		clock:    clock,
		handlers: handlers,
	}
}

// Start connects to NATS and subscribes to the channel's event subject.
func (s *NATSSource) Start(ctx context.Context) error {
	s.setState(Connecting)

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
			s.setState(Reconnecting)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
			s.setState(Connected)
			s.announce()
			if s.handlers.OnReconnected != nil {
				s.handlers.OnReconnected()
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				log.Error().Err(err).Str("subject", sub.Subject).Msg("nats subscription error")
				return
			}
			log.Error().Err(err).Msg("nats error")
		}),
	)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("connect nats %s: %w", s.cfg.URL, err)
	}

	subject := fmt.Sprintf("%s.events.%s", s.cfg.SubjectPrefix, s.cfg.ChannelID)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("bad nats frame")
			return
		}
		s.handlers.dispatch(env)
	})
	if err != nil {
		nc.Close()
		s.setState(Disconnected)
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.nc = nc
	s.sub = sub
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(Connected)
	s.announce()

	go s.latencyLoop(runCtx)

	log.Info().Str("subject", subject).Msg("nats event source started")
	return nil
}

// announce publishes the subscribe invocation so the upstream bridge starts
// mirroring this channel. Issued on connect and again after every
// reconnect.
func (s *NATSSource) announce() {
	s.mu.Lock()
	nc := s.nc
	s.mu.Unlock()
	if nc == nil {
		return
	}
	if err := s.publish(nc, InvokeSubscribe, s.cfg.ChannelID); err != nil {
		log.Error().Err(err).Msg("nats subscribe announce failed")
	}
}

func (s *NATSSource) publish(nc *nats.Conn, invoke string, payload any) error {
	env := Envelope{Type: invoke}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", invoke, err)
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", invoke, err)
	}
	subject := fmt.Sprintf("%s.control.%s", s.cfg.SubjectPrefix, s.cfg.ChannelID)
	return nc.Publish(subject, frame)
}

// latencyLoop samples the broker round trip on the ping cadence and feeds
// it to the same latency callback the websocket channel uses.
func (s *NATSSource) latencyLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.mu.Lock()
			nc := s.nc
			s.mu.Unlock()
			if nc == nil || !nc.IsConnected() {
				continue
			}
			rtt, err := nc.RTT()
			if err != nil {
				log.Debug().Err(err).Msg("nats rtt failed")
				continue
			}
			if s.handlers.OnLatency != nil {
				s.handlers.OnLatency(rtt, SignalStrength(rtt))
			}
		}
	}
}

// CashOut sends the cashout invocation through the control subject.
func (s *NATSSource) CashOut(req CashoutRequest) error {
	s.mu.Lock()
	nc := s.nc
	s.mu.Unlock()
	if nc == nil {
		return fmt.Errorf("nats event source not started")
	}
	return s.publish(nc, InvokeCashOut, req)
}

// Stop drains the subscription and closes the connection.
func (s *NATSSource) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	sub := s.sub
	nc := s.nc
	s.cancel = nil
	s.sub = nil
	s.nc = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Drain(); err != nil {
			log.Warn().Err(err).Msg("nats drain failed")
		}
	}
	if nc != nil {
		nc.Close()
	}
	s.setState(Disconnected)
	log.Info().Msg("nats event source stopped")
}

// State returns the source's connection state.
func (s *NATSSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *NATSSource) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(st)
	}
}
