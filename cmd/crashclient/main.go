package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bpexchange/crashclient/internal/config"
	"github.com/bpexchange/crashclient/internal/orders"
	"github.com/bpexchange/crashclient/internal/realtime"
	"github.com/bpexchange/crashclient/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	token := os.Getenv("CRASH_SESSION_TOKEN")
	tokenProvider := func() string { return token }

	clock := clockwork.NewRealClock()
	client := orders.NewClient(cfg.Orders.BaseURL, tokenProvider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(session.Options{
		GameID:         cfg.Game.ID,
		Slots:          cfg.Game.Slots,
		DefaultBetSize: cfg.Game.DefaultBetSize,
		CurrencyRate:   cfg.Game.CurrencyRate,
		FlushInterval:  cfg.FlushInterval(),
		MatchedCap:     cfg.Orders.MatchedCap,
		OnSessionExpired: func() {
			log.Error().Msg("session expired, shutting down")
			cancel()
		},
	}, clock, client)

	var source realtime.EventSource
	switch cfg.Transport {
	case config.TransportNATS:
		source = realtime.NewNATSSource(realtime.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			ChannelID:     cfg.Game.ID,
			PingInterval:  cfg.PingInterval(),
		}, clock, sess.Handlers())
	default:
		wsCfg := realtime.DefaultConfig(cfg.Realtime.URL, cfg.Game.ID)
		wsCfg.TokenProvider = tokenProvider
		wsCfg.PingInterval = cfg.PingInterval()
		wsCfg.RetryWindow = cfg.RetryWindow()
		source = realtime.NewConnectionManager(wsCfg, clock, sess.Handlers())
	}
	sess.Attach(source)

	log.Info().
		Str("game_id", cfg.Game.ID).
		Str("transport", string(cfg.Transport)).
		Int("state_port", cfg.State.Port).
		Msg("starting crash client")

	if err := sess.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}

	stateServer := session.NewStateServer(cfg.State.Port, sess)
	go func() {
		if err := stateServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("state server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := stateServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("state server shutdown")
	}
	sess.Stop()
}
