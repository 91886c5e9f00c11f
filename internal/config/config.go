package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport selects how the client receives realtime events.
type Transport string

const (
	TransportWebsocket Transport = "websocket"
	TransportNATS      Transport = "nats"
)

// Config is the client's full configuration. Values come from the yaml file
// and can be overridden per-field from the environment.
type Config struct {
	Transport Transport `yaml:"transport"`

	Realtime struct {
		URL            string `yaml:"url"`
		PingIntervalMS int    `yaml:"ping_interval_ms"`
		RetryWindowMin int    `yaml:"retry_window_min"`
	} `yaml:"realtime"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Orders struct {
		BaseURL         string `yaml:"base_url"`
		FlushIntervalMS int    `yaml:"flush_interval_ms"`
		MatchedCap      int    `yaml:"matched_cap"`
	} `yaml:"orders"`

	Game struct {
		ID             string  `yaml:"id"`
		Slots          int     `yaml:"slots"`
		DefaultBetSize int64   `yaml:"default_bet_size"`
		CurrencyRate   float64 `yaml:"currency_rate"`
	} `yaml:"game"`

	State struct {
		Port int `yaml:"port"`
	} `yaml:"state"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// Load reads the yaml config at path and applies environment overrides.
// A missing file is not an error; defaults and environment values apply.
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() {
	c.Transport = Transport(getEnv("CRASH_TRANSPORT", string(c.Transport)))
	c.Realtime.URL = getEnv("CRASH_REALTIME_URL", c.Realtime.URL)
	c.Realtime.PingIntervalMS = getEnvAsInt("CRASH_PING_INTERVAL_MS", c.Realtime.PingIntervalMS)
	c.Realtime.RetryWindowMin = getEnvAsInt("CRASH_RETRY_WINDOW_MIN", c.Realtime.RetryWindowMin)
	c.NATS.URL = getEnv("CRASH_NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("CRASH_NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.Orders.BaseURL = getEnv("CRASH_ORDERS_URL", c.Orders.BaseURL)
	c.Orders.FlushIntervalMS = getEnvAsInt("CRASH_FLUSH_INTERVAL_MS", c.Orders.FlushIntervalMS)
	c.Orders.MatchedCap = getEnvAsInt("CRASH_MATCHED_CAP", c.Orders.MatchedCap)
	c.Game.ID = getEnv("CRASH_GAME_ID", c.Game.ID)
	c.Game.Slots = getEnvAsInt("CRASH_GAME_SLOTS", c.Game.Slots)
	c.Game.DefaultBetSize = int64(getEnvAsInt("CRASH_DEFAULT_BET_SIZE", int(c.Game.DefaultBetSize)))
	c.Game.CurrencyRate = getEnvAsFloat("CRASH_CURRENCY_RATE", c.Game.CurrencyRate)
	c.State.Port = getEnvAsInt("CRASH_STATE_PORT", c.State.Port)
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportWebsocket
	}
	if c.Realtime.PingIntervalMS <= 0 {
		c.Realtime.PingIntervalMS = 5000
	}
	if c.Realtime.RetryWindowMin <= 0 {
		c.Realtime.RetryWindowMin = 60
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "crash"
	}
	if c.Orders.FlushIntervalMS <= 0 {
		c.Orders.FlushIntervalMS = 250
	}
	if c.Orders.MatchedCap <= 0 {
		c.Orders.MatchedCap = 100
	}
	if c.Game.Slots <= 0 {
		c.Game.Slots = 2
	}
	if c.Game.DefaultBetSize <= 0 {
		c.Game.DefaultBetSize = 100
	}
	if c.Game.CurrencyRate <= 0 {
		c.Game.CurrencyRate = 1
	}
	if c.State.Port <= 0 {
		c.State.Port = 8085
	}
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportWebsocket:
		if c.Realtime.URL == "" {
			return fmt.Errorf("realtime.url is required for the websocket transport")
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the nats transport")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Orders.BaseURL == "" {
		return fmt.Errorf("orders.base_url is required")
	}
	if c.Game.ID == "" {
		return fmt.Errorf("game.id is required")
	}
	return nil
}

// PingInterval returns the latency probe cadence as a duration.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Realtime.PingIntervalMS) * time.Millisecond
}

// RetryWindow returns the reconnect give-up window as a duration.
func (c *Config) RetryWindow() time.Duration {
	return time.Duration(c.Realtime.RetryWindowMin) * time.Minute
}

// FlushInterval returns the order batcher cadence as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Orders.FlushIntervalMS) * time.Millisecond
}
