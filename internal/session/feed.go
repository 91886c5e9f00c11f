package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bpexchange/crashclient/internal/game"
)

// feedCap bounds the retained notification history.
const feedCap = 50

// Notification is one user-facing message with its arrival time.
type Notification struct {
	Level   game.NotifyLevel `json:"level"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Feed retains the most recent user-facing notifications, newest first.
// It is the session's game.Notifier.
type Feed struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries []Notification
}

// NewFeed creates an empty notification feed.
func NewFeed(clock clockwork.Clock) *Feed {
	return &Feed{clock: clock}
}

// Notify records a notification.
func (f *Feed) Notify(level game.NotifyLevel, message string) {
	log.Info().Str("level", level.String()).Str("message", message).Msg("notification")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]Notification{{
		Level:   level,
		Message: message,
		At:      f.clock.Now(),
	}}, f.entries...)
	if len(f.entries) > feedCap {
		f.entries = f.entries[:feedCap]
	}
}

// Recent returns a copy of the retained notifications, newest first.
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.entries))
	copy(out, f.entries)
	return out
}
