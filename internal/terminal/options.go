package terminal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/faize-ai/termlink/internal/clock"
)

const (
	DefaultPollInterval   = time.Second
	DefaultResizeDebounce = 150 * time.Millisecond
	DefaultMinBackoff     = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// CursorPolicy decides which cursor a reconnect resumes from.
type CursorPolicy string

const (
	// CursorResume keeps the last acknowledged cursor.
	CursorResume CursorPolicy = "resume"
	// CursorRestart rewinds to 0 and replays whatever the server retains.
	CursorRestart CursorPolicy = "restart"
)

// ParseCursorPolicy validates a configured policy name. Empty means resume.
func ParseCursorPolicy(s string) (CursorPolicy, error) {
	switch CursorPolicy(s) {
	case "", CursorResume:
		return CursorResume, nil
	case CursorRestart:
		return CursorRestart, nil
	}
	return "", fmt.Errorf("unknown reconnect policy %q (want resume or restart)", s)
}

// ReconnectOptions configure the reconnection manager.
type ReconnectOptions struct {
	Policy CursorPolicy
	// Auto schedules Reconnect after a doubling backoff once disconnected.
	Auto        bool
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int // 0 means unlimited
}

// Options configure every session a Manager owns.
type Options struct {
	PollInterval time.Duration
	// ResizeDebounce of zero selects the default; a negative value sends
	// every observed geometry immediately.
	ResizeDebounce time.Duration
	Reconnect      ReconnectOptions
	Clock          clock.Clock
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	switch {
	case o.ResizeDebounce == 0:
		o.ResizeDebounce = DefaultResizeDebounce
	case o.ResizeDebounce < 0:
		o.ResizeDebounce = 0
	}
	if o.Reconnect.Policy == "" {
		o.Reconnect.Policy = CursorResume
	}
	if o.Reconnect.MinBackoff <= 0 {
		o.Reconnect.MinBackoff = DefaultMinBackoff
	}
	if o.Reconnect.MaxBackoff < o.Reconnect.MinBackoff {
		o.Reconnect.MaxBackoff = o.Reconnect.MinBackoff
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
