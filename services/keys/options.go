package keys

import (
	"log/slog"
	"time"
)

// MaxButtons bounds the logical button indices the manager tracks.
const MaxButtons = 8

// StackDepth is the push/pop limit.
const StackDepth = 4

type config struct {
	queueSize   int
	debounce    time.Duration
	longPress   time.Duration
	recvTimeout time.Duration
	joinTimeout time.Duration
	feedback    bool
	logger      *slog.Logger
}

func defaultConfig() config {
	return config{
		queueSize:   16,
		debounce:    20 * time.Millisecond,
		longPress:   800 * time.Millisecond,
		recvTimeout: 100 * time.Millisecond,
		joinTimeout: time.Second,
		feedback:    true,
	}
}

type Option func(*config)

func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithDebounce sets the minimum spacing of accepted edges per button.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithLongPress sets the hold time that turns a click into a long press.
func WithLongPress(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.longPress = d
		}
	}
}

// WithFeedback enables or disables LED feedback on key press.
func WithFeedback(on bool) Option {
	return func(c *config) { c.feedback = on }
}

func WithJoinTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
