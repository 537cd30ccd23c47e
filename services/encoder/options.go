package encoder

import (
	"log/slog"
	"time"
)

type config struct {
	poll        time.Duration
	joinTimeout time.Duration
	logger      *slog.Logger
}

func defaultConfig() config {
	return config{
		poll:        10 * time.Millisecond,
		joinTimeout: time.Second,
	}
}

type Option func(*config)

// WithPollInterval sets how often the counter is sampled.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.poll = d
		}
	}
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
