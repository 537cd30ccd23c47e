package telemetry

import (
	"log/slog"
	"time"
)

const (
	// DefaultBaud is the host link speed.
	DefaultBaud = 1_000_000
	// MaxLine bounds one command including its terminator.
	MaxLine = 1024
)

type config struct {
	timeout     time.Duration
	check       time.Duration
	readSlice   time.Duration
	joinTimeout time.Duration
	now         func() time.Time
	inv         Invalidator
	sink        func(time.Time)
	logger      *slog.Logger
}

func defaultConfig() config {
	return config{
		timeout:     30 * time.Second,
		check:       10 * time.Second,
		readSlice:   250 * time.Millisecond,
		joinTimeout: time.Second,
		now:         time.Now,
	}
}

type Option func(*config)

// WithLinkTimeout sets how long the link may stay silent before it is
// declared lost, and how often that is checked.
func WithLinkTimeout(timeout, check time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.timeout = timeout
		}
		if check > 0 {
			c.check = check
		}
	}
}

// WithReadSlice bounds each blocking receive so Stop is honoured promptly.
func WithReadSlice(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.readSlice = d
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

// WithClock replaces time.Now for stamps and the link watchdog.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithInvalidator is told when the link is lost, typically the data store.
func WithInvalidator(inv Invalidator) Option {
	return func(c *config) { c.inv = inv }
}

// WithTimeSink receives the wall time every time the host pushes time or
// date.
func WithTimeSink(f func(time.Time)) Option {
	return func(c *config) { c.sink = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
