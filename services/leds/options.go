package leds

import (
	"log/slog"
	"time"
)

type config struct {
	count        int
	tick         time.Duration
	queueSize    int
	poolSize     int
	brightness   uint8
	replyTimeout time.Duration
	joinTimeout  time.Duration
	logger       *slog.Logger
}

func defaultConfig() config {
	return config{
		count:        3,
		tick:         20 * time.Millisecond,
		queueSize:    16,
		poolSize:     4,
		brightness:   255,
		replyTimeout: time.Second,
		joinTimeout:  time.Second,
	}
}

type Option func(*config)

// WithCount sets the number of LEDs on the strip.
func WithCount(n int) Option {
	return func(c *config) {
		if n > 0 && n <= 255 {
			c.count = n
		}
	}
}

// WithTick sets the render interval.
func WithTick(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.tick = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithPoolSize bounds the number of concurrently running effects.
func WithPoolSize(n int) Option {
	return func(c *config) {
		if n > 0 && n <= 0xFFFF {
			c.poolSize = n
		}
	}
}

func WithBrightness(b uint8) Option {
	return func(c *config) { c.brightness = b }
}

// WithReplyTimeout bounds StartEffect and EffectState.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.replyTimeout = d
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
