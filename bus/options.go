package bus

import (
	"log/slog"
	"time"
)

type config struct {
	queueSize      int
	maxSubscribers int
	lockTimeout    time.Duration
	recvTimeout    time.Duration
	publishTimeout time.Duration
	joinTimeout    time.Duration
	healthInterval time.Duration
	errorThreshold int
	purgeLimit     int
	purgePause     time.Duration
	ledBackoff     []time.Duration
	logger         *slog.Logger
}

func defaultConfig() config {
	return config{
		queueSize:      64,
		maxSubscribers: 32,
		lockTimeout:    50 * time.Millisecond,
		recvTimeout:    100 * time.Millisecond,
		joinTimeout:    time.Second,
		healthInterval: 5 * time.Second,
		errorThreshold: 10,
		purgeLimit:     32,
		purgePause:     50 * time.Millisecond,
		ledBackoff:     []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond},
	}
}

// Option configures a Bus.
type Option func(*config)

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithMaxSubscribers bounds the subscriber table.
func WithMaxSubscribers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSubscribers = n
		}
	}
}

// WithLockTimeout bounds every subscriber-table lock acquisition.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.lockTimeout = d
		}
	}
}

// WithRecvTimeout sets the consumer's housekeeping wake-up.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.recvTimeout = d
		}
	}
}

// WithPublishTimeout lets thread-context publishers wait for queue space.
// Zero (the default) never blocks.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.publishTimeout = d
		}
	}
}

// WithJoinTimeout bounds how long Stop waits for the consumer.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

// WithHealthInterval sets how often the consumer inspects occupancy and
// error rate.
func WithHealthInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.healthInterval = d
		}
	}
}

// WithErrorThreshold sets the consecutive-error streak that triggers an
// emergency purge.
func WithErrorThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.errorThreshold = n
		}
	}
}

// WithPurgeLimit caps how many events one purge drops.
func WithPurgeLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.purgeLimit = n
		}
	}
}

// WithPurgePause sets the back-off after an emergency purge.
func WithPurgePause(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.purgePause = d
		}
	}
}

// WithLEDBackoff replaces the retry schedule for LED feedback events.
func WithLEDBackoff(steps ...time.Duration) Option {
	return func(c *config) {
		c.ledBackoff = append([]time.Duration(nil), steps...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
