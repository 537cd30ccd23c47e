// Package muyu counts taps on the wooden-fish page: a session count the user
// can reset and a lifetime count that only grows.
package muyu

import (
	"sync"
	"time"
)

// Snapshot is a consistent read of the counter.
type Snapshot struct {
	Session  uint32
	Lifetime uint32
	Updated  time.Time
}

// Level is the merit tier derived from the lifetime count.
func (s Snapshot) Level() string { return Level(s.Lifetime) }

// Level maps a lifetime count to lv1 (<100), lv2 (<1000) or lv3.
func Level(lifetime uint32) string {
	switch {
	case lifetime < 100:
		return "lv1"
	case lifetime < 1000:
		return "lv2"
	}
	return "lv3"
}

type Counter struct {
	mu       sync.Mutex
	session  uint32
	lifetime uint32
	updated  time.Time
	now      func() time.Time
}

func New() *Counter { return &Counter{now: time.Now} }

// Tap adds one to both counts. Counts saturate rather than wrap.
func (c *Counter) Tap() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session < ^uint32(0) {
		c.session++
	}
	if c.lifetime < ^uint32(0) {
		c.lifetime++
	}
	c.updated = c.now()
	return c.snapshotLocked()
}

// Reset zeroes the session count; the lifetime count is kept.
func (c *Counter) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = 0
	c.updated = c.now()
	return c.snapshotLocked()
}

// Restore seeds the lifetime count, for example from persisted state. It
// never lowers it.
func (c *Counter) Restore(lifetime uint32) {
	c.mu.Lock()
	if lifetime > c.lifetime {
		c.lifetime = lifetime
	}
	c.mu.Unlock()
}

func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Counter) snapshotLocked() Snapshot {
	return Snapshot{Session: c.session, Lifetime: c.lifetime, Updated: c.updated}
}
