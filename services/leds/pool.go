package leds

import "time"

// Handle names a started effect. It packs the slot index with a 16-bit
// generation so a handle to a freed slot never matches its next occupant.
// The zero Handle is null.
type Handle uint32

func (h Handle) slot() int    { return int(h & 0xFFFF) }
func (h Handle) gen() uint16  { return uint16(h >> 16) }
func (h Handle) IsNull() bool { return h == 0 }

func makeHandle(slot int, gen uint16) Handle {
	return Handle(uint32(gen)<<16 | uint32(slot))
}

type slot struct {
	cfg      Config
	state    State
	start    time.Time
	pausedAt time.Time
	gen      uint16
	active   bool
}

// pool is owned by the scheduler goroutine.
type pool struct {
	slots []slot
}

func newPool(n int) pool {
	p := pool{slots: make([]slot, n)}
	for i := range p.slots {
		p.slots[i].gen = 1
	}
	return p
}

// alloc claims the first free slot. ok is false when every slot is busy.
func (p *pool) alloc(cfg Config, now time.Time) (Handle, bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.active {
			continue
		}
		s.cfg = cfg
		s.state = Running
		s.start = now
		s.pausedAt = time.Time{}
		s.active = true
		return makeHandle(i, s.gen), true
	}
	return 0, false
}

// lookup resolves h to its live slot.
func (p *pool) lookup(h Handle) *slot {
	if h.IsNull() || h.slot() >= len(p.slots) {
		return nil
	}
	s := &p.slots[h.slot()]
	if !s.active || s.gen != h.gen() {
		return nil
	}
	return s
}

// release frees s with a terminal state and retires its generation.
func (p *pool) release(s *slot, st State) {
	s.state = st
	s.active = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
}

func (p *pool) inUse() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].active {
			n++
		}
	}
	return n
}

// elapsed is the running time of s, excluding time spent paused.
func (s *slot) elapsed(now time.Time) time.Duration {
	if s.state == Paused {
		return s.pausedAt.Sub(s.start)
	}
	return now.Sub(s.start)
}
