package bus

import (
	"sync/atomic"
)

type counters struct {
	published atomic.Uint64
	processed atomic.Uint64
	handled   atomic.Uint64
	unhandled atomic.Uint64
	dropped   atomic.Uint64
	requeued  atomic.Uint64
	errors    atomic.Uint64
	purges    atomic.Uint64
}

// Stats is a point-in-time copy of the bus counters.
//
// Once the queue is drained, Published == Processed + Dropped. Requeued
// events are still in flight and are not counted twice.
type Stats struct {
	Published   uint64
	Processed   uint64
	Handled     uint64
	Unhandled   uint64
	Dropped     uint64
	Requeued    uint64
	Errors      uint64
	Purges      uint64
	QueueLen    int
	QueueCap    int
	Subscribers int
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published:   b.st.published.Load(),
		Processed:   b.st.processed.Load(),
		Handled:     b.st.handled.Load(),
		Unhandled:   b.st.unhandled.Load(),
		Dropped:     b.st.dropped.Load(),
		Requeued:    b.st.requeued.Load(),
		Errors:      b.st.errors.Load(),
		Purges:      b.st.purges.Load(),
		QueueLen:    len(b.queue),
		QueueCap:    cap(b.queue),
		Subscribers: int(b.nsubs.Load()),
	}
}

// Purge drops every queued event and returns how many were dropped.
func (b *Bus) Purge() int {
	return b.purge(cap(b.queue))
}

func (b *Bus) purge(limit int) int {
	n := 0
	for n < limit {
		select {
		case <-b.queue:
			n++
		default:
			b.st.dropped.Add(uint64(n))
			return n
		}
	}
	b.st.dropped.Add(uint64(n))
	return n
}

// emergencyPurge answers an error streak: shed a bounded backlog, then back
// off briefly so a stuck subscriber is not hammered.
func (b *Bus) emergencyPurge(stop <-chan struct{}) {
	n := b.purge(b.cfg.purgeLimit)
	b.st.purges.Add(1)
	b.log.Warn("error streak, emergency purge", "streak", b.errStreak, "dropped", n)
	b.errStreak = 0
	sleep(b.cfg.purgePause, stop)
}

// healthCheck purges when the queue is over 80% full or more than 5% of the
// deliveries since the last check failed.
func (b *Bus) healthCheck() {
	proc := b.st.processed.Load()
	errs := b.st.errors.Load()
	dProc := proc - b.lastProc
	dErrs := errs - b.lastErrs
	b.lastProc, b.lastErrs = proc, errs

	occupancy := len(b.queue) * 100 / cap(b.queue)
	attempts := dProc + dErrs
	highErrors := attempts > 0 && dErrs*100 > attempts*5

	if occupancy <= 80 && !highErrors {
		return
	}
	n := b.purge(b.cfg.purgeLimit)
	b.st.purges.Add(1)
	b.log.Warn("health check purge", "occupancy_pct", occupancy, "errors", dErrs, "attempts", attempts, "dropped", n)
}
