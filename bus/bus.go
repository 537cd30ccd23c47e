// bus.go
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/errcode"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Handler consumes an event and reports whether it handled it.
type Handler func(ev Event) bool

type subscription struct {
	typ     Type
	name    string
	h       Handler
	min     Priority
	enabled bool
}

// Publisher is the thread-context publishing surface handed to components.
type Publisher interface {
	Publish(t Type, p Payload, prio Priority, src ModuleID) error
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type envelope struct {
	ev       Event
	requeued bool
}

// Bus is a bounded priority publish/subscribe transport drained by one
// consumer goroutine.
type Bus struct {
	cfg config
	log *slog.Logger

	queue chan envelope

	// Subscriber table. tableLock is a one-slot semaphore so that every
	// acquisition can be bounded by a timeout.
	tableLock chan struct{}
	subs      []*subscription
	nsubs     atomic.Int32

	lifeMu  sync.Mutex
	running atomic.Bool
	closed  atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	st counters

	// Consumer-owned.
	scratch   []subscription
	errStreak int
	lastProc  uint64
	lastErrs  uint64
}

// New creates a bus. Events may be published before Start; they wait in the
// queue until the consumer runs.
func New(opts ...Option) *Bus {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Bus{
		cfg:       cfg,
		log:       logx.Service(cfg.logger, "bus"),
		queue:     make(chan envelope, cfg.queueSize),
		tableLock: make(chan struct{}, 1),
		scratch:   make([]subscription, 0, cfg.maxSubscribers),
	}
}

// Start launches the consumer. Calling Start on a running bus is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if b.running.Load() {
		return nil
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.closed.Store(false)
	b.running.Store(true)
	go b.run(ctx, b.stop, b.done)
	b.log.Info("started", "queue", cap(b.queue), "max_subs", b.cfg.maxSubscribers)
	return nil
}

// Stop asks the consumer to exit and waits up to the join timeout. A
// consumer that fails to join is logged, not reported; the bus is closed to
// new publishes either way. Events still queued are discarded and counted
// as dropped, so Published == Processed + Dropped once Stop returns.
func (b *Bus) Stop() error {
	b.lifeMu.Lock()
	if !b.running.Load() {
		b.closed.Store(true)
		b.lifeMu.Unlock()
		b.discardBacklog()
		return nil
	}
	b.running.Store(false)
	close(b.stop)
	done := b.done
	b.lifeMu.Unlock()

	if !timex.Join(done, b.cfg.joinTimeout) {
		b.log.Warn("consumer did not exit in time", "timeout", b.cfg.joinTimeout)
	}
	b.closed.Store(true)
	b.discardBacklog()
	return nil
}

func (b *Bus) discardBacklog() {
	if n := b.purge(cap(b.queue)); n > 0 {
		b.log.Info("discarded queued events on stop", "count", n)
	}
}

// Running reports whether the consumer goroutine is active.
func (b *Bus) Running() bool { return b.running.Load() }

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

// Publish validates and enqueues a copy of the event. A full queue drops the
// event and returns errcode.Full.
func (b *Bus) Publish(t Type, p Payload, prio Priority, src ModuleID) error {
	if b.closed.Load() {
		return errcode.NotRunning
	}
	ev, err := NewEvent(t, p, prio, src)
	if err != nil {
		return err
	}
	if err := b.enqueue(ev, b.cfg.publishTimeout); err != nil {
		b.log.Debug("event dropped", "type", t, "queue", len(b.queue))
		return err
	}
	return nil
}

// PublishSync dispatches the event to every matching subscriber before
// returning. It does not touch the queue.
func (b *Bus) PublishSync(t Type, p Payload, prio Priority, src ModuleID) error {
	if b.closed.Load() {
		return errcode.NotRunning
	}
	ev, err := NewEvent(t, p, prio, src)
	if err != nil {
		return err
	}
	b.st.published.Add(1)
	subs, ok := b.snapshot(ev, nil)
	if !ok {
		b.st.errors.Add(1)
		b.st.dropped.Add(1)
		return errcode.Timeout
	}
	b.dispatch(ev, subs)
	return nil
}

// enqueue never blocks when wait is zero; it is the only path the ISR
// capability uses.
func (b *Bus) enqueue(ev Event, wait time.Duration) error {
	b.st.published.Add(1)
	select {
	case b.queue <- envelope{ev: ev}:
		return nil
	default:
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case b.queue <- envelope{ev: ev}:
			return nil
		case <-t.C:
		}
	}
	b.st.dropped.Add(1)
	return errcode.Full
}

// -----------------------------------------------------------------------------
// Subscriber table
// -----------------------------------------------------------------------------

func (b *Bus) lockTable(d time.Duration) bool {
	select {
	case b.tableLock <- struct{}{}:
		return true
	default:
	}
	if d <= 0 {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case b.tableLock <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (b *Bus) unlockTable() { <-b.tableLock }

// Subscribe registers handler under name for events of type t whose
// priority is at least min. Each (t, name) pair may be registered once.
func (b *Bus) Subscribe(t Type, name string, h Handler, min Priority) error {
	if h == nil || name == "" {
		return errcode.InvalidParams
	}
	if _, ok := t.payloadKind(); !ok {
		return errcode.InvalidParams
	}
	if !b.lockTable(b.cfg.lockTimeout) {
		return errcode.Timeout
	}
	defer b.unlockTable()
	for _, s := range b.subs {
		if s.typ == t && s.name == name {
			return errcode.Busy
		}
	}
	if len(b.subs) >= b.cfg.maxSubscribers {
		return errcode.Full
	}
	b.subs = append(b.subs, &subscription{typ: t, name: name, h: h, min: min, enabled: true})
	b.nsubs.Store(int32(len(b.subs)))
	return nil
}

// Unsubscribe removes the (t, name) subscription.
func (b *Bus) Unsubscribe(t Type, name string) error {
	if !b.lockTable(b.cfg.lockTimeout) {
		return errcode.Timeout
	}
	defer b.unlockTable()
	for i, s := range b.subs {
		if s.typ == t && s.name == name {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			b.nsubs.Store(int32(len(b.subs)))
			return nil
		}
	}
	return errcode.NotFound
}

// SetEnabled pauses or resumes delivery to one subscription without losing
// its slot.
func (b *Bus) SetEnabled(t Type, name string, on bool) error {
	if !b.lockTable(b.cfg.lockTimeout) {
		return errcode.Timeout
	}
	defer b.unlockTable()
	for _, s := range b.subs {
		if s.typ == t && s.name == name {
			s.enabled = on
			return nil
		}
	}
	return errcode.NotFound
}

// snapshot copies the subscriptions eligible for ev into dst so handlers run
// without the table lock held.
func (b *Bus) snapshot(ev Event, dst []subscription) ([]subscription, bool) {
	if !b.lockTable(b.cfg.lockTimeout) {
		return dst, false
	}
	dst = dst[:0]
	for _, s := range b.subs {
		if s.typ != ev.Type || !s.enabled || ev.Priority < s.min {
			continue
		}
		dst = append(dst, *s)
	}
	b.unlockTable()
	return dst, true
}

// -----------------------------------------------------------------------------
// Consumer
// -----------------------------------------------------------------------------

func (b *Bus) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(b.cfg.recvTimeout)
	defer timer.Stop()
	lastCheck := time.Now()

	for b.running.Load() {
		timex.ResetTimer(timer, b.cfg.recvTimeout)
		select {
		case <-ctx.Done():
			b.running.Store(false)
			b.closed.Store(true)
			return
		case <-stop:
			return
		case env := <-b.queue:
			b.deliver(env, stop)
		case <-timer.C:
		}

		if b.errStreak >= b.cfg.errorThreshold {
			b.emergencyPurge(stop)
		}
		if time.Since(lastCheck) >= b.cfg.healthInterval {
			b.healthCheck()
			lastCheck = time.Now()
		}
	}
}

func (b *Bus) deliver(env envelope, stop <-chan struct{}) {
	subs, ok := b.snapshot(env.ev, b.scratch)
	if ok {
		b.scratch = subs
		b.dispatch(env.ev, subs)
		b.errStreak = 0
		return
	}
	if env.ev.Type == LEDFeedbackRequest {
		b.retryFeedback(env, stop)
		return
	}
	b.fail()
	b.st.dropped.Add(1)
	b.log.Warn("subscriber table busy, event dropped", "type", env.ev.Type)
}

// retryFeedback gives LED feedback a bounded second chance: backoff retries,
// then one trip back through the queue, then a drop.
func (b *Bus) retryFeedback(env envelope, stop <-chan struct{}) {
	for _, d := range b.cfg.ledBackoff {
		if !sleep(d, stop) {
			break
		}
		if subs, ok := b.snapshot(env.ev, b.scratch); ok {
			b.scratch = subs
			b.dispatch(env.ev, subs)
			b.errStreak = 0
			return
		}
	}
	b.fail()
	if !env.requeued {
		env.requeued = true
		select {
		case b.queue <- env:
			b.st.requeued.Add(1)
			return
		default:
		}
	}
	b.st.dropped.Add(1)
	b.log.Warn("led feedback dropped", "requeued", env.requeued)
}

func (b *Bus) dispatch(ev Event, subs []subscription) {
	handled := false
	for i := range subs {
		if b.invoke(&subs[i], ev) {
			handled = true
		}
	}
	b.st.processed.Add(1)
	if handled {
		b.st.handled.Add(1)
	} else {
		b.st.unhandled.Add(1)
	}
}

func (b *Bus) invoke(s *subscription, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.st.errors.Add(1)
			b.log.Error("handler panicked", "subscriber", s.name, "type", ev.Type, "panic", r)
			ok = false
		}
	}()
	return s.h(ev)
}

func (b *Bus) fail() {
	b.st.errors.Add(1)
	b.errStreak++
}

// sleep waits d unless stop closes first; it reports false on stop.
func sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}
