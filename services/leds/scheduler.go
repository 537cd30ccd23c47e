// services/leds/scheduler.go
package leds

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/types"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// Strip pushes one frame to the LEDs.
type Strip interface {
	Apply(frame []types.Color) error
}

type op uint8

const (
	opSetLED op = iota + 1
	opClearLED
	opSetAll
	opBrightness
	opStart
	opStop
	opPause
	opResume
	opStopAll
	opFeedback
	opState
)

type request struct {
	op     op
	index  uint8
	color  types.Color
	level  uint8
	handle Handle
	cfg    Config
	d      time.Duration

	// reply is unbuffered; abandon is closed by a caller that gave up, so
	// an answer is either received or known to be unwanted.
	reply   chan reply
	abandon chan struct{}
}

type reply struct {
	handle Handle
	state  State
	ok     bool
}

// Scheduler owns the strip, the effect pool and the manual colour overlay.
// All of them are touched only by its goroutine; callers talk to it
// through a bounded request queue.
type Scheduler struct {
	cfg   config
	log   *slog.Logger
	strip Strip
	queue chan request

	// Owner-only state.
	pool       pool
	frame      []types.Color
	out        []types.Color
	manual     []types.Color
	manualMask []bool
	brightness uint8

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	frames      atomic.Uint64
	applyErrors atomic.Uint64
	dropped     atomic.Uint64
	abandoned   atomic.Uint64
	active      atomic.Int32

	lastMu sync.Mutex
	last   []types.Color
}

func New(strip Strip, opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Scheduler{
		cfg:        cfg,
		log:        logx.Service(cfg.logger, "leds"),
		strip:      strip,
		queue:      make(chan request, cfg.queueSize),
		pool:       newPool(cfg.poolSize),
		frame:      make([]types.Color, cfg.count),
		out:        make([]types.Color, cfg.count),
		manual:     make([]types.Color, cfg.count),
		manualMask: make([]bool, cfg.count),
		brightness: cfg.brightness,
		last:       make([]types.Color, cfg.count),
	}
}

// Count returns the number of LEDs driven.
func (s *Scheduler) Count() int { return s.cfg.count }

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.running.Load() {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.run(ctx, s.stop, s.done)
	return nil
}

// Stop ends the render loop and turns the strip off.
func (s *Scheduler) Stop() error {
	s.lifeMu.Lock()
	if !s.running.Load() {
		s.lifeMu.Unlock()
		return nil
	}
	s.running.Store(false)
	close(s.stop)
	done := s.done
	s.lifeMu.Unlock()
	if !timex.Join(done, s.cfg.joinTimeout) {
		s.log.Warn("render loop did not exit in time")
	}
	return nil
}

func (s *Scheduler) Running() bool { return s.running.Load() }

// -----------------------------------------------------------------------------
// Fire-and-forget requests
// -----------------------------------------------------------------------------

func (s *Scheduler) post(r request) error {
	select {
	case s.queue <- r:
		return nil
	default:
		s.dropped.Add(1)
		return errcode.Full
	}
}

func (s *Scheduler) checkIndex(i uint8) error {
	if int(i) >= s.cfg.count {
		return errcode.InvalidParams
	}
	return nil
}

// SetLED pins LED i to c until cleared. Short effects still draw over it.
func (s *Scheduler) SetLED(i uint8, c types.Color) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	return s.post(request{op: opSetLED, index: i, color: c})
}

func (s *Scheduler) ClearLED(i uint8) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	return s.post(request{op: opClearLED, index: i})
}

// SetAll pins every LED to c. ColorOff releases the overlay.
func (s *Scheduler) SetAll(c types.Color) error {
	return s.post(request{op: opSetAll, color: c})
}

func (s *Scheduler) SetBrightness(b uint8) error {
	return s.post(request{op: opBrightness, level: b})
}

func (s *Scheduler) StopEffect(h Handle) error {
	if h.IsNull() {
		return errcode.InvalidParams
	}
	return s.post(request{op: opStop, handle: h})
}

func (s *Scheduler) PauseEffect(h Handle) error {
	if h.IsNull() {
		return errcode.InvalidParams
	}
	return s.post(request{op: opPause, handle: h})
}

func (s *Scheduler) ResumeEffect(h Handle) error {
	if h.IsNull() {
		return errcode.InvalidParams
	}
	return s.post(request{op: opResume, handle: h})
}

func (s *Scheduler) StopAll() error {
	return s.post(request{op: opStopAll})
}

// Feedback shows c on LED i for d using a pooled static effect. A zero
// duration clears the LED instead.
func (s *Scheduler) Feedback(i uint8, c types.Color, d time.Duration) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if d <= 0 {
		return s.ClearLED(i)
	}
	return s.post(request{op: opFeedback, index: i, color: c, d: d})
}

// -----------------------------------------------------------------------------
// Requests with a reply
// -----------------------------------------------------------------------------

func (s *Scheduler) call(r request) (reply, bool) {
	if !s.running.Load() {
		return reply{}, false
	}
	r.reply = make(chan reply)
	r.abandon = make(chan struct{})
	if err := s.post(r); err != nil {
		return reply{}, false
	}
	t := time.NewTimer(s.cfg.replyTimeout)
	defer t.Stop()
	select {
	case rep := <-r.reply:
		return rep, true
	case <-t.C:
		close(r.abandon)
		s.log.Warn("reply timed out", "op", r.op)
		return reply{}, false
	}
}

// StartEffect runs cfg and returns its handle. The null handle means the
// config was invalid, the pool was exhausted, or the scheduler did not
// answer in time.
func (s *Scheduler) StartEffect(cfg Config) Handle {
	if err := cfg.validate(); err != nil {
		return 0
	}
	rep, ok := s.call(request{op: opStart, cfg: cfg})
	if !ok {
		return 0
	}
	return rep.handle
}

// EffectState reports the state of a live handle. ok is false for a null,
// stale or finished handle.
func (s *Scheduler) EffectState(h Handle) (State, bool) {
	if h.IsNull() {
		return Stopped, false
	}
	rep, ok := s.call(request{op: opState, handle: h})
	if !ok || !rep.ok {
		return Stopped, false
	}
	return rep.state, true
}

// Subscribe routes LED feedback events from b into Feedback.
func (s *Scheduler) Subscribe(b *bus.Bus) error {
	return b.Subscribe(bus.LEDFeedbackRequest, "leds", func(ev bus.Event) bool {
		p, ok := ev.Payload.(bus.LEDFeedbackPayload)
		if !ok {
			return false
		}
		return s.Feedback(p.Index, p.Color, p.Duration) == nil
	}, bus.PriorityLow)
}

// -----------------------------------------------------------------------------
// Owner loop
// -----------------------------------------------------------------------------

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.blank()

	tick := time.NewTicker(s.cfg.tick)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.running.Store(false)
			return
		case <-stop:
			return
		case r := <-s.queue:
			s.handle(r, time.Now())
		case now := <-tick.C:
			s.renderFrame(now)
		}
	}
}

func (s *Scheduler) handle(r request, now time.Time) {
	switch r.op {
	case opSetLED:
		s.manual[r.index] = r.color
		s.manualMask[r.index] = true
	case opClearLED:
		s.manual[r.index] = types.ColorOff
		s.manualMask[r.index] = false
	case opSetAll:
		for i := range s.manual {
			s.manual[i] = r.color
			s.manualMask[i] = r.color != types.ColorOff
		}
	case opBrightness:
		s.brightness = r.level
	case opStart:
		h, ok := s.pool.alloc(r.cfg.normalise(s.cfg.count), now)
		if !ok {
			s.log.Warn("effect pool exhausted", "kind", r.cfg.Kind)
		}
		if !s.answer(r, reply{handle: h, ok: ok}) && ok {
			// Nobody holds h, so nothing could ever stop it.
			s.pool.release(s.pool.lookup(h), Stopped)
			s.abandoned.Add(1)
		}
	case opStop:
		if sl := s.pool.lookup(r.handle); sl != nil {
			s.pool.release(sl, Stopped)
		}
	case opPause:
		if sl := s.pool.lookup(r.handle); sl != nil && sl.state == Running {
			sl.state = Paused
			sl.pausedAt = now
		}
	case opResume:
		if sl := s.pool.lookup(r.handle); sl != nil && sl.state == Paused {
			sl.start = sl.start.Add(now.Sub(sl.pausedAt))
			sl.state = Running
		}
	case opStopAll:
		for i := range s.pool.slots {
			if s.pool.slots[i].active {
				s.pool.release(&s.pool.slots[i], Stopped)
			}
		}
	case opFeedback:
		s.manualMask[r.index] = false
		cfg := Static(r.color, r.index, 1, r.d)
		if _, ok := s.pool.alloc(cfg.normalise(s.cfg.count), now); !ok {
			s.log.Debug("feedback skipped, pool exhausted", "led", r.index)
		}
	case opState:
		rep := reply{}
		if sl := s.pool.lookup(r.handle); sl != nil {
			rep = reply{handle: r.handle, state: sl.state, ok: true}
		}
		s.answer(r, rep)
	}
	s.active.Store(int32(s.pool.inUse()))
}

// answer hands rep to the waiting caller. It reports false when the caller
// has already timed out.
func (s *Scheduler) answer(r request, rep reply) bool {
	if r.reply == nil {
		return true
	}
	select {
	case r.reply <- rep:
		return true
	case <-r.abandon:
		return false
	}
}

// renderFrame composes effects, the manual overlay and global brightness,
// then pushes the result to the strip.
func (s *Scheduler) renderFrame(now time.Time) {
	for i := range s.frame {
		s.frame[i] = types.ColorOff
	}
	for i := range s.pool.slots {
		sl := &s.pool.slots[i]
		if !sl.active || sl.state != Running {
			continue
		}
		el := sl.elapsed(now)
		if sl.cfg.Duration > 0 && el >= sl.cfg.Duration {
			s.pool.release(sl, Finished)
			continue
		}
		render(&sl.cfg, el, s.frame)
	}
	for i, on := range s.manualMask {
		if on && !s.feedbackCovers(i) {
			s.frame[i] = s.manual[i]
		}
	}
	for i, c := range s.frame {
		s.out[i] = c.Scale(s.brightness)
	}
	s.active.Store(int32(s.pool.inUse()))
	s.push(s.out)
}

// feedbackCovers reports whether a short running effect owns LED i.
func (s *Scheduler) feedbackCovers(i int) bool {
	for j := range s.pool.slots {
		sl := &s.pool.slots[j]
		if sl.active && sl.state == Running && sl.cfg.covers(i) &&
			sl.cfg.Duration > 0 && sl.cfg.Duration <= time.Second {
			return true
		}
	}
	return false
}

func (s *Scheduler) push(frame []types.Color) {
	s.frames.Add(1)
	s.lastMu.Lock()
	copy(s.last, frame)
	s.lastMu.Unlock()
	if s.strip == nil {
		return
	}
	if err := s.strip.Apply(frame); err != nil {
		if s.applyErrors.Add(1) == 1 {
			s.log.Error("strip apply failed", "err", err)
		}
	}
}

func (s *Scheduler) blank() {
	for i := range s.out {
		s.out[i] = types.ColorOff
	}
	s.push(s.out)
}

// Frame returns a copy of the most recently pushed frame.
func (s *Scheduler) Frame() []types.Color {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return append([]types.Color(nil), s.last...)
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

type Stats struct {
	Frames      uint64
	ApplyErrors uint64
	Dropped     uint64
	Abandoned   uint64
	Active      int
	PoolSize    int
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Frames:      s.frames.Load(),
		ApplyErrors: s.applyErrors.Load(),
		Dropped:     s.dropped.Load(),
		Abandoned:   s.abandoned.Load(),
		Active:      int(s.active.Load()),
		PoolSize:    s.cfg.poolSize,
	}
}
