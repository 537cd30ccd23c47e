package leds

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/types"
)

// memStrip keeps the last applied frame.
type memStrip struct {
	mu    sync.Mutex
	last  []types.Color
	calls int
	err   error
}

func (m *memStrip) Apply(f []types.Color) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last[:0], f...)
	m.calls++
	return m.err
}

func (m *memStrip) frame() []types.Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Color(nil), m.last...)
}

// slowStrip stalls Apply while slow is set and signals each stalled call.
type slowStrip struct {
	slow    atomic.Bool
	stalled chan struct{}
}

func (s *slowStrip) Apply([]types.Color) error {
	if s.slow.Load() {
		select {
		case s.stalled <- struct{}{}:
		default:
		}
		time.Sleep(60 * time.Millisecond)
	}
	return nil
}

func startScheduler(t *testing.T, strip Strip, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithTick(2 * time.Millisecond)}, opts...)
	s := New(strip, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Stop()
		cancel()
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func ledIs(s *Scheduler, i int, c types.Color) func() bool {
	return func() bool {
		f := s.Frame()
		return i < len(f) && f[i] == c
	}
}

func TestPoolBound(t *testing.T) {
	s := startScheduler(t, &memStrip{})
	var hs []Handle
	for i := 0; i < 4; i++ {
		h := s.StartEffect(Breathing(types.ColorBlue, time.Second))
		if h.IsNull() {
			t.Fatalf("effect %d got null handle", i)
		}
		hs = append(hs, h)
	}
	if h := s.StartEffect(Breathing(types.ColorBlue, time.Second)); !h.IsNull() {
		t.Fatalf("fifth effect got %x, want null", h)
	}

	if err := s.StopEffect(hs[1]); err != nil {
		t.Fatal(err)
	}
	h := s.StartEffect(Static(types.ColorRed, 0, 0, 0))
	if h.IsNull() {
		t.Fatal("freed slot was not reusable")
	}
	if _, ok := s.EffectState(hs[1]); ok {
		t.Fatal("stopped handle still resolves")
	}
	if st, ok := s.EffectState(h); !ok || st != Running {
		t.Fatalf("new effect state = %v, %v", st, ok)
	}
}

func TestTimedOutStartReleasesSlot(t *testing.T) {
	strip := &slowStrip{stalled: make(chan struct{}, 1)}
	s := startScheduler(t, strip, WithPoolSize(1), WithReplyTimeout(20*time.Millisecond))

	strip.slow.Store(true)
	select {
	case <-strip.stalled:
	case <-time.After(time.Second):
		t.Fatal("render loop never reached the strip")
	}
	if h := s.StartEffect(Breathing(types.ColorCyan, time.Second)); !h.IsNull() {
		t.Fatalf("start during a stalled frame returned %v, want null", h)
	}
	strip.slow.Store(false)

	waitFor(t, "abandoned effect released", func() bool {
		st := s.Stats()
		return st.Abandoned == 1 && st.Active == 0
	})
	h := s.StartEffect(Breathing(types.ColorCyan, time.Second))
	if h.IsNull() {
		t.Fatal("pool still exhausted after a timed-out start")
	}
	if st, ok := s.EffectState(h); !ok || st != Running {
		t.Fatalf("state = %v, %v", st, ok)
	}
}

func TestStartEffectRejectsInvalidConfig(t *testing.T) {
	s := startScheduler(t, &memStrip{})
	if h := s.StartEffect(Config{Kind: KindBlink, NColors: 1}); !h.IsNull() {
		t.Fatal("blink without period accepted")
	}
}

func TestStartEffectWhenStoppedReturnsNull(t *testing.T) {
	s := New(&memStrip{})
	if h := s.StartEffect(Breathing(types.ColorRed, time.Second)); !h.IsNull() {
		t.Fatal("scheduler not running but handed out a handle")
	}
}

func TestFeedbackOverridesManualThenExpires(t *testing.T) {
	strip := &memStrip{}
	s := startScheduler(t, strip)
	if err := s.SetLED(0, types.ColorRed); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "manual red", ledIs(s, 0, types.ColorRed))

	if err := s.Feedback(0, types.ColorBlue, 60*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "feedback blue", ledIs(s, 0, types.ColorBlue))
	// Feedback releases the manual pin on that LED.
	waitFor(t, "feedback expiry", ledIs(s, 0, types.ColorOff))
	if got := strip.frame(); len(got) != 3 {
		t.Fatalf("strip got %d LEDs", len(got))
	}
}

func TestShortEffectDrawsOverManual(t *testing.T) {
	s := startScheduler(t, &memStrip{})
	_ = s.SetLED(1, types.ColorGreen)
	h := s.StartEffect(Static(types.ColorPurple, 1, 1, 500*time.Millisecond))
	if h.IsNull() {
		t.Fatal("null handle")
	}
	waitFor(t, "purple over green", ledIs(s, 1, types.ColorPurple))
	_ = s.StopEffect(h)
	waitFor(t, "manual restored", ledIs(s, 1, types.ColorGreen))
}

func TestLongEffectDoesNotOverrideManual(t *testing.T) {
	s := startScheduler(t, &memStrip{})
	_ = s.SetLED(2, types.ColorGreen)
	if h := s.StartEffect(Static(types.ColorPurple, 0, 0, 0)); h.IsNull() {
		t.Fatal("null handle")
	}
	waitFor(t, "purple on unpinned LED", ledIs(s, 0, types.ColorPurple))
	if got := s.Frame()[2]; got != types.ColorGreen {
		t.Fatalf("pinned LED = %06x", got)
	}
}

func TestGlobalBrightness(t *testing.T) {
	s := startScheduler(t, &memStrip{})
	_ = s.SetAll(types.ColorWhite)
	_ = s.SetBrightness(128)
	waitFor(t, "scaled white", ledIs(s, 0, types.ColorWhite.Scale(128)))

	_ = s.SetAll(types.ColorOff)
	waitFor(t, "overlay released", ledIs(s, 0, types.ColorOff))
}

func TestPauseResume(t *testing.T) {
	s := startScheduler(t, &memStrip{})
	h := s.StartEffect(Static(types.ColorCyan, 0, 1, 0))
	_ = s.PauseEffect(h)
	waitFor(t, "paused", func() bool { st, _ := s.EffectState(h); return st == Paused })
	waitFor(t, "paused effect not drawn", ledIs(s, 0, types.ColorOff))

	_ = s.ResumeEffect(h)
	waitFor(t, "resumed", ledIs(s, 0, types.ColorCyan))

	_ = s.StopAll()
	waitFor(t, "all stopped", func() bool { return s.Stats().Active == 0 })
}

func TestFullQueueReturnsFull(t *testing.T) {
	s := New(&memStrip{}, WithQueueSize(1))
	if err := s.SetLED(0, types.ColorRed); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLED(0, types.ColorRed); err != errcode.Full {
		t.Fatalf("second post: %v", err)
	}
	if s.Stats().Dropped != 1 {
		t.Fatalf("dropped = %d", s.Stats().Dropped)
	}
	if err := s.SetLED(9, types.ColorRed); err != errcode.InvalidParams {
		t.Fatalf("out of range: %v", err)
	}
}

func TestStopBlanksStrip(t *testing.T) {
	strip := &memStrip{}
	s := New(strip, WithTick(2*time.Millisecond))
	_ = s.Start(context.Background())
	_ = s.SetAll(types.ColorRed)
	waitFor(t, "red", ledIs(s, 0, types.ColorRed))
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	for i, c := range strip.frame() {
		if c != types.ColorOff {
			t.Fatalf("led %d left at %06x", i, c)
		}
	}
}

func TestApplyErrorsCounted(t *testing.T) {
	strip := &memStrip{err: errors.New("bus stuck")}
	s := startScheduler(t, strip)
	waitFor(t, "apply errors", func() bool { return s.Stats().ApplyErrors >= 2 })
}

func TestBusFeedbackReachesStrip(t *testing.T) {
	b := bus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = b.Start(ctx)
	defer b.Stop()

	s := startScheduler(t, &memStrip{})
	if err := s.Subscribe(b); err != nil {
		t.Fatal(err)
	}
	if err := bus.PublishLEDFeedback(b, 2, types.ColorOrange, 300*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "orange via bus", ledIs(s, 2, types.ColorOrange))
}
