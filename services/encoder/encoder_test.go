package encoder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/services/hid"
	"panelcore/services/keys"
	"panelcore/types"
)

type published struct {
	t bus.Type
	p bus.Payload
}

type recPub struct {
	mu   sync.Mutex
	evs  []published
	fail bool
}

func (r *recPub) Publish(t bus.Type, p bus.Payload, _ bus.Priority, _ bus.ModuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errcode.Full
	}
	r.evs = append(r.evs, published{t, p})
	return nil
}

func (r *recPub) of(t bus.Type) []bus.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Payload
	for _, e := range r.evs {
		if e.t == t {
			out = append(out, e.p)
		}
	}
	return out
}

type fakeCounter struct{ n atomic.Int32 }

func (f *fakeCounter) Count() int32 { return f.n.Load() }
func (f *fakeCounter) Reset()       { f.n.Store(0) }

type fakeDimmer struct{ levels []uint8 }

func (d *fakeDimmer) SetBrightness(l uint8) error {
	d.levels = append(d.levels, l)
	return nil
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
	t.Fatalf("timed out waiting for %s", what)
}

func TestQuadratureCountsBothDirections(t *testing.T) {
	q := NewQuadrature()
	cw := [][2]bool{{true, false}, {true, true}, {false, true}, {false, false}}
	for _, s := range cw {
		q.Step(s[0], s[1])
	}
	if q.Count() != 4 {
		t.Fatalf("cw count = %d", q.Count())
	}
	for i := len(cw) - 2; i >= 0; i-- {
		q.Step(cw[i][0], cw[i][1])
	}
	q.Step(false, false)
	if q.Count() != 0 {
		t.Fatalf("after ccw count = %d", q.Count())
	}

	q.Step(true, true) // skipped a state
	if q.Invalid() != 1 || q.Count() != 0 {
		t.Fatalf("invalid=%d count=%d", q.Invalid(), q.Count())
	}
}

func TestSampleAppliesSensitivityWithCarry(t *testing.T) {
	src := &fakeCounter{}
	pub := &recPub{}
	e := New(src, pub)
	e.SetSensitivity(4)

	src.n.Store(3)
	e.sample()
	if len(pub.of(bus.EncoderRotated)) != 0 {
		t.Fatal("published below one step")
	}
	src.n.Store(9)
	e.sample()
	evs := pub.of(bus.EncoderRotated)
	if len(evs) != 1 || evs[0].(bus.EncoderPayload).Delta != 2 {
		t.Fatalf("events = %v", evs)
	}
	// One raw count left over; three more make a step.
	src.n.Store(12)
	e.sample()
	if got := e.Total(); got != 3 {
		t.Fatalf("total = %d", got)
	}

	src.n.Store(4)
	e.sample()
	evs = pub.of(bus.EncoderRotated)
	if d := evs[len(evs)-1].(bus.EncoderPayload).Delta; d != -2 {
		t.Fatalf("delta = %d", d)
	}
}

func TestSetModeTagsEventsAndAnnounces(t *testing.T) {
	src := &fakeCounter{}
	pub := &recPub{}
	e := New(src, pub)

	if err := e.SetMode(bus.EncoderMode(99)); err != errcode.InvalidParams {
		t.Fatalf("err = %v", err)
	}
	_ = e.SetMode(bus.EncoderVolume)
	_ = e.SetMode(bus.EncoderVolume)
	if n := len(pub.of(bus.EncoderModeChanged)); n != 1 {
		t.Fatalf("mode events = %d", n)
	}
	src.n.Store(1)
	e.sample()
	evs := pub.of(bus.EncoderRotated)
	if evs[0].(bus.EncoderPayload).Mode != bus.EncoderVolume {
		t.Fatalf("mode = %v", evs[0])
	}
}

func TestDroppedPublishCounted(t *testing.T) {
	src := &fakeCounter{}
	pub := &recPub{fail: true}
	e := New(src, pub)
	src.n.Store(5)
	e.sample()
	if e.Stats().Dropped != 1 {
		t.Fatalf("dropped = %d", e.Stats().Dropped)
	}
}

func TestPollerPublishes(t *testing.T) {
	src := &fakeCounter{}
	pub := &recPub{}
	e := New(src, pub, WithPollInterval(time.Millisecond))
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	src.n.Add(2)
	waitFor(t, "rotation event", func() bool { return len(pub.of(bus.EncoderRotated)) > 0 })

	_ = e.Stop()
	_ = e.Stop()
	if e.Running() {
		t.Fatal("still running")
	}
}

func TestSelectModeKeys(t *testing.T) {
	pub := &recPub{}
	src := &fakeCounter{}
	e := New(src, pub)
	c := NewControl(e, pub, nil, nil)
	h := c.Context().Handler

	if !h(1, keys.Clicked) {
		t.Fatal("key 1 not handled")
	}
	if e.Mode() != bus.EncoderScroll || e.Sensitivity() != 4 {
		t.Fatalf("mode=%v sens=%d", e.Mode(), e.Sensitivity())
	}
	leds := pub.of(bus.LEDFeedbackRequest)
	last := leds[len(leds)-1].(bus.LEDFeedbackPayload)
	if last.Index != 1 || last.Color != types.ColorBlue || last.Duration != 500*time.Millisecond {
		t.Fatalf("feedback = %+v", last)
	}

	src.n.Store(40)
	_ = h(3, keys.Clicked)
	if e.Mode() != bus.EncoderIdle || src.Count() != 0 {
		t.Fatal("key 3 did not reset to idle")
	}
	if h(7, keys.Clicked) {
		t.Fatal("out of range key handled")
	}
}

func TestRotationByMode(t *testing.T) {
	pub := &recPub{}
	dim := &fakeDimmer{}
	c := NewControl(New(&fakeCounter{}, pub), pub, dim, nil)
	rot := func(m bus.EncoderMode, d int16) bool {
		return c.onRotate(bus.Event{Type: bus.EncoderRotated, Payload: bus.EncoderPayload{Delta: d, Mode: m}})
	}

	if !rot(bus.EncoderVolume, 1) {
		t.Fatal("volume not handled")
	}
	cons := pub.of(bus.HIDConsumer)
	if len(cons) != 1 || cons[0].(bus.HIDPayload).Consumer != hid.ConsumerVolumeUp {
		t.Fatalf("consumer = %v", cons)
	}

	rot(bus.EncoderScroll, -1)
	combos := pub.of(bus.HIDKey)
	if len(combos) != 1 || combos[0].(bus.HIDPayload).Key != hid.KeyPageUp {
		t.Fatalf("combos = %v", combos)
	}

	rot(bus.EncoderBrightness, -3)
	if c.Brightness() != 255-3*32 || dim.levels[0] != 159 {
		t.Fatalf("brightness = %d", c.Brightness())
	}
	rot(bus.EncoderBrightness, -10)
	if c.Brightness() != 16 {
		t.Fatalf("brightness not clamped: %d", c.Brightness())
	}

	if rot(bus.EncoderIdle, 1) {
		t.Fatal("idle rotation handled")
	}
	if s := c.Stats(); s.Ignored != 1 || s.Rotations != 5 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestMenuNavFeedback(t *testing.T) {
	pub := &recPub{}
	c := NewControl(New(&fakeCounter{}, pub), pub, nil, nil)
	c.onRotate(bus.Event{Payload: bus.EncoderPayload{Delta: -1, Mode: bus.EncoderMenuNav}})
	leds := pub.of(bus.LEDFeedbackRequest)
	if len(leds) != 1 {
		t.Fatalf("feedback = %v", leds)
	}
	if p := leds[0].(bus.LEDFeedbackPayload); p.Index != 0 || p.Color != types.ColorPurple {
		t.Fatalf("feedback = %+v", p)
	}
}
