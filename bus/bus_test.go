// bus/bus_test.go
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"panelcore/errcode"
	"panelcore/types"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func startBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = b.Stop()
		cancel()
	})
	return b
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

func systemStatus(b *Bus, prio Priority) error {
	return b.Publish(SystemStatus, nil, prio, ModuleSystem)
}

// -----------------------------------------------------------------------------
// Delivery
// -----------------------------------------------------------------------------

func TestDeliveryInRegistrationOrder(t *testing.T) {
	b := startBus(t)

	var mu sync.Mutex
	var order []string
	rec := func(name string, handled bool) Handler {
		return func(Event) bool {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return handled
		}
	}
	for _, n := range []string{"a", "b", "c"} {
		if err := b.Subscribe(SystemStatus, n, rec(n, n == "b"), PriorityLow); err != nil {
			t.Fatalf("Subscribe %s: %v", n, err)
		}
	}
	if err := systemStatus(b, PriorityNormal); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, "dispatch", func() bool { return b.Stats().Processed == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order %v", order)
	}
	if st := b.Stats(); st.Handled != 1 || st.Unhandled != 0 {
		t.Fatalf("stats %+v", st)
	}
}

func TestFIFOWithinType(t *testing.T) {
	b := startBus(t)
	var mu sync.Mutex
	var got []int16
	_ = b.Subscribe(EncoderRotated, "rec", func(ev Event) bool {
		mu.Lock()
		got = append(got, ev.Payload.(EncoderPayload).Delta)
		mu.Unlock()
		return true
	}, PriorityLow)
	for i := int16(1); i <= 20; i++ {
		if err := b.Publish(EncoderRotated, EncoderPayload{Delta: i}, PriorityNormal, ModuleEncoder); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	waitFor(t, "20 events", func() bool { return b.Stats().Processed == 20 })
	mu.Lock()
	defer mu.Unlock()
	for i, d := range got {
		if d != int16(i+1) {
			t.Fatalf("out of order at %d: %v", i, got)
		}
	}
}

func TestPriorityFloor(t *testing.T) {
	b := startBus(t)
	var seen []Priority
	var mu sync.Mutex
	_ = b.Subscribe(SystemStatus, "high-only", func(ev Event) bool {
		mu.Lock()
		seen = append(seen, ev.Priority)
		mu.Unlock()
		return true
	}, PriorityHigh)

	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical, PriorityNormal} {
		_ = systemStatus(b, p)
	}
	waitFor(t, "all processed", func() bool { return b.Stats().Processed == 5 })

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 deliveries, got %v", seen)
	}
	for _, p := range seen {
		if p < PriorityHigh {
			t.Fatalf("received %s below floor", p)
		}
	}
	if st := b.Stats(); st.Unhandled != 3 || st.Dropped != 0 {
		t.Fatalf("below-floor events must count as unhandled, not dropped: %+v", st)
	}
}

// -----------------------------------------------------------------------------
// Overload accounting
// -----------------------------------------------------------------------------

func TestBurstBeyondCapacityIsAccounted(t *testing.T) {
	b := New()
	t.Cleanup(func() { _ = b.Stop() })

	var handled atomic.Int32
	_ = b.Subscribe(SystemStatus, "count", func(Event) bool { handled.Add(1); return true }, PriorityLow)

	ok, full := 0, 0
	for i := 0; i < 100; i++ {
		switch err := systemStatus(b, PriorityNormal); err {
		case nil:
			ok++
		case errcode.Full:
			full++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 64 || full != 36 {
		t.Fatalf("enqueued=%d dropped=%d", ok, full)
	}
	if st := b.Stats(); st.Dropped != 36 || st.QueueLen != 64 {
		t.Fatalf("stats %+v", st)
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "drain", func() bool { return b.Stats().Processed == 64 })

	st := b.Stats()
	if st.Published != st.Processed+st.Dropped {
		t.Fatalf("published=%d processed=%d dropped=%d", st.Published, st.Processed, st.Dropped)
	}
	if handled.Load() != 64 {
		t.Fatalf("handled %d", handled.Load())
	}
}

// -----------------------------------------------------------------------------
// Subscriber table
// -----------------------------------------------------------------------------

func TestSubscribeRules(t *testing.T) {
	b := New(WithMaxSubscribers(2))
	h := func(Event) bool { return true }

	if err := b.Subscribe(SystemStatus, "", h, PriorityLow); err != errcode.InvalidParams {
		t.Fatalf("empty name: %v", err)
	}
	if err := b.Subscribe(SystemStatus, "x", nil, PriorityLow); err != errcode.InvalidParams {
		t.Fatalf("nil handler: %v", err)
	}
	if err := b.Subscribe(SystemStatus, "x", h, PriorityLow); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(SystemStatus, "x", h, PriorityHigh); err != errcode.Busy {
		t.Fatalf("duplicate: %v", err)
	}
	if err := b.Subscribe(SystemCleanup, "x", h, PriorityLow); err != nil {
		t.Fatalf("same name, other type: %v", err)
	}
	if err := b.Subscribe(SystemWarning, "y", h, PriorityLow); err != errcode.Full {
		t.Fatalf("full table: %v", err)
	}
	if err := b.Unsubscribe(SystemStatus, "x"); err != nil {
		t.Fatal(err)
	}
	if err := b.Unsubscribe(SystemStatus, "x"); err != errcode.NotFound {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if b.Stats().Subscribers != 1 {
		t.Fatalf("subscribers %d", b.Stats().Subscribers)
	}
}

func TestSubscribeLockTimeout(t *testing.T) {
	b := New(WithLockTimeout(5 * time.Millisecond))
	if !b.lockTable(0) {
		t.Fatal("could not take table lock")
	}
	defer b.unlockTable()
	if err := b.Subscribe(SystemStatus, "late", func(Event) bool { return true }, PriorityLow); err != errcode.Timeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDisabledSubscriptionSkipped(t *testing.T) {
	b := startBus(t)
	var n atomic.Int32
	_ = b.Subscribe(SystemStatus, "s", func(Event) bool { n.Add(1); return true }, PriorityLow)
	_ = b.SetEnabled(SystemStatus, "s", false)
	_ = systemStatus(b, PriorityNormal)
	waitFor(t, "first", func() bool { return b.Stats().Processed == 1 })
	if n.Load() != 0 {
		t.Fatal("disabled subscription received event")
	}
	_ = b.SetEnabled(SystemStatus, "s", true)
	_ = systemStatus(b, PriorityNormal)
	waitFor(t, "second", func() bool { return n.Load() == 1 })
}

// -----------------------------------------------------------------------------
// Sync and ISR paths
// -----------------------------------------------------------------------------

func TestPublishSyncRunsInline(t *testing.T) {
	b := New()
	var got atomic.Int32
	_ = b.Subscribe(SystemCleanup, "inline", func(Event) bool { got.Add(1); return true }, PriorityLow)

	if err := b.PublishSync(SystemCleanup, nil, PriorityNormal, ModuleSystem); err != nil {
		t.Fatal(err)
	}
	if got.Load() != 1 {
		t.Fatal("handler did not run before PublishSync returned")
	}
	if st := b.Stats(); st.QueueLen != 0 || st.Processed != 1 || st.Published != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestISRPublishSyncFallsBackToQueue(t *testing.T) {
	b := New(WithQueueSize(2))
	var got atomic.Int32
	_ = b.Subscribe(SystemCleanup, "inline", func(Event) bool { got.Add(1); return true }, PriorityLow)

	isr := b.ISR()
	if err := isr.PublishSync(SystemCleanup, nil, PriorityNormal, ModuleSystem); err != nil {
		t.Fatal(err)
	}
	if got.Load() != 0 {
		t.Fatal("ISR PublishSync must not run handlers inline")
	}
	if b.Stats().QueueLen != 1 {
		t.Fatal("ISR PublishSync should enqueue")
	}
	_ = isr.Publish(SystemCleanup, nil, PriorityNormal, ModuleSystem)
	if err := isr.Publish(SystemCleanup, nil, PriorityNormal, ModuleSystem); err != errcode.Full {
		t.Fatalf("ISR publish on full queue: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Event construction
// -----------------------------------------------------------------------------

func TestNewEventValidation(t *testing.T) {
	long := make([]byte, types.MaxMessageLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := NewEvent(SystemError, ErrorPayload{Msg: string(long)}, PriorityHigh, ModuleSystem); err != errcode.PayloadTooLarge {
		t.Fatalf("oversized message: %v", err)
	}
	if _, err := NewEvent(DataWeatherUpdated, StockPayload{}, PriorityNormal, ModuleSerialComm); err != errcode.InvalidPayload {
		t.Fatalf("mismatched payload: %v", err)
	}
	if _, err := NewEvent(Type(0x9999), nil, PriorityNormal, ModuleSystem); err != errcode.InvalidParams {
		t.Fatalf("unknown type: %v", err)
	}
	if _, err := NewEvent(SystemStatus, nil, Priority(9), ModuleSystem); err != errcode.InvalidParams {
		t.Fatalf("bad priority: %v", err)
	}
	ev, err := NewEvent(DataWeatherUpdated, WeatherPayload{types.Weather{City: "Hangzhou", Valid: true}}, PriorityNormal, ModuleSerialComm)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Timestamp.IsZero() || ev.Payload.(WeatherPayload).City != "Hangzhou" {
		t.Fatalf("bad event %+v", ev)
	}

	b := New()
	if err := b.Publish(SystemError, ErrorPayload{Msg: string(long)}, PriorityHigh, ModuleSystem); err != errcode.PayloadTooLarge {
		t.Fatalf("Publish oversized: %v", err)
	}
	if st := b.Stats(); st.Published != 0 || st.QueueLen != 0 {
		t.Fatalf("rejected event must leave no trace: %+v", st)
	}
}

// -----------------------------------------------------------------------------
// Contention and health
// -----------------------------------------------------------------------------

func TestLEDFeedbackRetriedUnderContention(t *testing.T) {
	b := startBus(t,
		WithLockTimeout(time.Millisecond),
		WithLEDBackoff(5*time.Millisecond, 10*time.Millisecond, 40*time.Millisecond),
	)
	var got atomic.Int32
	_ = b.Subscribe(LEDFeedbackRequest, "leds", func(Event) bool { got.Add(1); return true }, PriorityLow)

	if !b.lockTable(time.Second) {
		t.Fatal("lock")
	}
	_ = PublishLEDFeedback(b, 1, types.ColorBlue, 150*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	b.unlockTable()

	waitFor(t, "feedback delivered", func() bool { return got.Load() == 1 })
	if st := b.Stats(); st.Dropped != 0 {
		t.Fatalf("feedback should survive short contention: %+v", st)
	}
}

func TestLEDFeedbackRequeuedOnceThenDropped(t *testing.T) {
	b := startBus(t,
		WithLockTimeout(time.Millisecond),
		WithLEDBackoff(time.Millisecond),
	)
	if !b.lockTable(time.Second) {
		t.Fatal("lock")
	}
	defer b.unlockTable()

	_ = PublishLEDFeedback(b, 0, types.ColorRed, 100*time.Millisecond)
	waitFor(t, "drop", func() bool { return b.Stats().Dropped == 1 })
	st := b.Stats()
	if st.Requeued != 1 || st.Processed != 0 {
		t.Fatalf("stats %+v", st)
	}
}

func TestErrorStreakTriggersEmergencyPurge(t *testing.T) {
	b := New(
		WithLockTimeout(time.Millisecond),
		WithErrorThreshold(3),
		WithPurgeLimit(32),
		WithPurgePause(time.Millisecond),
	)
	t.Cleanup(func() { _ = b.Stop() })
	for i := 0; i < 20; i++ {
		_ = systemStatus(b, PriorityNormal)
	}
	if !b.lockTable(time.Second) {
		t.Fatal("lock")
	}
	_ = b.Start(context.Background())
	waitFor(t, "purge", func() bool { return b.Stats().Purges >= 1 })
	b.unlockTable()

	waitFor(t, "quiescent", func() bool { return b.Stats().QueueLen == 0 })
	st := b.Stats()
	if st.Published != st.Processed+st.Dropped {
		t.Fatalf("accounting broken: %+v", st)
	}
	if st.Dropped < 3 {
		t.Fatalf("expected streak drops plus purge, got %+v", st)
	}
}

func TestHealthCheckPurgesBacklog(t *testing.T) {
	b := startBus(t, WithHealthInterval(time.Millisecond), WithPurgeLimit(64))
	release := make(chan struct{})
	var first atomic.Bool
	_ = b.Subscribe(SystemStatus, "stuck", func(Event) bool {
		if first.CompareAndSwap(false, true) {
			<-release
		}
		return true
	}, PriorityLow)

	_ = systemStatus(b, PriorityNormal)
	waitFor(t, "stuck handler", first.Load)
	for i := 0; i < 60; i++ {
		_ = systemStatus(b, PriorityNormal)
	}
	close(release)

	waitFor(t, "health purge", func() bool { return b.Stats().Purges >= 1 })
	waitFor(t, "quiescent", func() bool { return b.Stats().QueueLen == 0 })
	st := b.Stats()
	if st.Published != st.Processed+st.Dropped {
		t.Fatalf("accounting broken: %+v", st)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	b := startBus(t)
	var after atomic.Int32
	_ = b.Subscribe(SystemStatus, "boom", func(Event) bool { panic("boom") }, PriorityLow)
	_ = b.Subscribe(SystemStatus, "after", func(Event) bool { after.Add(1); return true }, PriorityLow)
	_ = systemStatus(b, PriorityNormal)
	waitFor(t, "second handler", func() bool { return after.Load() == 1 })
	if st := b.Stats(); st.Errors != 1 || st.Handled != 1 {
		t.Fatalf("stats %+v", st)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestStartStopIdempotent(t *testing.T) {
	b := New()
	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !b.Running() {
		t.Fatal("not running")
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	if b.Running() {
		t.Fatal("still running")
	}
	if err := systemStatus(b, PriorityNormal); err != errcode.NotRunning {
		t.Fatalf("publish after stop: %v", err)
	}
}

func TestStopCountsBacklogAsDropped(t *testing.T) {
	b := New(WithJoinTimeout(50 * time.Millisecond))
	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	_ = b.Subscribe(SystemStatus, "slow", func(Event) bool {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-block
		return true
	}, PriorityLow)
	_ = b.Start(context.Background())
	for i := 0; i < 10; i++ {
		if err := systemStatus(b, PriorityNormal); err != nil {
			t.Fatal(err)
		}
	}
	<-entered

	stopped := make(chan struct{})
	go func() { _ = b.Stop(); close(stopped) }()
	time.Sleep(10 * time.Millisecond)
	close(block)
	<-stopped

	st := b.Stats()
	if st.QueueLen != 0 {
		t.Fatalf("queue still holds %d events", st.QueueLen)
	}
	if st.Published != st.Processed+st.Dropped {
		t.Fatalf("published=%d processed=%d dropped=%d", st.Published, st.Processed, st.Dropped)
	}
	if st.Dropped == 0 {
		t.Fatal("backlog not counted as dropped")
	}
}

func TestStopJoinTimeoutIsNonFatal(t *testing.T) {
	b := New(WithJoinTimeout(10 * time.Millisecond))
	block := make(chan struct{})
	_ = b.Subscribe(SystemStatus, "slow", func(Event) bool { <-block; return true }, PriorityLow)
	_ = b.Start(context.Background())
	_ = systemStatus(b, PriorityNormal)
	waitFor(t, "handler entered", func() bool { return b.Stats().QueueLen == 0 })

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop must not fail on join timeout: %v", err)
	}
	close(block)
}
