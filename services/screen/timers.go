package screen

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a periodic trigger whose callback only posts a request to the
// core. Stop returns after the last callback has finished.
type Timer struct {
	name  string
	every time.Duration
	fire  func(now time.Time)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	fires atomic.Uint64
}

func newTimer(name string, every time.Duration, fire func(time.Time)) *Timer {
	return &Timer{name: name, every: every, fire: fire}
}

func (t *Timer) Name() string { return t.name }

// Fires counts callbacks since creation.
func (t *Timer) Fires() uint64 { return t.fires.Load() }

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Start is a no-op if the timer is already running.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.stop, t.done)
}

func (t *Timer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (t *Timer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tk := time.NewTicker(t.every)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-tk.C:
			t.fires.Add(1)
			t.fire(now)
		}
	}
}

// Intervals configures the refresh cadence of each page element.
type Intervals struct {
	Clock   time.Duration
	Weather time.Duration
	Stock   time.Duration
	System  time.Duration
	Sensor  time.Duration
	L2Clock time.Duration
	Taps    time.Duration
	Cleanup time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Clock:   time.Second,
		Weather: 30 * time.Second,
		Stock:   10 * time.Second,
		System:  2 * time.Second,
		Sensor:  5 * time.Second,
		L2Clock: time.Second,
		Taps:    200 * time.Millisecond,
		Cleanup: 60 * time.Second,
	}
}

// Timers is the fixed set of page timers. Group timers run only while their
// group is shown at L1; L2 timers only while their page is shown.
type Timers struct {
	Clock   *Timer
	Weather *Timer
	Stock   *Timer
	System  *Timer
	Sensor  *Timer
	L2Clock *Timer
	Taps    *Timer
	Cleanup *Timer
}

func newTimers(iv Intervals, c *Core) *Timers {
	return &Timers{
		Clock:   newTimer("clock", iv.Clock, func(now time.Time) { c.timerPost(c.UpdateTimeAt(now)) }),
		Weather: newTimer("weather", iv.Weather, func(time.Time) { c.timerPost(c.UpdateWeather(nil)) }),
		Stock:   newTimer("stock", iv.Stock, func(time.Time) { c.timerPost(c.UpdateStock(nil)) }),
		System:  newTimer("system", iv.System, func(time.Time) { c.timerPost(c.UpdateSystem(nil)) }),
		Sensor:  newTimer("sensor", iv.Sensor, func(time.Time) { c.timerPost(c.UpdateSensor(nil)) }),
		L2Clock: newTimer("l2_clock", iv.L2Clock, func(now time.Time) { c.timerPost(c.UpdateTimeAt(now)) }),
		Taps:    newTimer("taps", iv.Taps, func(time.Time) { c.timerPost(c.RefreshTaps()) }),
		Cleanup: newTimer("cleanup", iv.Cleanup, func(time.Time) { c.timerPost(c.Cleanup()) }),
	}
}

func (ts *Timers) group(g Group) []*Timer {
	switch g {
	case Group1:
		return []*Timer{ts.Clock, ts.Weather, ts.Stock, ts.Sensor}
	case Group2:
		return []*Timer{ts.System}
	}
	return nil
}

func (ts *Timers) l2(p L2Page) []*Timer {
	switch p {
	case PageTimeDetail:
		return []*Timer{ts.L2Clock}
	case PageMuyu:
		return []*Timer{ts.Taps}
	}
	return nil
}

// StartGroup starts the timers belonging to g.
func (ts *Timers) StartGroup(g Group) {
	for _, t := range ts.group(g) {
		t.Start()
	}
}

// StopGroups stops every group timer.
func (ts *Timers) StopGroups() {
	for _, t := range []*Timer{ts.Clock, ts.Weather, ts.Stock, ts.Sensor, ts.System} {
		t.Stop()
	}
}

func (ts *Timers) StartL2(p L2Page) {
	for _, t := range ts.l2(p) {
		t.Start()
	}
}

func (ts *Timers) StopL2() {
	ts.L2Clock.Stop()
	ts.Taps.Stop()
}

func (ts *Timers) StopAll() {
	ts.StopGroups()
	ts.StopL2()
	ts.Cleanup.Stop()
}

// All lists every timer in a fixed order.
func (ts *Timers) All() []*Timer {
	return []*Timer{ts.Clock, ts.Weather, ts.Stock, ts.System, ts.Sensor, ts.L2Clock, ts.Taps, ts.Cleanup}
}
