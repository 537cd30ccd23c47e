// services/screen/core.go
package screen

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
)

type msgKind uint8

const (
	msgSwitch msgKind = iota + 1
	msgNext
	msgPrev
	msgEnterL2
	msgReturnL1
	msgTime
	msgWeather
	msgStock
	msgSystem
	msgSensor
	msgTaps
	msgCleanup
)

// message is copied by value through the queue. Data fields with Valid
// unset ask the handler to fall back to the source.
type message struct {
	kind    msgKind
	group   Group
	force   bool
	l2g     L2Group
	l2p     L2Page
	clock   types.Clock
	weather types.Weather
	stock   types.Stock
	system  types.System
	sensor  types.Sensor
}

// Core serialises every navigation change and page refresh through one
// queue. Only the goroutine that calls Drain (or Run) touches the renderer
// and writes the navigation state.
type Core struct {
	cfg    config
	log    *slog.Logger
	r      Renderer
	queue  chan message
	timers *Timers

	mu        sync.RWMutex
	nav       Nav
	switching bool

	initMu sync.Mutex
	inited bool

	processed    atomic.Uint64
	switches     atomic.Uint64
	rejected     atomic.Uint64
	discarded    atomic.Uint64
	renderErrors atomic.Uint64
	dropped      atomic.Uint64
	timerDrops   atomic.Uint64
}

func New(r Renderer, opts ...Option) *Core {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	c := &Core{
		cfg:   cfg,
		log:   logx.Service(cfg.logger, "screen"),
		r:     r,
		queue: make(chan message, cfg.queueSize),
		nav:   Nav{Group: Group1, Level: L1},
	}
	c.timers = newTimers(cfg.intervals, c)
	return c
}

// Timers exposes the page timers for inspection.
func (c *Core) Timers() *Timers { return c.timers }

// Init builds group 1 and starts its timers. It must run on the draining
// goroutine. A second call is a no-op.
func (c *Core) Init() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.inited {
		return nil
	}
	if err := c.r.Build(Group1); err != nil {
		c.renderErrors.Add(1)
		return errcode.Wrap(errcode.Error, "screen.init", err)
	}
	c.mu.Lock()
	c.nav = Nav{Group: Group1, Level: L1}
	c.switching = false
	c.mu.Unlock()
	c.timers.StartGroup(Group1)
	c.timers.Cleanup.Start()
	c.inited = true
	c.log.Info("screen ready", "nav", c.State())
	return nil
}

// Deinit stops every timer and discards pending requests.
func (c *Core) Deinit() {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if !c.inited {
		return
	}
	c.timers.StopAll()
drain:
	for {
		select {
		case <-c.queue:
		default:
			break drain
		}
	}
	c.inited = false
	c.log.Info("screen stopped", "processed", c.processed.Load(), "switches", c.switches.Load())
}

// -----------------------------------------------------------------------------
// Requests (any goroutine)
// -----------------------------------------------------------------------------

func (c *Core) post(m message) error {
	select {
	case c.queue <- m:
		return nil
	default:
		c.dropped.Add(1)
		return errcode.Full
	}
}

func (c *Core) timerPost(err error) {
	if err != nil {
		c.timerDrops.Add(1)
	}
}

// SwitchGroup asks for group g. It is rejected with Busy while another
// switch is being rendered.
func (c *Core) SwitchGroup(g Group, force bool) error {
	if !g.Valid() {
		return errcode.InvalidParams
	}
	if c.IsSwitching() {
		c.rejected.Add(1)
		return errcode.Busy
	}
	return c.post(message{kind: msgSwitch, group: g, force: force})
}

// NextGroup and PrevGroup step relative to the group current when the
// request is handled.
func (c *Core) NextGroup() error {
	if c.IsSwitching() {
		c.rejected.Add(1)
		return errcode.Busy
	}
	return c.post(message{kind: msgNext})
}

func (c *Core) PrevGroup() error {
	if c.IsSwitching() {
		c.rejected.Add(1)
		return errcode.Busy
	}
	return c.post(message{kind: msgPrev})
}

func (c *Core) EnterL2(g L2Group, p L2Page) error {
	if !g.Valid() || !p.Valid() {
		return errcode.InvalidParams
	}
	return c.post(message{kind: msgEnterL2, l2g: g, l2p: p})
}

func (c *Core) ReturnL1() error {
	return c.post(message{kind: msgReturnL1})
}

func (c *Core) UpdateTime(t types.Clock) error {
	return c.post(message{kind: msgTime, clock: t})
}

// UpdateTimeAt is UpdateTime for a time.Time.
func (c *Core) UpdateTimeAt(t time.Time) error {
	return c.UpdateTime(types.ClockOf(t))
}

// UpdateWeather with nil or invalid data redraws from the source.
func (c *Core) UpdateWeather(w *types.Weather) error {
	m := message{kind: msgWeather}
	if w != nil {
		m.weather = *w
	}
	return c.post(m)
}

func (c *Core) UpdateStock(s *types.Stock) error {
	m := message{kind: msgStock}
	if s != nil {
		m.stock = *s
	}
	return c.post(m)
}

func (c *Core) UpdateSystem(s *types.System) error {
	m := message{kind: msgSystem}
	if s != nil {
		m.system = *s
	}
	return c.post(m)
}

func (c *Core) UpdateSensor(s *types.Sensor) error {
	m := message{kind: msgSensor}
	if s != nil {
		m.sensor = *s
	}
	return c.post(m)
}

func (c *Core) RefreshTaps() error {
	return c.post(message{kind: msgTaps})
}

// Cleanup asks the source to invalidate expired data.
func (c *Core) Cleanup() error {
	return c.post(message{kind: msgCleanup})
}

// Refresh redraws the data on whatever page is showing.
func (c *Core) Refresh() error {
	for _, k := range []msgKind{msgTime, msgWeather, msgStock, msgSystem, msgSensor, msgTaps} {
		m := message{kind: k}
		if k == msgTime {
			m.clock = types.ClockOf(time.Now())
		}
		if err := c.post(m); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

func (c *Core) State() Nav {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nav
}

func (c *Core) IsSwitching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.switching
}

type Stats struct {
	Processed    uint64
	Switches     uint64
	Rejected     uint64
	Discarded    uint64
	RenderErrors uint64
	Dropped      uint64
	TimerDrops   uint64
	QueueLen     int
}

func (c *Core) Stats() Stats {
	return Stats{
		Processed:    c.processed.Load(),
		Switches:     c.switches.Load(),
		Rejected:     c.rejected.Load(),
		Discarded:    c.discarded.Load(),
		RenderErrors: c.renderErrors.Load(),
		Dropped:      c.dropped.Load(),
		TimerDrops:   c.timerDrops.Load(),
		QueueLen:     len(c.queue),
	}
}

// -----------------------------------------------------------------------------
// Owner side
// -----------------------------------------------------------------------------

// Drain handles up to one batch of queued requests without blocking and
// returns how many it handled. Call it from one goroutine only.
func (c *Core) Drain() int {
	n := 0
	for n < c.cfg.batch {
		select {
		case m := <-c.queue:
			c.handle(m)
			n++
			c.processed.Add(1)
		default:
			return n
		}
	}
	return n
}

// Run calls Init and then drains every interval until ctx ends, after which
// it calls Deinit. It wakes early when requests are waiting.
func (c *Core) Run(ctx context.Context, every time.Duration) error {
	if err := c.Init(); err != nil {
		return err
	}
	defer c.Deinit()
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
			c.Drain()
		}
	}
}

func (c *Core) handle(m message) {
	var err error
	switch m.kind {
	case msgSwitch:
		err = c.switchTo(m.group, m.force)
	case msgNext:
		err = c.switchTo(c.State().Group.Next(), false)
	case msgPrev:
		err = c.switchTo(c.State().Group.Prev(), false)
	case msgEnterL2:
		err = c.enterL2(m.l2g, m.l2p)
	case msgReturnL1:
		err = c.returnL1()
	case msgTime:
		err = c.updateTime(m.clock)
	case msgWeather:
		err = c.updateWeather(m.weather)
	case msgStock:
		err = c.updateStock(m.stock)
	case msgSystem:
		err = c.updateSystem(m.system)
	case msgSensor:
		err = c.updateSensor(m.sensor)
	case msgTaps:
		err = c.updateTaps()
	case msgCleanup:
		if c.cfg.source != nil {
			if n := c.cfg.source.Cleanup(); n > 0 {
				c.log.Debug("expired data invalidated", "count", n)
			}
		}
	}
	if err != nil && err != errcode.Busy {
		c.renderErrors.Add(1)
		c.log.Warn("render failed", "kind", m.kind, "nav", c.State(), "err", err)
	}
}

// restart brings back the timers of a position after a failed transition.
func (c *Core) restart(n Nav) {
	if n.Level == L2 {
		c.timers.StartL2(n.L2Page)
		return
	}
	c.timers.StartGroup(n.Group)
}

func (c *Core) transitioned(n Nav) {
	c.log.Debug("navigation", "nav", n)
	if c.cfg.hook != nil {
		c.cfg.hook(n)
	}
}

func (c *Core) switchTo(g Group, force bool) error {
	c.mu.Lock()
	if c.switching {
		c.mu.Unlock()
		c.rejected.Add(1)
		return errcode.Busy
	}
	prev := c.nav
	if prev.Group == g && prev.Level == L1 && !force {
		c.mu.Unlock()
		return nil
	}
	c.switching = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.switching = false
		c.mu.Unlock()
	}()

	c.timers.StopGroups()
	c.timers.StopL2()
	if err := c.r.Build(g); err != nil {
		c.restart(prev)
		return err
	}
	next := Nav{Group: g, Level: L1}
	c.mu.Lock()
	c.nav = next
	c.mu.Unlock()
	c.switches.Add(1)
	c.timers.StartGroup(g)
	c.transitioned(next)
	return nil
}

// begin raises the switching flag for an L2 transition so that group
// switches posted meanwhile are answered with Busy.
func (c *Core) begin() (Nav, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.switching {
		c.rejected.Add(1)
		return c.nav, false
	}
	c.switching = true
	return c.nav, true
}

func (c *Core) end() {
	c.mu.Lock()
	c.switching = false
	c.mu.Unlock()
}

func (c *Core) enterL2(g L2Group, p L2Page) error {
	prev, ok := c.begin()
	if !ok {
		return errcode.Busy
	}
	defer c.end()

	c.timers.StopGroups()
	c.timers.StopL2()
	if err := c.r.BuildL2(g, p); err != nil {
		c.restart(prev)
		return err
	}
	next := Nav{Group: prev.Group, Level: L2, L2Group: g, L2Page: p}
	c.mu.Lock()
	c.nav = next
	c.mu.Unlock()
	c.timers.StartL2(p)
	c.transitioned(next)
	return nil
}

func (c *Core) returnL1() error {
	prev, ok := c.begin()
	if !ok {
		return errcode.Busy
	}
	defer c.end()
	if prev.Level == L1 {
		return nil
	}

	c.timers.StopL2()
	if err := c.r.Build(prev.Group); err != nil {
		c.restart(prev)
		return err
	}
	next := Nav{Group: prev.Group, Level: L1}
	c.mu.Lock()
	c.nav = next
	c.mu.Unlock()
	c.timers.StartGroup(next.Group)
	c.transitioned(next)
	return nil
}

// at reports whether the current position is L1 on group g.
func (c *Core) at(g Group) bool {
	n := c.State()
	return n.Level == L1 && n.Group == g
}

func (c *Core) updateTime(t types.Clock) error {
	n := c.State()
	if !(n.Level == L1 && n.Group == Group1) && !(n.Level == L2 && n.L2Page == PageTimeDetail) {
		c.discarded.Add(1)
		return nil
	}
	return c.r.UpdateTime(t)
}

func (c *Core) updateWeather(w types.Weather) error {
	if !c.at(Group1) {
		c.discarded.Add(1)
		return nil
	}
	if !w.Valid {
		ok := false
		if c.cfg.source != nil {
			w, ok = c.cfg.source.Weather()
		}
		if !ok {
			c.discarded.Add(1)
			return nil
		}
	}
	return c.r.UpdateWeather(w)
}

func (c *Core) updateStock(s types.Stock) error {
	if !c.at(Group1) {
		c.discarded.Add(1)
		return nil
	}
	if !s.Valid {
		ok := false
		if c.cfg.source != nil {
			s, ok = c.cfg.source.Stock()
		}
		if !ok {
			c.discarded.Add(1)
			return nil
		}
	}
	return c.r.UpdateStock(s)
}

func (c *Core) updateSystem(s types.System) error {
	if !c.at(Group2) {
		c.discarded.Add(1)
		return nil
	}
	if !s.Valid {
		ok := false
		if c.cfg.source != nil {
			s, ok = c.cfg.source.System()
		}
		if !ok {
			c.discarded.Add(1)
			return nil
		}
	}
	return c.r.UpdateSystem(s)
}

func (c *Core) updateSensor(s types.Sensor) error {
	sr, can := c.r.(SensorRenderer)
	if !can || !c.at(Group1) {
		c.discarded.Add(1)
		return nil
	}
	if !s.Valid {
		ok := false
		if c.cfg.source != nil {
			s, ok = c.cfg.source.Sensor()
		}
		if !ok {
			c.discarded.Add(1)
			return nil
		}
	}
	return sr.UpdateSensor(s)
}

func (c *Core) updateTaps() error {
	tr, can := c.r.(TapRenderer)
	n := c.State()
	if !can || c.cfg.taps == nil || n.Level != L2 || n.L2Page != PageMuyu {
		c.discarded.Add(1)
		return nil
	}
	session, lifetime := c.cfg.taps()
	return tr.UpdateTaps(session, lifetime)
}

// -----------------------------------------------------------------------------
// Bus wiring
// -----------------------------------------------------------------------------

// Subscribe turns bus traffic into requests: data updates, menu-mode
// rotation, switch and refresh requests, and cleanup.
func (c *Core) Subscribe(b *bus.Bus) error {
	subs := []struct {
		t    bus.Type
		prio bus.Priority
		h    bus.Handler
	}{
		{bus.DataWeatherUpdated, bus.PriorityLow, func(ev bus.Event) bool {
			p, ok := ev.Payload.(bus.WeatherPayload)
			return ok && c.UpdateWeather(&p.Weather) == nil
		}},
		{bus.DataStockUpdated, bus.PriorityLow, func(ev bus.Event) bool {
			p, ok := ev.Payload.(bus.StockPayload)
			return ok && c.UpdateStock(&p.Stock) == nil
		}},
		{bus.DataSystemUpdated, bus.PriorityLow, func(ev bus.Event) bool {
			p, ok := ev.Payload.(bus.SystemPayload)
			return ok && c.UpdateSystem(&p.System) == nil
		}},
		{bus.DataSensorUpdated, bus.PriorityLow, func(ev bus.Event) bool {
			p, ok := ev.Payload.(bus.SensorPayload)
			return ok && c.UpdateSensor(&p.Sensor) == nil
		}},
		{bus.EncoderRotated, bus.PriorityLow, func(ev bus.Event) bool {
			p, ok := ev.Payload.(bus.EncoderPayload)
			if !ok || p.Mode != bus.EncoderMenuNav || p.Delta == 0 {
				return false
			}
			if p.Delta > 0 {
				return c.NextGroup() == nil
			}
			return c.PrevGroup() == nil
		}},
		{bus.ScreenSwitchRequest, bus.PriorityLow, func(ev bus.Event) bool {
			p, ok := ev.Payload.(bus.ScreenSwitchPayload)
			return ok && c.SwitchGroup(Group(p.Target), p.Force) == nil
		}},
		{bus.ScreenRefreshRequest, bus.PriorityLow, func(bus.Event) bool {
			return c.Refresh() == nil
		}},
		{bus.SystemCleanup, bus.PriorityLow, func(bus.Event) bool {
			return c.Cleanup() == nil
		}},
	}
	for _, s := range subs {
		if err := b.Subscribe(s.t, "screen", s.h, s.prio); err != nil {
			return err
		}
	}
	return nil
}
