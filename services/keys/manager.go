// services/keys/manager.go
package keys

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

// input is the fixed-shape message posted from interrupt context.
type input struct {
	index  uint8
	action Action
	at     time.Time
}

type buttonState struct {
	pressed  bool
	since    time.Time
	lastEdge time.Time

	// Last level rejected inside the debounce window, applied once the
	// window has passed unless the line returns to the settled level.
	pending     bool
	pendingDown bool
	pendingAt   time.Time
}

// Manager owns the key contexts and the goroutine that dispatches button
// input to whichever context is active.
type Manager struct {
	cfg config
	log *slog.Logger
	pub bus.Publisher

	// Written from interrupt context; never blocks.
	queue chan input
	drops atomic.Uint32

	mu         sync.Mutex
	contexts   [maxContext]Context
	registered [maxContext]bool
	current    ContextID
	stack      [StackDepth]ContextID
	depth      int
	feedback   bool

	// Consumer-owned.
	buttons [MaxButtons]buttonState

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	dispatched atomic.Uint64
	unhandled  atomic.Uint64
	noContext  atomic.Uint64
	bounced    atomic.Uint64
}

// New creates a manager. pub receives LED feedback requests; it may be nil
// to disable feedback entirely.
func New(pub bus.Publisher, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Manager{
		cfg:      cfg,
		log:      logx.Service(cfg.logger, "keys"),
		pub:      pub,
		queue:    make(chan input, cfg.queueSize),
		feedback: cfg.feedback && pub != nil,
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.running.Load() {
		return nil
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running.Store(true)
	go m.run(ctx, m.stop, m.done)
	return nil
}

func (m *Manager) Stop() error {
	m.lifeMu.Lock()
	if !m.running.Load() {
		m.lifeMu.Unlock()
		return nil
	}
	m.running.Store(false)
	close(m.stop)
	done := m.done
	m.lifeMu.Unlock()
	if !timex.Join(done, m.cfg.joinTimeout) {
		m.log.Warn("consumer did not exit in time")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Context table
// -----------------------------------------------------------------------------

// Register adds a context. It stays inactive until Activate or Push.
func (m *Manager) Register(c Context) error {
	if c.ID == None || !c.ID.Valid() || c.Handler == nil || c.Name == "" {
		return errcode.InvalidParams
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered[c.ID] {
		return errcode.Busy
	}
	m.contexts[c.ID] = c
	m.registered[c.ID] = true
	m.log.Debug("context registered", "id", c.ID, "name", c.Name)
	return nil
}

// Unregister removes a context; if it was active the manager falls back to
// no active context.
func (m *Manager) Unregister(id ContextID) error {
	if id == None || !id.Valid() {
		return errcode.InvalidParams
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.registered[id] {
		return errcode.NotRegistered
	}
	m.registered[id] = false
	m.contexts[id] = Context{}
	if m.current == id {
		m.current = None
	}
	return nil
}

// Activate makes id the only active context. None clears the active context.
func (m *Manager) Activate(id ContextID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(id)
}

func (m *Manager) activateLocked(id ContextID) error {
	if !id.Valid() {
		return errcode.InvalidParams
	}
	if id != None && !m.registered[id] {
		return errcode.NotRegistered
	}
	if m.current != id {
		m.log.Debug("context switch", "from", m.nameLocked(m.current), "to", m.nameLocked(id))
	}
	m.current = id
	return nil
}

// Deactivate clears id if it is the active context; otherwise it does
// nothing.
func (m *Manager) Deactivate(id ContextID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == id {
		m.current = None
	}
	return nil
}

// Push saves the active context and activates id. The stack is restored if
// activation fails.
func (m *Manager) Push(id ContextID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth >= StackDepth {
		return errcode.Full
	}
	m.stack[m.depth] = m.current
	m.depth++
	if err := m.activateLocked(id); err != nil {
		m.depth--
		return err
	}
	return nil
}

// Pop restores the context saved by the matching Push. A saved context that
// has since been unregistered restores to None.
func (m *Manager) Pop() (ContextID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		return None, errcode.Empty
	}
	m.depth--
	prev := m.stack[m.depth]
	if prev != None && !m.registered[prev] {
		prev = None
	}
	m.current = prev
	return prev, nil
}

// Current returns the active context id.
func (m *Manager) Current() ContextID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Depth returns how many contexts are saved on the stack.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth
}

func (m *Manager) Registered(id ContextID) bool {
	if !id.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[id]
}

// Name returns the registered name of id, or NONE, INVALID or UNREGISTERED.
func (m *Manager) Name(id ContextID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameLocked(id)
}

func (m *Manager) nameLocked(id ContextID) string {
	switch {
	case id == None:
		return "NONE"
	case !id.Valid():
		return "INVALID"
	case !m.registered[id]:
		return "UNREGISTERED"
	}
	return m.contexts[id].Name
}

// SetFeedback toggles LED feedback on key press.
func (m *Manager) SetFeedback(on bool) {
	m.mu.Lock()
	m.feedback = on && m.pub != nil
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Interrupt-side sink
// -----------------------------------------------------------------------------

// InputSink is the interrupt-safe way into the manager: a non-blocking
// enqueue of (index, action) and nothing else.
type InputSink interface {
	Post(index uint8, action Action) bool
}

type isrSink struct{ m *Manager }

// ISR returns the sink for button interrupt handlers.
func (m *Manager) ISR() InputSink { return isrSink{m: m} }

func (s isrSink) Post(index uint8, action Action) bool {
	select {
	case s.m.queue <- input{index: index, action: action, at: time.Now()}:
		return true
	default:
		s.m.drops.Add(1)
		return false
	}
}

// -----------------------------------------------------------------------------
// Consumer
// -----------------------------------------------------------------------------

func (m *Manager) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(m.cfg.recvTimeout)
	defer timer.Stop()
	for m.running.Load() {
		timex.ResetTimer(timer, m.cfg.recvTimeout)
		select {
		case <-ctx.Done():
			m.running.Store(false)
			return
		case <-stop:
			return
		case in := <-m.queue:
			m.handle(in)
		case now := <-timer.C:
			for i := range m.buttons {
				m.settle(uint8(i), now)
			}
		}
	}
}

func (m *Manager) handle(in input) {
	if int(in.index) >= MaxButtons {
		m.log.Warn("button index out of range", "index", in.index)
		return
	}
	b := &m.buttons[in.index]
	switch in.action {
	case Pressed, Released:
		m.settle(in.index, in.at)
		down := in.action == Pressed
		if down == b.pressed {
			b.pending = false
			return
		}
		if !b.lastEdge.IsZero() && in.at.Sub(b.lastEdge) < m.cfg.debounce {
			m.bounced.Add(1)
			b.pending, b.pendingDown, b.pendingAt = true, down, in.at
			return
		}
		m.edge(in.index, down, in.at)
	default:
		// Synthesised upstream (console, tests): deliver as is.
		if in.action == Clicked {
			m.pressFeedback(in.index)
		}
		m.dispatch(in.index, in.action)
	}
}

// settle applies a level held back by the debounce window once the window
// has expired.
func (m *Manager) settle(index uint8, now time.Time) {
	b := &m.buttons[index]
	if !b.pending || now.Sub(b.lastEdge) < m.cfg.debounce {
		return
	}
	b.pending = false
	if b.pendingDown != b.pressed {
		m.edge(index, b.pendingDown, b.pendingAt)
	}
}

// edge records an accepted level change and dispatches it. A release is
// timed from the press to pick Clicked or LongPressed.
func (m *Manager) edge(index uint8, down bool, at time.Time) {
	b := &m.buttons[index]
	b.lastEdge = at
	b.pressed = down
	b.pending = false
	if down {
		b.since = at
		m.pressFeedback(index)
		m.dispatch(index, Pressed)
		return
	}
	m.dispatch(index, Released)
	if at.Sub(b.since) >= m.cfg.longPress {
		m.dispatch(index, LongPressed)
	} else {
		m.dispatch(index, Clicked)
	}
}

// dispatch looks up the active handler under the lock and calls it without
// the lock held.
func (m *Manager) dispatch(index uint8, action Action) {
	m.mu.Lock()
	id := m.current
	var h Handler
	if id != None {
		h = m.contexts[id].Handler
	}
	m.mu.Unlock()

	if h == nil {
		m.noContext.Add(1)
		m.log.Debug("no active context", "key", index, "action", action)
		return
	}
	if !h(int(index), action) {
		m.unhandled.Add(1)
		m.log.Info("unhandled key", "context", m.Name(id), "key", index, "action", action)
		return
	}
	m.dispatched.Add(1)
}

var pressColors = [3]types.Color{types.ColorBlue, types.ColorGreen, types.ColorRed}

func (m *Manager) pressFeedback(index uint8) {
	m.mu.Lock()
	on := m.feedback
	m.mu.Unlock()
	if !on {
		return
	}
	switch {
	case index < 3:
		_ = bus.PublishLEDFeedback(m.pub, index, pressColors[index], 150*time.Millisecond)
	case index == 3:
		for i := uint8(0); i < 3; i++ {
			_ = bus.PublishLEDFeedback(m.pub, i, types.ColorWhite, 100*time.Millisecond)
		}
	}
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

type Stats struct {
	Dispatched uint64
	Unhandled  uint64
	NoContext  uint64
	Bounced    uint64
	ISRDrops   uint32
	Current    ContextID
	Depth      int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	cur, depth := m.current, m.depth
	m.mu.Unlock()
	return Stats{
		Dispatched: m.dispatched.Load(),
		Unhandled:  m.unhandled.Load(),
		NoContext:  m.noContext.Load(),
		Bounced:    m.bounced.Load(),
		ISRDrops:   m.drops.Load(),
		Current:    cur,
		Depth:      depth,
	}
}
