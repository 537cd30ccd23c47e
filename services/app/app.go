// services/app/app.go
package app

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/services/encoder"
	"panelcore/services/keys"
	"panelcore/services/leds"
	"panelcore/services/muyu"
	"panelcore/services/screen"
	"panelcore/types"
	"panelcore/x/logx"
)

// Navigator is the slice of the screen core the key map drives.
type Navigator interface {
	NextGroup() error
	EnterL2(g screen.L2Group, p screen.L2Page) error
	ReturnL1() error
	UpdateWeather(w *types.Weather) error
	UpdateStock(s *types.Stock) error
	UpdateSystem(s *types.System) error
	UpdateSensor(s *types.Sensor) error
	RefreshTaps() error
	State() screen.Nav
}

// Lights is the slice of the LED scheduler the application uses directly.
type Lights interface {
	StartEffect(cfg leds.Config) leds.Handle
	StopEffect(h leds.Handle) error
	SetAll(c types.Color) error
}

// Mode selects who owns the buttons.
type Mode string

const (
	// ModeNone lets the screen position pick the key context.
	ModeNone Mode = "none"
	// ModeEncoder gives the keys to the encoder mode selector.
	ModeEncoder Mode = "encoder"
	// ModeHID gives the keys to the manual LED context.
	ModeHID Mode = "hid"
)

// Deps are the components the application binds together. Encoder,
// Control, Lights and Taps may be nil on builds without them.
type Deps struct {
	Keys    *keys.Manager
	Nav     Navigator
	Pub     bus.Publisher
	Lights  Lights
	Encoder *encoder.Encoder
	Control *encoder.Control
	Taps    *muyu.Counter
}

type config struct {
	breathe bool
	color   types.Color
	period  time.Duration
	logger  *slog.Logger
}

type Option func(*config)

// WithBreathing runs a background breathing effect in c while the
// application is up.
func WithBreathing(c types.Color, period time.Duration) Option {
	return func(cfg *config) {
		cfg.breathe = true
		cfg.color = c
		cfg.period = period
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// App registers the key contexts, follows screen navigation with the
// matching context, and switches button ownership between modes.
type App struct {
	cfg    config
	log    *slog.Logger
	keys   *keys.Manager
	nav    Navigator
	pub    bus.Publisher
	lights Lights
	enc    *encoder.Encoder
	ctl    *encoder.Control
	taps   *muyu.Counter

	mu     sync.Mutex
	inited bool
	mode   Mode
	last   screen.Nav
	breath leds.Handle
	ctxs   []keys.ContextID

	actions atomic.Uint64
	failed  atomic.Uint64
}

func New(d Deps, opts ...Option) *App {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	return &App{
		cfg:    cfg,
		log:    logx.Service(cfg.logger, "app"),
		keys:   d.Keys,
		nav:    d.Nav,
		pub:    d.Pub,
		lights: d.Lights,
		enc:    d.Encoder,
		ctl:    d.Control,
		taps:   d.Taps,
		mode:   ModeNone,
	}
}

// Init registers every context and activates the one for the current
// screen position. It is idempotent.
func (a *App) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inited {
		return nil
	}
	for _, b := range bindings {
		if err := a.keys.Register(a.context(b)); err != nil {
			a.unregisterLocked()
			return errcode.Wrap(errcode.Of(err), "app.register "+b.name, err)
		}
		a.ctxs = append(a.ctxs, b.id)
	}
	if a.ctl != nil {
		if err := a.keys.Register(a.ctl.Context()); err != nil {
			a.unregisterLocked()
			return errcode.Wrap(errcode.Of(err), "app.register encoder", err)
		}
		a.ctxs = append(a.ctxs, keys.Volume)
	}
	if a.enc != nil {
		_ = a.enc.SetMode(bus.EncoderMenuNav)
	}
	a.last = a.nav.State()
	if err := a.keys.Activate(contextFor(a.last)); err != nil {
		a.log.Warn("no context for position", "nav", a.last, "err", err)
	}
	if a.cfg.breathe && a.lights != nil {
		a.breath = a.lights.StartEffect(leds.Breathing(a.cfg.color, a.cfg.period))
		if a.breath.IsNull() {
			a.log.Warn("background effect not started")
		}
	}
	a.inited = true
	a.log.Info("application ready", "contexts", len(a.ctxs), "nav", a.last)
	return nil
}

// Close unregisters the contexts and stops the background effect.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.inited {
		return
	}
	if !a.breath.IsNull() && a.lights != nil {
		_ = a.lights.StopEffect(a.breath)
		a.breath = 0
	}
	a.unregisterLocked()
	a.inited = false
}

func (a *App) unregisterLocked() {
	for _, id := range a.ctxs {
		_ = a.keys.Unregister(id)
	}
	a.ctxs = a.ctxs[:0]
}

func (a *App) context(b binding) keys.Context {
	run := func(index int) bool {
		if index < 0 || index >= len(b.keys) || b.keys[index] == nil {
			return false
		}
		a.actions.Add(1)
		if err := b.keys[index](a); err != nil {
			a.failed.Add(1)
			a.log.Warn("key action failed", "context", b.name, "key", index, "err", err)
		}
		return true
	}
	h := keys.OnClick(run)
	if b.onPress {
		h = func(index int, act keys.Action) bool {
			if act != keys.Pressed {
				return true
			}
			return run(index)
		}
	}
	return keys.Context{ID: b.id, Name: b.name, Handler: h, Priority: b.priority}
}

// OnTransition follows a screen navigation change. Install it with
// screen.WithTransitionHook.
func (a *App) OnTransition(n screen.Nav) {
	a.mu.Lock()
	prev := a.last
	a.last = n
	follow := a.inited && a.mode == ModeNone
	a.mu.Unlock()

	if follow {
		if err := a.keys.Activate(contextFor(n)); err != nil {
			a.log.Warn("activate context", "nav", n, "err", err)
		}
	}
	if a.pub == nil {
		return
	}
	p := bus.NavPayload{Group: uint8(n.Group), Level: uint8(n.Level), L2Group: uint8(n.L2Group), L2Page: uint8(n.L2Page)}
	if n.Group != prev.Group {
		_ = a.pub.Publish(bus.ScreenGroupChanged, p, bus.PriorityNormal, bus.ModuleScreen)
	}
	if n.Level != prev.Level || n.L2Page != prev.L2Page {
		_ = a.pub.Publish(bus.ScreenLevelChanged, p, bus.PriorityNormal, bus.ModuleScreen)
	}
}

// SwitchMode hands the buttons to the encoder selector, the manual LED
// context, or back to the screen.
func (a *App) SwitchMode(name string) error {
	m := Mode(name)
	a.mu.Lock()
	inited, from, at := a.inited, a.mode, a.last
	a.mu.Unlock()
	if !inited {
		return errcode.NotRunning
	}
	switch m {
	case ModeEncoder:
		if a.ctl == nil || a.enc == nil {
			return errcode.Unsupported
		}
		if err := a.keys.Activate(keys.Volume); err != nil {
			return err
		}
		_ = a.enc.SetMode(bus.EncoderIdle)
	case ModeHID, ModeNone:
		target := keys.HIDShortcut
		if m == ModeNone {
			target = contextFor(at)
		}
		if err := a.keys.Activate(target); err != nil {
			return err
		}
		if from == ModeEncoder {
			a.enc.ResetCount()
			a.enc.SetSensitivity(1)
			_ = a.enc.SetMode(bus.EncoderMenuNav)
		}
	default:
		return errcode.InvalidParams
	}
	if from != m {
		a.log.Info("mode switched", "from", from, "to", m)
	}
	a.mu.Lock()
	a.mode = m
	a.mu.Unlock()
	return nil
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

type Stats struct {
	Actions  uint64
	Failed   uint64
	Mode     Mode
	Contexts int
}

func (a *App) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Actions:  a.actions.Load(),
		Failed:   a.failed.Load(),
		Mode:     a.mode,
		Contexts: len(a.ctxs),
	}
}
