// services/panel/panel.go

// Package panel assembles the control core from a configuration and the
// board-specific parts (LED strip, renderer, encoder counter), and runs it
// as one service.
package panel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/services/app"
	"panelcore/services/config"
	"panelcore/services/datastore"
	"panelcore/services/encoder"
	"panelcore/services/keys"
	"panelcore/services/leds"
	"panelcore/services/muyu"
	"panelcore/services/screen"
	"panelcore/types"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// Hardware is what differs between the board and the simulator. Counter
// may be nil on builds without an encoder.
type Hardware struct {
	Strip    leds.Strip
	Renderer screen.Renderer
	Counter  encoder.Counter
}

// Panel owns every core service. Fields are exposed so the entry points can
// attach feeds and metrics; they must not be replaced after New.
type Panel struct {
	Bus     *bus.Bus
	Keys    *keys.Manager
	LEDs    *leds.Scheduler
	Screen  *screen.Core
	Store   *datastore.Store
	Taps    *muyu.Counter
	Encoder *encoder.Encoder
	Control *encoder.Control
	App     *app.App

	cfg *config.Config
	log *slog.Logger

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds and cross-subscribes the services. Nothing runs until Start.
func New(cfg *config.Config, hw Hardware, logger *slog.Logger) (*Panel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Strip == nil || hw.Renderer == nil {
		return nil, errcode.InvalidParams
	}
	// A nil logger lets every service tag slog.Default itself.
	with := func(name string) *slog.Logger {
		if logger == nil {
			return nil
		}
		return logger.With("service", name)
	}
	p := &Panel{cfg: cfg, log: logx.Service(with("panel"), "panel")}

	p.Bus = bus.New(
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithMaxSubscribers(cfg.Bus.MaxSubscribers),
		bus.WithPublishTimeout(cfg.Bus.PublishTimeout.Duration),
		bus.WithHealthInterval(cfg.Bus.HealthInterval.Duration),
		bus.WithErrorThreshold(cfg.Bus.ErrorThreshold),
		bus.WithLogger(with("bus")),
	)
	p.Keys = keys.New(p.Bus,
		keys.WithDebounce(cfg.Keys.Debounce.Duration),
		keys.WithLongPress(cfg.Keys.LongPress.Duration),
		keys.WithFeedback(cfg.Keys.Feedback),
		keys.WithLogger(with("keys")),
	)
	p.LEDs = leds.New(hw.Strip,
		leds.WithCount(cfg.LEDs.Count),
		leds.WithTick(cfg.LEDs.Tick.Duration),
		leds.WithBrightness(cfg.LEDs.Brightness),
		leds.WithLogger(with("leds")),
	)
	p.Store = datastore.New(datastore.WithExpiry(cfg.Data.Expiry.Duration))
	p.Taps = muyu.New()

	p.Screen = screen.New(hw.Renderer,
		screen.WithQueueSize(cfg.Screen.QueueSize),
		screen.WithBatch(cfg.Screen.Batch),
		screen.WithIntervals(screen.Intervals{
			Clock:   cfg.Screen.Clock.Duration,
			Weather: cfg.Screen.Weather.Duration,
			Stock:   cfg.Screen.Stock.Duration,
			System:  cfg.Screen.System.Duration,
			Sensor:  cfg.Screen.Sensor.Duration,
		}),
		screen.WithSource(p.Store),
		screen.WithTapSource(func() (uint32, uint32) {
			s := p.Taps.Snapshot()
			return s.Session, s.Lifetime
		}),
		screen.WithTransitionHook(func(n screen.Nav) { p.App.OnTransition(n) }),
		screen.WithLogger(with("screen")),
	)

	if hw.Counter != nil {
		p.Encoder = encoder.New(hw.Counter, p.Bus,
			encoder.WithPollInterval(cfg.Encoder.Poll.Duration),
			encoder.WithLogger(with("encoder")),
		)
		p.Control = encoder.NewControl(p.Encoder, p.Bus, p.LEDs, with("encoder_ctl"))
	}

	var opts []app.Option
	if cfg.LEDs.Breathing.Duration > 0 {
		opts = append(opts, app.WithBreathing(types.ColorCyan, cfg.LEDs.Breathing.Duration))
	}
	opts = append(opts, app.WithLogger(with("app")))
	p.App = app.New(app.Deps{
		Keys:    p.Keys,
		Nav:     p.Screen,
		Pub:     p.Bus,
		Lights:  p.LEDs,
		Encoder: p.Encoder,
		Control: p.Control,
		Taps:    p.Taps,
	}, opts...)

	subs := []func(*bus.Bus) error{p.Store.Subscribe, p.Screen.Subscribe, p.LEDs.Subscribe}
	if p.Control != nil {
		subs = append(subs, p.Control.Subscribe)
	}
	for _, s := range subs {
		if err := s(p.Bus); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Start runs the services bottom-up: bus, LEDs, keys, encoder, then the
// screen goroutine, and finally binds the key contexts to the screen
// position.
func (p *Panel) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.running.Load() {
		return nil
	}
	starts := []func(context.Context) error{p.Bus.Start, p.LEDs.Start, p.Keys.Start}
	if p.Encoder != nil {
		starts = append(starts, p.Encoder.Start)
	}
	for _, s := range starts {
		if err := s(ctx); err != nil {
			p.stopServices()
			return err
		}
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	ready := make(chan error, 1)
	go p.drain(ctx, p.stop, p.done, ready)
	if err := <-ready; err != nil {
		<-p.done
		p.stopServices()
		return err
	}
	if err := p.App.Init(); err != nil {
		close(p.stop)
		<-p.done
		p.stopServices()
		return err
	}
	p.running.Store(true)
	p.log.Info("panel up", "device", p.cfg.Device)
	return nil
}

// drain owns the screen: Init, Drain on every tick, Deinit on exit.
func (p *Panel) drain(ctx context.Context, stop <-chan struct{}, done chan<- struct{}, ready chan<- error) {
	defer close(done)
	if err := p.Screen.Init(); err != nil {
		ready <- err
		return
	}
	ready <- nil
	defer p.Screen.Deinit()
	tk := time.NewTicker(p.cfg.Screen.Drain.Duration)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			p.running.Store(false)
			return
		case <-stop:
			return
		case <-tk.C:
			p.Screen.Drain()
		}
	}
}

func (p *Panel) Stop() error {
	p.lifeMu.Lock()
	if !p.running.Load() {
		p.lifeMu.Unlock()
		return nil
	}
	p.running.Store(false)
	p.App.Close()
	close(p.stop)
	done := p.done
	p.lifeMu.Unlock()
	if !timex.Join(done, time.Second) {
		p.log.Warn("screen did not exit in time")
	}
	p.stopServices()
	return nil
}

func (p *Panel) stopServices() {
	if p.Encoder != nil {
		_ = p.Encoder.Stop()
	}
	_ = p.Keys.Stop()
	_ = p.LEDs.Stop()
	_ = p.Bus.Stop()
}

func (p *Panel) Running() bool { return p.running.Load() }

// Press simulates a click on button index: press, hold for d, release.
// It goes through the interrupt sink like a real pin edge.
func (p *Panel) Press(index uint8, d time.Duration) bool {
	sink := p.Keys.ISR()
	if !sink.Post(index, keys.Pressed) {
		return false
	}
	time.Sleep(d)
	return sink.Post(index, keys.Released)
}
