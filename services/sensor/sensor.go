// Package sensor polls the local T/RH sensor and publishes SensorUpdated.
package sensor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/drivers/sht30"
	"panelcore/errcode"
	"panelcore/types"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// Device is the two-phase measurement API of the driver.
type Device interface {
	Trigger() error
	TriggerHint() time.Duration
	Collect(out *sht30.Sample) error
	Reset() error
}

type config struct {
	interval    time.Duration
	resetAfter  uint32
	joinTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*config)

// WithInterval sets the sampling period. Default 5 s.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithResetAfter sets how many consecutive failures trigger a soft reset.
// Default 10.
func WithResetAfter(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.resetAfter = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

type Poller struct {
	cfg config
	log *slog.Logger
	dev Device
	pub bus.Publisher

	mu   sync.Mutex
	last types.Sensor

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	samples atomic.Uint32
	errors  atomic.Uint32
	resets  atomic.Uint32
	dropped atomic.Uint32
	streak  uint32 // poller-owned
}

func New(dev Device, pub bus.Publisher, opts ...Option) *Poller {
	cfg := config{interval: 5 * time.Second, resetAfter: 10, joinTimeout: time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	return &Poller{cfg: cfg, log: logx.Service(cfg.logger, "sensor"), dev: dev, pub: pub}
}

func (p *Poller) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.running.Load() {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.running.Store(true)
	go p.run(ctx, p.stop, p.done)
	return nil
}

func (p *Poller) Stop() error {
	p.lifeMu.Lock()
	if !p.running.Load() {
		p.lifeMu.Unlock()
		return nil
	}
	p.running.Store(false)
	close(p.stop)
	done := p.done
	p.lifeMu.Unlock()
	if !timex.Join(done, p.cfg.joinTimeout) {
		p.log.Warn("poller did not exit in time")
	}
	return nil
}

func (p *Poller) Running() bool { return p.running.Load() }

// Last is the most recent sample; Valid is false until one succeeds.
func (p *Poller) Last() types.Sensor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Poller) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tk := time.NewTicker(p.cfg.interval)
	defer tk.Stop()
	wait := time.NewTimer(time.Hour)
	timex.DrainTimer(wait)
	defer wait.Stop()

	for {
		if err := p.dev.Trigger(); err != nil {
			p.fail(err)
		} else {
			timex.ResetTimer(wait, p.dev.TriggerHint())
			select {
			case <-ctx.Done():
				p.running.Store(false)
				return
			case <-stop:
				return
			case <-wait.C:
			}
			p.collect()
		}
		select {
		case <-ctx.Done():
			p.running.Store(false)
			return
		case <-stop:
			return
		case <-tk.C:
		}
	}
}

func (p *Poller) collect() {
	var s sht30.Sample
	if err := p.dev.Collect(&s); err != nil {
		p.fail(err)
		return
	}
	p.streak = 0
	v := types.Sensor{
		DeciCelsius:     int16(s.DeciCelsius()),
		DeciRelHumidity: uint16(s.DeciRelHumidity()),
		Valid:           true,
	}
	p.mu.Lock()
	p.last = v
	p.mu.Unlock()
	p.samples.Add(1)
	p.log.Debug("sample", "deci_c", v.DeciCelsius, "deci_rh", v.DeciRelHumidity)
	if err := bus.PublishSensor(p.pub, v); err != nil {
		p.dropped.Add(1)
	}
}

func (p *Poller) fail(err error) {
	p.errors.Add(1)
	p.streak++
	p.log.Debug("read failed", "err", err, "streak", p.streak)
	if p.streak < p.cfg.resetAfter {
		return
	}
	p.log.Warn("too many consecutive errors, soft reset", "streak", p.streak)
	p.streak = 0
	p.resets.Add(1)
	if rerr := p.dev.Reset(); rerr != nil {
		p.log.Warn("reset failed", "err", rerr)
	}
	_ = p.pub.Publish(bus.SystemWarning, bus.ErrorPayload{
		Code:   errcode.Timeout.Errno(),
		Msg:    "sensor reset",
		Module: bus.ModuleSensor,
	}, bus.PriorityNormal, bus.ModuleSensor)
}

type Stats struct {
	Samples uint32
	Errors  uint32
	Resets  uint32
	Dropped uint32
}

func (p *Poller) Stats() Stats {
	return Stats{
		Samples: p.samples.Load(),
		Errors:  p.errors.Load(),
		Resets:  p.resets.Load(),
		Dropped: p.dropped.Load(),
	}
}
