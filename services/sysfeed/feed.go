// Package sysfeed publishes host performance snapshots as SystemUpdated
// events, standing in for the desktop companion on the simulator.
package sysfeed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/types"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

type Source interface {
	Sample(ctx context.Context) (types.System, error)
}

// Config controls the feed. Zero fields take defaults.
type Config struct {
	// Interval between samples, default 2 s.
	Interval time.Duration
	Logger   *slog.Logger
}

type Feed struct {
	cfg Config
	log *slog.Logger
	src Source
	pub bus.Publisher

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	published atomic.Uint32
	failed    atomic.Uint32
}

func New(src Source, pub bus.Publisher, cfg Config) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Feed{cfg: cfg, log: logx.Service(cfg.Logger, "sysfeed"), src: src, pub: pub}
}

func (f *Feed) Start(ctx context.Context) error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()
	if f.running.Load() {
		return nil
	}
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	f.running.Store(true)
	go f.run(ctx, f.stop, f.done)
	return nil
}

func (f *Feed) Stop() error {
	f.lifeMu.Lock()
	if !f.running.Load() {
		f.lifeMu.Unlock()
		return nil
	}
	f.running.Store(false)
	close(f.stop)
	done := f.done
	f.lifeMu.Unlock()
	timex.Join(done, time.Second)
	return nil
}

func (f *Feed) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tk := time.NewTicker(f.cfg.Interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			f.running.Store(false)
			return
		case <-stop:
			return
		case <-tk.C:
			f.Tick(ctx)
		}
	}
}

// Tick takes and publishes one sample.
func (f *Feed) Tick(ctx context.Context) {
	s, err := f.src.Sample(ctx)
	if err != nil || !s.Valid {
		f.failed.Add(1)
		f.log.Debug("sample failed", "err", err)
		return
	}
	if err := bus.PublishSystem(f.pub, s, bus.ModuleSystem); err != nil {
		f.failed.Add(1)
		return
	}
	f.published.Add(1)
}

type Stats struct {
	Published uint32
	Failed    uint32
}

func (f *Feed) Stats() Stats {
	return Stats{Published: f.published.Load(), Failed: f.failed.Load()}
}
