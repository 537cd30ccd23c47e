// services/encoder/encoder.go
package encoder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// Counter is a free-running position counter, such as a Quadrature.
type Counter interface {
	Count() int32
	Reset()
}

// Encoder samples a Counter and publishes EncoderRotated for every whole
// step after the sensitivity divider. Raw counts below one step carry over
// to the next sample.
type Encoder struct {
	cfg config
	log *slog.Logger
	src Counter
	pub bus.Publisher

	mode        atomic.Uint32
	sensitivity atomic.Uint32

	// Poller-owned, guarded by mu against ResetCount.
	mu    sync.Mutex
	last  int32
	total int32

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

func New(src Counter, pub bus.Publisher, opts ...Option) *Encoder {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	e := &Encoder{
		cfg: cfg,
		log: logx.Service(cfg.logger, "encoder"),
		src: src,
		pub: pub,
	}
	e.sensitivity.Store(1)
	return e
}

func (e *Encoder) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.running.Load() {
		return nil
	}
	e.mu.Lock()
	e.last = e.src.Count()
	e.mu.Unlock()
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.running.Store(true)
	go e.run(ctx, e.stop, e.done)
	return nil
}

func (e *Encoder) Stop() error {
	e.lifeMu.Lock()
	if !e.running.Load() {
		e.lifeMu.Unlock()
		return nil
	}
	e.running.Store(false)
	close(e.stop)
	done := e.done
	e.lifeMu.Unlock()
	if !timex.Join(done, e.cfg.joinTimeout) {
		e.log.Warn("poller did not exit in time")
	}
	return nil
}

func (e *Encoder) Running() bool { return e.running.Load() }

func (e *Encoder) SetMode(m bus.EncoderMode) error {
	if m > bus.EncoderMenuNav {
		return errcode.InvalidParams
	}
	if bus.EncoderMode(e.mode.Swap(uint32(m))) != m {
		e.log.Debug("mode", "mode", m)
		_ = e.pub.Publish(bus.EncoderModeChanged, bus.EncoderPayload{Mode: m, Total: e.Total()}, bus.PriorityNormal, bus.ModuleEncoder)
	}
	return nil
}

func (e *Encoder) Mode() bus.EncoderMode { return bus.EncoderMode(e.mode.Load()) }

// SetSensitivity sets the number of raw counts per published step. Zero is
// treated as one.
func (e *Encoder) SetSensitivity(div uint8) {
	if div == 0 {
		div = 1
	}
	e.sensitivity.Store(uint32(div))
}

func (e *Encoder) Sensitivity() uint8 { return uint8(e.sensitivity.Load()) }

// ResetCount zeroes the hardware count and the running total.
func (e *Encoder) ResetCount() {
	e.mu.Lock()
	e.src.Reset()
	e.last = 0
	e.total = 0
	e.mu.Unlock()
}

func (e *Encoder) Total() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

type Stats struct {
	Published uint64
	Dropped   uint64
	Total     int32
	Mode      bus.EncoderMode
}

func (e *Encoder) Stats() Stats {
	return Stats{
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
		Total:     e.Total(),
		Mode:      e.Mode(),
	}
}

func (e *Encoder) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tk := time.NewTicker(e.cfg.poll)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			e.running.Store(false)
			return
		case <-stop:
			return
		case <-tk.C:
			e.sample()
		}
	}
}

// sample publishes one event for the whole steps seen since the last call.
func (e *Encoder) sample() {
	div := int32(e.sensitivity.Load())
	e.mu.Lock()
	raw := e.src.Count() - e.last
	delta := raw / div
	if delta == 0 {
		e.mu.Unlock()
		return
	}
	e.last += delta * div
	e.total += delta
	total := e.total
	e.mu.Unlock()

	ev := bus.EncoderPayload{Delta: int16(delta), Total: total, Mode: e.Mode()}
	if err := e.pub.Publish(bus.EncoderRotated, ev, bus.PriorityHigh, bus.ModuleEncoder); err != nil {
		e.dropped.Add(1)
		return
	}
	e.published.Add(1)
}
