// Package heartbeat logs a liveness line with memory and bus counters on a
// fixed period and announces it as a SystemStatus event.
package heartbeat

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// StatsSource is the bus, or anything else reporting bus counters.
type StatsSource interface {
	Stats() bus.Stats
}

type Service struct {
	period time.Duration
	log    *slog.Logger
	pub    bus.Publisher
	stats  StatsSource
	start  time.Time

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	beats atomic.Uint32
}

// New beats every period (30 s if zero). stats may be nil.
func New(pub bus.Publisher, stats StatsSource, period time.Duration, logger *slog.Logger) *Service {
	if period <= 0 {
		period = 30 * time.Second
	}
	return &Service{
		period: period,
		log:    logx.Service(logger, "heartbeat"),
		pub:    pub,
		stats:  stats,
		start:  time.Now(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.running.Load() {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.serviceLoop(ctx, s.stop, s.done)
	return nil
}

func (s *Service) Stop() error {
	s.lifeMu.Lock()
	if !s.running.Load() {
		s.lifeMu.Unlock()
		return nil
	}
	s.running.Store(false)
	close(s.stop)
	done := s.done
	s.lifeMu.Unlock()
	if !timex.Join(done, time.Second) {
		s.log.Warn("loop did not exit in time")
	}
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(s.period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.running.Store(false)
			return
		case <-stop:
			return
		case <-tick.C:
			s.Beat()
		}
	}
}

// Beat logs one status line and publishes SystemStatus.
func (s *Service) Beat() {
	n := s.beats.Add(1)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	args := []any{"beat", n, "uptime", time.Since(s.start).Round(time.Second), "heap", ms.HeapInuse}
	if s.stats != nil {
		b := s.stats.Stats()
		args = append(args, "events", b.Processed, "dropped", b.Dropped, "queue", b.QueueLen)
	}
	s.log.Info("heartbeat", args...)
	if s.pub != nil {
		_ = s.pub.Publish(bus.SystemStatus, nil, bus.PriorityLow, bus.ModuleSystem)
	}
}

func (s *Service) Beats() uint32 { return s.beats.Load() }
