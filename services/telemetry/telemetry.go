// services/telemetry/telemetry.go
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/errcode"
	"panelcore/x/logx"
	"panelcore/x/timex"
)

// Port is the receive side of the host link. *uartx.UART satisfies it, as
// does RingPort on the host.
type Port interface {
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

// Invalidator drops cached data when the host goes quiet.
type Invalidator interface {
	Invalidate()
}

// Service reads sys_set lines from the host, publishes the resulting
// weather, stock and system snapshots, and watches the link: a well-formed
// command marks it alive, silence past the timeout marks it lost and
// invalidates the cached data.
type Service struct {
	cfg  config
	log  *slog.Logger
	port Port
	pub  bus.Publisher
	dec  *Decoder

	lastRx atomic.Int64 // unix nanos of the last accepted command
	alive  atomic.Bool

	lifeMu  sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	lines     atomic.Uint32
	commands  atomic.Uint32
	invalid   atomic.Uint32
	unknown   atomic.Uint32
	timeouts  atomic.Uint32
	published atomic.Uint32
	dropped   atomic.Uint32
	readErrs  atomic.Uint32
}

// New binds a port and a publisher. port may be nil when lines arrive only
// through Exec.
func New(port Port, pub bus.Publisher, opts ...Option) *Service {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Service{
		cfg:  cfg,
		log:  logx.Service(cfg.logger, "telemetry"),
		port: port,
		pub:  pub,
		dec:  NewDecoder(cfg.now),
	}
}

// Decoder exposes the latest snapshots.
func (s *Service) Decoder() *Decoder { return s.dec }

func (s *Service) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.running.Load() {
		return nil
	}
	s.lastRx.Store(s.cfg.now().UnixNano())
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.run(ctx, s.stop, s.done)
	s.log.Info("listening", "timeout", s.cfg.timeout)
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
	if !timex.Join(done, s.cfg.joinTimeout) {
		s.log.Warn("reader did not exit in time")
	}
	return nil
}

func (s *Service) Running() bool { return s.running.Load() }

// Connected reports whether a command arrived within the link timeout.
func (s *Service) Connected() bool { return s.alive.Load() }

func (s *Service) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tk := time.NewTicker(s.cfg.check)
	defer tk.Stop()

	split := newLineSplitter(MaxLine)
	buf := make([]byte, 128)
	onLine := func(l string) { _ = s.Exec(l) }
	onLong := func(n int) {
		s.invalid.Add(1)
		s.log.Warn("line too long, ignored", "bytes", n)
	}

	for {
		select {
		case <-ctx.Done():
			s.running.Store(false)
			return
		case <-stop:
			return
		case <-tk.C:
			s.CheckLink()
		default:
		}
		if s.port == nil {
			select {
			case <-ctx.Done():
			case <-stop:
			case <-tk.C:
				s.CheckLink()
			}
			continue
		}
		// Bound the blocking wait so stop and the watchdog get a turn.
		rctx, cancel := context.WithTimeout(ctx, s.cfg.readSlice)
		n, err := s.port.RecvSomeContext(rctx, buf)
		cancel()
		if n > 0 {
			split.feed(buf[:n], onLine, onLong)
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			s.readErrs.Add(1)
			s.log.Debug("receive", "err", err)
			if !sleep(s.cfg.readSlice, stop) {
				return
			}
		}
	}
}

func sleep(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// Exec handles one line as if it had arrived on the port.
func (s *Service) Exec(line string) error {
	s.lines.Add(1)
	c, err := s.dec.Apply(line)
	switch errcode.Of(err) {
	case errcode.OK:
	case errcode.InvalidPayload:
		s.invalid.Add(1)
		s.log.Warn("invalid command, expected sys_set <key> <value>", "line", clip(line))
		return err
	case errcode.NotFound:
		s.unknown.Add(1)
		s.markAlive()
		s.log.Warn("unknown key", "key", c.Key, "value", clip(c.Value))
		return err
	default:
		s.invalid.Add(1)
		s.markAlive()
		s.log.Warn("bad value", "key", c.Key, "value", clip(c.Value), "err", err)
		return err
	}
	s.commands.Add(1)
	s.markAlive()
	s.log.Debug("command", "key", c.Key, "value", clip(c.Value))
	s.publish(c.Group)
	return nil
}

func (s *Service) publish(g Group) {
	var err error
	switch g {
	case GroupTime:
		if t, ok := s.dec.Clock(); ok && s.cfg.sink != nil {
			s.cfg.sink(t)
		}
		return
	case GroupWeather:
		w := s.dec.Weather()
		if !w.Valid {
			return
		}
		err = bus.PublishWeather(s.pub, w, bus.ModuleSerialComm)
	case GroupStock:
		st := s.dec.Stock()
		if !st.Valid {
			return
		}
		err = bus.PublishStock(s.pub, st, bus.ModuleSerialComm)
	case GroupSystem:
		sy := s.dec.System()
		if !sy.Valid {
			return
		}
		err = bus.PublishSystem(s.pub, sy, bus.ModuleSerialComm)
	case GroupTest:
		s.log.Info("test message received")
		return
	default:
		return
	}
	if err != nil {
		s.dropped.Add(1)
		s.log.Debug("publish", "group", g, "err", err)
		return
	}
	s.published.Add(1)
}

func (s *Service) markAlive() {
	s.lastRx.Store(s.cfg.now().UnixNano())
	if s.alive.Swap(true) {
		return
	}
	s.log.Info("host connected")
	_ = s.pub.Publish(bus.CommConnected, s.commPayload(true), bus.PriorityNormal, bus.ModuleSerialComm)
}

// CheckLink declares the link lost when no command arrived within the
// timeout. The run loop calls it on every check interval.
func (s *Service) CheckLink() {
	if !s.alive.Load() {
		return
	}
	idle := s.cfg.now().Sub(time.Unix(0, s.lastRx.Load()))
	if idle <= s.cfg.timeout {
		return
	}
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	n := s.timeouts.Add(1)
	s.log.Warn("host link timeout, invalidating data", "count", n, "idle", idle)
	s.dec.Invalidate()
	if s.cfg.inv != nil {
		s.cfg.inv.Invalidate()
	}
	_ = s.pub.Publish(bus.CommLost, s.commPayload(false), bus.PriorityHigh, bus.ModuleSerialComm)
}

func (s *Service) commPayload(up bool) bus.CommPayload {
	return bus.CommPayload{Connected: up, Timeouts: s.timeouts.Load(), Commands: s.commands.Load()}
}

func clip(v string) string {
	if len(v) > 50 {
		return v[:50] + "..."
	}
	return v
}

type Stats struct {
	Lines     uint32
	Commands  uint32
	Invalid   uint32
	Unknown   uint32
	Timeouts  uint32
	Published uint32
	Dropped   uint32
	ReadErrs  uint32
	Connected bool
}

func (s *Service) Stats() Stats {
	return Stats{
		Lines:     s.lines.Load(),
		Commands:  s.commands.Load(),
		Invalid:   s.invalid.Load(),
		Unknown:   s.unknown.Load(),
		Timeouts:  s.timeouts.Load(),
		Published: s.published.Load(),
		Dropped:   s.dropped.Load(),
		ReadErrs:  s.readErrs.Load(),
		Connected: s.alive.Load(),
	}
}
