// Command panelsim runs the panel core on the host: panels and LEDs are
// drawn in the terminal, buttons and the encoder are driven from stdin, the
// host feed comes from typed sys_set lines and from this machine's own
// CPU, memory and network counters.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panelcore/bus"
	"panelcore/services/config"
	"panelcore/services/encoder"
	"panelcore/services/heartbeat"
	"panelcore/services/metrics"
	"panelcore/services/panel"
	"panelcore/services/sysfeed"
	"panelcore/services/telemetry"
	"panelcore/services/termui"
	"panelcore/x/logx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "panelsim:", err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", "panelsim.toml", "TOML configuration file")
	dump := flag.Bool("dump-config", false, "print the effective configuration and exit")
	metricsAddr := flag.String("metrics", "", "override sim.metrics_addr (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	if *dump {
		return config.Encode(os.Stdout, cfg)
	}
	if *metricsAddr != "" {
		cfg.Sim.MetricsAddr = *metricsAddr
	}

	start := time.Now()
	log := logx.New(os.Stderr, logx.ParseLevel(cfg.Log.Level), start, cfg.Log.Color)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	panels := termui.NewPanels()
	strip := termui.NewStrip(cfg.LEDs.Count)
	quad := encoder.NewQuadrature()
	p, err := panel.New(cfg, panel.Hardware{Strip: strip, Renderer: panels, Counter: quad}, log)
	if err != nil {
		return err
	}
	watchHID(p.Bus, log)

	port := telemetry.NewRingPort(1024)
	tel := telemetry.New(port, p.Bus,
		telemetry.WithLinkTimeout(cfg.Telemetry.LinkTimeout.Duration, cfg.Telemetry.CheckInterval.Duration),
		telemetry.WithInvalidator(p.Store),
		telemetry.WithTimeSink(func(t time.Time) {
			log.Info("host time", "at", t.Format(time.DateTime), "drift", time.Until(t).Round(time.Second))
		}),
		telemetry.WithLogger(log.With("service", "telemetry")),
	)

	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()
	if err := tel.Start(ctx); err != nil {
		return err
	}
	defer tel.Stop()

	coll := metrics.New()
	coll.Bus(p.Bus)
	coll.Keys(p.Keys)
	coll.LEDs(p.LEDs)
	coll.Screen(p.Screen)
	coll.App(p.App)
	coll.Encoder(p.Encoder)
	coll.Telemetry(tel)

	if cfg.Sim.SysFeed.Duration > 0 {
		feed := sysfeed.New(sysfeed.NewHost(), p.Bus, sysfeed.Config{
			Interval: cfg.Sim.SysFeed.Duration,
			Logger:   log.With("service", "sysfeed"),
		})
		if err := feed.Start(ctx); err != nil {
			return err
		}
		defer feed.Stop()
		coll.SysFeed(feed)
	}

	if cfg.Log.Heartbeat.Duration > 0 {
		hb := heartbeat.New(p.Bus, p.Bus, cfg.Log.Heartbeat.Duration, log.With("service", "heartbeat"))
		if err := hb.Start(ctx); err != nil {
			return err
		}
		defer hb.Stop()
	}

	if cfg.Sim.MetricsAddr != "" {
		h, err := metrics.Handler(coll)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		srv := &http.Server{Addr: cfg.Sim.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer srv.Close()
		log.Info("metrics listening", "addr", cfg.Sim.MetricsAddr)
	}

	if cfg.Sim.Render {
		go render(ctx, panels, strip, os.Stdout)
	}

	con := newConsole(p, quad, port, tel, os.Stdout, 3*cfg.Keys.Debounce.Duration, cfg.Keys.LongPress.Duration+100*time.Millisecond)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	fmt.Fprintln(os.Stdout, "type help for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if err := con.Exec(ctx, l); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				fmt.Fprintln(os.Stdout, "error:", err)
			}
		}
	}
}

// render redraws the panels when they change and the LED row every tick.
func render(ctx context.Context, panels *termui.Panels, strip *termui.Strip, w io.Writer) {
	tk := time.NewTicker(100 * time.Millisecond)
	defer tk.Stop()
	var frames uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			_, _ = panels.Flush(w)
			if n := strip.Frames(); n != frames {
				frames = n
				fmt.Fprintf(w, "\rLEDs %s ", strip.View())
			}
		}
	}
}

// watchHID logs the usages a USB transport would send.
func watchHID(b *bus.Bus, log *slog.Logger) {
	h := func(ev bus.Event) bool {
		p, ok := ev.Payload.(bus.HIDPayload)
		if !ok {
			return false
		}
		log.Info("hid", "type", ev.Type, "mod", p.Modifier, "key", p.Key, "consumer", p.Consumer)
		return true
	}
	_ = b.Subscribe(bus.HIDKey, "panelsim_hid", h, bus.PriorityLow)
	_ = b.Subscribe(bus.HIDConsumer, "panelsim_hid", h, bus.PriorityLow)
}
