//go:build rp2040 || rp2350

// Command panel is the firmware: buttons and the encoder on GPIO
// interrupts, the LED cluster on a WS2812 chain, the host feed on a UART
// and the SHT30 on I2C.
package main

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"panelcore/drivers/sht30"
	"panelcore/services/board"
	"panelcore/services/config"
	"panelcore/services/encoder"
	"panelcore/services/heartbeat"
	"panelcore/services/keys"
	"panelcore/services/leds"
	"panelcore/services/panel"
	"panelcore/services/sensor"
	"panelcore/services/telemetry"
	"panelcore/x/logx"
)

func main() {
	// Let USB CDC enumerate before the first log line.
	time.Sleep(2 * time.Second)
	start := time.Now()

	cfg, ok := config.PresetLookup("pico")
	if !ok {
		cfg = config.Default()
	}
	log := logx.New(os.Stdout, logx.ParseLevel(cfg.Log.Level), start, cfg.Log.Color)
	slog.SetDefault(log)

	lay := board.DefaultLayout()
	if err := lay.Validate(); err != nil {
		halt(log, "layout", err)
	}

	quad := encoder.NewQuadrature()
	if err := quad.Attach(board.Input(lay.EncoderA), board.Input(lay.EncoderB)); err != nil {
		halt(log, "encoder", err)
	}
	p, err := panel.New(cfg, panel.Hardware{
		Strip:    leds.NewWS2812(board.GP(lay.LEDData), cfg.LEDs.Count),
		Renderer: newLogRenderer(log.With("service", "display")),
		Counter:  quad,
	}, log)
	if err != nil {
		halt(log, "panel", err)
	}

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		halt(log, "start", err)
	}

	btns := keys.NewButtons(p.Keys.ISR())
	for i, n := range lay.Buttons {
		if _, err := btns.Add(uint8(i), board.Input(n), true); err != nil {
			log.Error("button", "index", i, "gp", n, "err", err)
		}
	}

	uart, err := telemetry.OpenUART(lay.UART, board.GP(lay.UARTTX), board.GP(lay.UARTRX), cfg.Telemetry.Baud)
	if err != nil {
		log.Error("uart", "err", err)
	} else {
		tel := telemetry.New(uart, p.Bus,
			telemetry.WithLinkTimeout(cfg.Telemetry.LinkTimeout.Duration, cfg.Telemetry.CheckInterval.Duration),
			telemetry.WithInvalidator(p.Store),
			telemetry.WithTimeSink(syncClock),
			telemetry.WithLogger(log.With("service", "telemetry")),
		)
		if err := tel.Start(ctx); err != nil {
			log.Error("telemetry", "err", err)
		}
	}

	if i2c, err := lay.I2C(); err != nil {
		log.Error("i2c", "err", err)
	} else {
		dev := sht30.New(i2c)
		dev.Configure(sht30.Config{Address: cfg.Sensor.Address})
		poller := sensor.New(&dev, p.Bus,
			sensor.WithInterval(cfg.Sensor.Interval.Duration),
			sensor.WithLogger(log.With("service", "sensor")),
		)
		if err := poller.Start(ctx); err != nil {
			log.Error("sensor", "err", err)
		}
	}

	hb := heartbeat.New(p.Bus, p.Bus, cfg.Log.Heartbeat.Duration, log.With("service", "heartbeat"))
	if err := hb.Start(ctx); err != nil {
		log.Error("heartbeat", "err", err)
	}
	select {}
}

// syncClock moves the runtime clock to the host's wall time; the board has
// no RTC.
func syncClock(t time.Time) {
	runtime.AdjustTimeOffset(int64(time.Until(t)))
}

func halt(log *slog.Logger, what string, err error) {
	for {
		log.Error("boot failed", "stage", what, "err", err)
		time.Sleep(5 * time.Second)
	}
}
