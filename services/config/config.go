// Package config holds the tunables of every service. Default() is compiled
// in for the firmware; the simulator layers a TOML file over it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Device    string          `toml:"device"`
	Log       LogConfig       `toml:"log"`
	Bus       BusConfig       `toml:"bus"`
	Keys      KeysConfig      `toml:"keys"`
	LEDs      LEDConfig       `toml:"leds"`
	Screen    ScreenConfig    `toml:"screen"`
	Encoder   EncoderConfig   `toml:"encoder"`
	Data      DataConfig      `toml:"data"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Sensor    SensorConfig    `toml:"sensor"`
	Sim       SimConfig       `toml:"sim"`
}

type LogConfig struct {
	Level string `toml:"level"`
	Color bool   `toml:"color"`
	// Heartbeat is the status line period; zero disables it.
	Heartbeat Duration `toml:"heartbeat"`
}

type BusConfig struct {
	QueueSize      int `toml:"queue_size"`
	MaxSubscribers int `toml:"max_subscribers"`
	// PublishTimeout lets Publish wait for queue space; zero never waits.
	PublishTimeout Duration `toml:"publish_timeout"`
	HealthInterval Duration `toml:"health_interval"`
	ErrorThreshold int      `toml:"error_threshold"`
}

type KeysConfig struct {
	Debounce  Duration `toml:"debounce"`
	LongPress Duration `toml:"long_press"`
	Feedback  bool     `toml:"feedback"`
}

type LEDConfig struct {
	Count      int      `toml:"count"`
	Tick       Duration `toml:"tick"`
	Brightness uint8    `toml:"brightness"`
	// Breathing is the background effect period; zero disables it.
	Breathing Duration `toml:"breathing"`
}

type ScreenConfig struct {
	QueueSize int      `toml:"queue_size"`
	Batch     int      `toml:"batch"`
	Drain     Duration `toml:"drain"`
	Clock     Duration `toml:"clock"`
	Weather   Duration `toml:"weather"`
	Stock     Duration `toml:"stock"`
	System    Duration `toml:"system"`
	Sensor    Duration `toml:"sensor"`
}

type EncoderConfig struct {
	Poll Duration `toml:"poll"`
}

type DataConfig struct {
	Expiry Duration `toml:"expiry"`
}

type TelemetryConfig struct {
	Baud          uint32   `toml:"baud"`
	LinkTimeout   Duration `toml:"link_timeout"`
	CheckInterval Duration `toml:"check_interval"`
}

type SensorConfig struct {
	Interval Duration `toml:"interval"`
	Address  uint16   `toml:"address"`
}

// SimConfig is read only by the host simulator.
type SimConfig struct {
	MetricsAddr string   `toml:"metrics_addr"`
	SysFeed     Duration `toml:"sysfeed"`
	Render      bool     `toml:"render"`
}

func Default() *Config {
	return &Config{
		Device: "pico",
		Log:    LogConfig{Level: "info", Color: true, Heartbeat: Duration{30 * time.Second}},
		Bus: BusConfig{
			QueueSize:      64,
			MaxSubscribers: 32,
			HealthInterval: Duration{5 * time.Second},
			ErrorThreshold: 10,
		},
		Keys: KeysConfig{
			Debounce:  Duration{20 * time.Millisecond},
			LongPress: Duration{800 * time.Millisecond},
			Feedback:  true,
		},
		LEDs: LEDConfig{
			Count:      3,
			Tick:       Duration{20 * time.Millisecond},
			Brightness: 255,
			Breathing:  Duration{3 * time.Second},
		},
		Screen: ScreenConfig{
			QueueSize: 32,
			Batch:     10,
			Drain:     Duration{10 * time.Millisecond},
			Clock:     Duration{time.Second},
			Weather:   Duration{30 * time.Second},
			Stock:     Duration{10 * time.Second},
			System:    Duration{2 * time.Second},
			Sensor:    Duration{5 * time.Second},
		},
		Encoder:   EncoderConfig{Poll: Duration{10 * time.Millisecond}},
		Data:      DataConfig{Expiry: Duration{60 * time.Second}},
		Telemetry: TelemetryConfig{Baud: 1_000_000, LinkTimeout: Duration{30 * time.Second}, CheckInterval: Duration{10 * time.Second}},
		Sensor:    SensorConfig{Interval: Duration{5 * time.Second}, Address: 0x44},
		Sim:       SimConfig{MetricsAddr: ":9100", SysFeed: Duration{2 * time.Second}, Render: true},
	}
}

// presets are per-device deltas over Default.
var presets = map[string]func(*Config){
	"pico": func(*Config) {},
	"sim": func(c *Config) {
		c.Device = "sim"
		c.Log.Level = "debug"
		c.Telemetry.Baud = 0
	},
}

// PresetLookup resolves a device ID to its compiled-in configuration.
// Tests may replace it.
var PresetLookup = func(device string) (*Config, bool) {
	apply, ok := presets[device]
	if !ok {
		return nil, false
	}
	c := Default()
	apply(c)
	return c, true
}

// Validate reports every out-of-range field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field string, v any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: invalid value %v", field, v))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level", c.Log.Level)
	}
	check(c.Log.Heartbeat.Duration >= 0, "log.heartbeat", c.Log.Heartbeat)
	check(c.Bus.QueueSize > 0, "bus.queue_size", c.Bus.QueueSize)
	check(c.Bus.MaxSubscribers > 0, "bus.max_subscribers", c.Bus.MaxSubscribers)
	check(c.Bus.ErrorThreshold > 0, "bus.error_threshold", c.Bus.ErrorThreshold)
	check(c.Keys.LongPress.Duration > c.Keys.Debounce.Duration, "keys.long_press", c.Keys.LongPress)
	check(c.LEDs.Count > 0 && c.LEDs.Count <= 255, "leds.count", c.LEDs.Count)
	check(c.LEDs.Tick.Duration > 0, "leds.tick", c.LEDs.Tick)
	check(c.Screen.QueueSize > 0, "screen.queue_size", c.Screen.QueueSize)
	check(c.Screen.Batch > 0, "screen.batch", c.Screen.Batch)
	check(c.Screen.Drain.Duration > 0, "screen.drain", c.Screen.Drain)
	check(c.Encoder.Poll.Duration > 0, "encoder.poll", c.Encoder.Poll)
	check(c.Data.Expiry.Duration > 0, "data.expiry", c.Data.Expiry)
	check(c.Telemetry.LinkTimeout.Duration > c.Telemetry.CheckInterval.Duration,
		"telemetry.link_timeout", c.Telemetry.LinkTimeout)
	check(c.Telemetry.CheckInterval.Duration > 0, "telemetry.check_interval", c.Telemetry.CheckInterval)
	check(c.Sensor.Interval.Duration > 0, "sensor.interval", c.Sensor.Interval)
	check(c.Sensor.Address == 0x44 || c.Sensor.Address == 0x45, "sensor.address", c.Sensor.Address)
	return errors.Join(errs...)
}
