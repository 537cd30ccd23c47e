package leds

import (
	"math"
	"time"

	"panelcore/errcode"
	"panelcore/types"
	"panelcore/x/timex"
)

// Kind selects the render function of an effect.
type Kind uint8

const (
	KindStatic Kind = iota + 1
	KindBreathing
	KindFlowing
	KindBlink
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindBreathing:
		return "breathing"
	case KindFlowing:
		return "flowing"
	case KindBlink:
		return "blink"
	}
	return "unknown"
}

// State is the lifecycle of an effect slot.
type State uint8

const (
	Stopped State = iota
	Running
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// MaxColors bounds the colour set of one effect.
const MaxColors = 4

// Config describes one effect. Duration 0 runs until stopped. Count 0
// covers every LED.
type Config struct {
	Kind       Kind
	Duration   time.Duration
	Period     time.Duration
	Brightness uint8
	Colors     [MaxColors]types.Color
	NColors    uint8
	Reverse    bool
	Start      uint8
	Count      uint8
}

func (c Config) validate() error {
	switch c.Kind {
	case KindStatic, KindBreathing, KindFlowing, KindBlink:
	default:
		return errcode.InvalidParams
	}
	if c.NColors == 0 || c.NColors > MaxColors {
		return errcode.InvalidParams
	}
	if c.Kind != KindStatic && c.Period <= 0 {
		return errcode.InvalidParams
	}
	if c.Duration < 0 {
		return errcode.InvalidParams
	}
	return nil
}

// normalise fits the LED range to a strip of n LEDs.
func (c Config) normalise(n int) Config {
	if int(c.Start) >= n {
		c.Start = 0
	}
	if c.Count == 0 || int(c.Start)+int(c.Count) > n {
		c.Count = uint8(n - int(c.Start))
	}
	return c
}

// covers reports whether the effect range includes LED i.
func (c Config) covers(i int) bool {
	return i >= int(c.Start) && i < int(c.Start)+int(c.Count)
}

// Presets.

func Breathing(c types.Color, period time.Duration) Config {
	return Config{Kind: KindBreathing, Period: period, Brightness: 255, Colors: [MaxColors]types.Color{c}, NColors: 1}
}

// Flowing walks a single lit LED across the strip, moving to the next
// colour each lap.
func Flowing(colors []types.Color, period time.Duration, reverse bool) Config {
	cfg := Config{Kind: KindFlowing, Period: period, Brightness: 255, Reverse: reverse}
	for i, c := range colors {
		if i == MaxColors {
			break
		}
		cfg.Colors[i] = c
		cfg.NColors++
	}
	return cfg
}

func Blink(c types.Color, period, duration time.Duration) Config {
	return Config{Kind: KindBlink, Period: period, Duration: duration, Brightness: 255, Colors: [MaxColors]types.Color{c}, NColors: 1}
}

func Static(c types.Color, start, count uint8, duration time.Duration) Config {
	return Config{Kind: KindStatic, Duration: duration, Brightness: 255, Colors: [MaxColors]types.Color{c}, NColors: 1, Start: start, Count: count}
}

// render writes the effect's frame at elapsed into buf. cfg must already
// be normalised to len(buf).
func render(cfg *Config, elapsed time.Duration, buf []types.Color) {
	end := int(cfg.Start) + int(cfg.Count)
	if end > len(buf) {
		end = len(buf)
	}
	fill := func(c types.Color) {
		for i := int(cfg.Start); i < end; i++ {
			buf[i] = c
		}
	}
	base := cfg.Colors[0]

	switch cfg.Kind {
	case KindStatic:
		fill(base.Scale(cfg.Brightness))

	case KindBreathing:
		phi := timex.Phase(elapsed, cfg.Period)
		level := uint8((math.Sin(2*math.Pi*float64(phi)) + 1) * 127.5)
		fill(base.Scale(level).Scale(cfg.Brightness))

	case KindFlowing:
		fill(types.ColorOff)
		phi := timex.Phase(elapsed, cfg.Period)
		if cfg.Reverse {
			phi = 1 - phi
		}
		pos := int(phi * float32(cfg.Count))
		if pos >= int(cfg.Count) {
			pos = int(cfg.Count) - 1
		}
		lap := int(elapsed / cfg.Period)
		c := cfg.Colors[lap%int(cfg.NColors)]
		if i := int(cfg.Start) + pos; i >= int(cfg.Start) && i < end {
			buf[i] = c.Scale(cfg.Brightness)
		}

	case KindBlink:
		if elapsed%cfg.Period < cfg.Period/2 {
			fill(base.Scale(cfg.Brightness))
		} else {
			fill(types.ColorOff)
		}
	}
}
