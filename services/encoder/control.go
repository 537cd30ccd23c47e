package encoder

import (
	"log/slog"
	"sync/atomic"
	"time"

	"panelcore/bus"
	"panelcore/services/hid"
	"panelcore/services/keys"
	"panelcore/types"
	"panelcore/x/logx"
	"panelcore/x/mathx"
)

// Dimmer is the LED brightness control driven in Brightness mode.
type Dimmer interface {
	SetBrightness(level uint8) error
}

const (
	feedbackLEDs = 3

	brightnessStep = 32
	brightnessMin  = 16
	brightnessMax  = 255
)

// modeKey is what each key selects in the encoder context.
var modeKey = [4]struct {
	mode  bus.EncoderMode
	sens  uint8
	color types.Color
}{
	{bus.EncoderVolume, 2, types.ColorGreen},
	{bus.EncoderScroll, 4, types.ColorBlue},
	{bus.EncoderBrightness, 3, types.ColorYellow},
	{bus.EncoderIdle, 1, types.ColorWhite},
}

// Control is the encoder key context and the handler that turns rotation
// into HID usages, brightness changes and LED feedback according to the
// current mode.
type Control struct {
	enc *Encoder
	pub bus.Publisher
	dim Dimmer
	log *slog.Logger

	level atomic.Int32

	rotations atomic.Uint64
	ignored   atomic.Uint64
}

// NewControl binds enc to pub for HID and feedback. dim may be nil, in which
// case Brightness mode only gives feedback.
func NewControl(enc *Encoder, pub bus.Publisher, dim Dimmer, logger *slog.Logger) *Control {
	c := &Control{enc: enc, pub: pub, dim: dim, log: logx.Service(logger, "encoder_ctl")}
	c.level.Store(brightnessMax)
	return c
}

// Context is the key context selecting the rotation mode: key 0 volume,
// key 1 scroll, key 2 brightness, key 3 idle with a count reset.
func (c *Control) Context() keys.Context {
	return keys.Context{
		ID:       keys.Volume,
		Name:     "ENCODER_CONTROL",
		Handler:  keys.OnClick(c.selectMode),
		Priority: 100,
	}
}

func (c *Control) selectMode(index int) bool {
	if index < 0 || index >= len(modeKey) {
		return false
	}
	k := modeKey[index]
	if k.mode == bus.EncoderIdle {
		c.enc.ResetCount()
		for i := uint8(0); i < feedbackLEDs; i++ {
			_ = bus.PublishLEDFeedback(c.pub, i, types.ColorOff, 0)
		}
	}
	_ = c.enc.SetMode(k.mode)
	c.enc.SetSensitivity(k.sens)
	if index < feedbackLEDs {
		_ = bus.PublishLEDFeedback(c.pub, uint8(index), k.color, 500*time.Millisecond)
	}
	c.log.Info("mode selected", "mode", k.mode, "sensitivity", k.sens)
	return true
}

// Brightness is the level last sent to the dimmer.
func (c *Control) Brightness() uint8 { return uint8(c.level.Load()) }

// Subscribe handles rotation at High priority so it is not starved by data
// traffic.
func (c *Control) Subscribe(b *bus.Bus) error {
	return b.Subscribe(bus.EncoderRotated, "encoder_ctl", c.onRotate, bus.PriorityHigh)
}

func (c *Control) onRotate(ev bus.Event) bool {
	p, ok := ev.Payload.(bus.EncoderPayload)
	if !ok || p.Delta == 0 {
		return false
	}
	c.rotations.Add(1)
	up := p.Delta > 0
	switch p.Mode {
	case bus.EncoderVolume:
		usage, col := hid.ConsumerVolumeDown, types.ColorRed
		if up {
			usage, col = hid.ConsumerVolumeUp, types.ColorGreen
		}
		_ = hid.Click(c.pub, usage)
		_ = bus.PublishLEDFeedback(c.pub, 1, col, 150*time.Millisecond)
	case bus.EncoderScroll:
		key, col := hid.KeyPageUp, types.ColorCyan
		if up {
			key, col = hid.KeyPageDown, types.ColorBlue
		}
		_ = hid.Combo(c.pub, 0, key)
		_ = bus.PublishLEDFeedback(c.pub, 2, col, 150*time.Millisecond)
	case bus.EncoderBrightness:
		c.adjust(int32(p.Delta))
		if up {
			for i := uint8(0); i < feedbackLEDs; i++ {
				_ = bus.PublishLEDFeedback(c.pub, i, types.ColorWhite, 100*time.Millisecond)
			}
		} else {
			_ = bus.PublishLEDFeedback(c.pub, 1, types.ColorYellow, 200*time.Millisecond)
		}
	case bus.EncoderMenuNav:
		led := uint8(0)
		if up {
			led = 2
		}
		_ = bus.PublishLEDFeedback(c.pub, led, types.ColorPurple, 150*time.Millisecond)
	default:
		c.ignored.Add(1)
		c.log.Debug("idle rotation", "delta", p.Delta)
		return false
	}
	return true
}

func (c *Control) adjust(steps int32) {
	lvl := mathx.Clamp(c.level.Load()+steps*brightnessStep, brightnessMin, brightnessMax)
	c.level.Store(lvl)
	if c.dim != nil {
		if err := c.dim.SetBrightness(uint8(lvl)); err != nil {
			c.log.Warn("brightness", "level", lvl, "err", err)
		}
	}
}

type ControlStats struct {
	Rotations  uint64
	Ignored    uint64
	Brightness uint8
}

func (c *Control) Stats() ControlStats {
	return ControlStats{
		Rotations:  c.rotations.Load(),
		Ignored:    c.ignored.Load(),
		Brightness: c.Brightness(),
	}
}
