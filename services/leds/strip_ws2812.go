//go:build rp2040 || rp2350

package leds

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"

	"panelcore/types"
)

// WS2812 drives a chain of WS2812 LEDs from one data pin.
type WS2812 struct {
	dev ws2812.Device
	buf []color.RGBA
}

func NewWS2812(pin machine.Pin, count int) *WS2812 {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &WS2812{dev: ws2812.NewWS2812(pin), buf: make([]color.RGBA, count)}
}

func (w *WS2812) Apply(frame []types.Color) error {
	n := len(frame)
	if n > len(w.buf) {
		n = len(w.buf)
	}
	for i := 0; i < n; i++ {
		c := frame[i]
		w.buf[i] = color.RGBA{R: c.R(), G: c.G(), B: c.B(), A: 0xFF}
	}
	return w.dev.WriteColors(w.buf[:n])
}
