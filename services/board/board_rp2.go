//go:build rp2040 || rp2350

package board

import (
	"machine"

	"tinygo.org/x/drivers"
)

// Pin is a GPIO input with edge interrupts on both edges. It satisfies
// keys.IRQPin.
type Pin struct {
	p machine.Pin
}

// GP is the raw pin for drivers that configure it themselves.
func GP(n int) machine.Pin { return machine.Pin(n) }

// Input configures GP n as an input with the pull-up enabled.
func Input(n int) *Pin {
	p := machine.Pin(n)
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return &Pin{p: p}
}

func (r *Pin) Get() bool { return r.p.Get() }

func (r *Pin) SetIRQ(handler func()) error {
	return r.p.SetInterrupt(machine.PinToggle, func(machine.Pin) { handler() })
}

func (r *Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

// I2C configures the sensor bus at 400 kHz. The controller is picked from
// the SDA pin: GP0/4/8/12/16/20 are I2C0, the rest I2C1.
func (l Layout) I2C() (drivers.I2C, error) {
	b := machine.I2C1
	if (l.I2CSDA/2)%2 == 0 {
		b = machine.I2C0
	}
	err := b.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.Pin(l.I2CSDA),
		SCL:       machine.Pin(l.I2CSCL),
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
