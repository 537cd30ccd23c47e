// Package board describes how the panel is wired to a Raspberry Pi Pico and
// brings up the pins and buses on the RP2 family.
package board

import "fmt"

// Keys is the number of panel buttons.
const Keys = 4

// Layout maps each signal to a GP number.
type Layout struct {
	Buttons  [Keys]int
	EncoderA int
	EncoderB int
	LEDData  int
	UART     int // 0 or 1
	UARTTX   int
	UARTRX   int
	I2CSDA   int
	I2CSCL   int
}

// DefaultLayout is the prototype wiring: keys on GP2..GP5 pulled up to
// 3V3 through the switch to ground, host link on UART0 and the sensor on
// I2C1.
func DefaultLayout() Layout {
	return Layout{
		Buttons:  [Keys]int{2, 3, 4, 5},
		EncoderA: 6,
		EncoderB: 7,
		LEDData:  16,
		UART:     0,
		UARTTX:   0,
		UARTRX:   1,
		I2CSDA:   14,
		I2CSCL:   15,
	}
}

// Validate rejects pins outside GP0..GP28 and pins used twice.
func (l Layout) Validate() error {
	named := []struct {
		name string
		pin  int
	}{
		{"encoder_a", l.EncoderA}, {"encoder_b", l.EncoderB}, {"led_data", l.LEDData},
		{"uart_tx", l.UARTTX}, {"uart_rx", l.UARTRX}, {"i2c_sda", l.I2CSDA}, {"i2c_scl", l.I2CSCL},
	}
	for i, p := range l.Buttons {
		named = append(named, struct {
			name string
			pin  int
		}{fmt.Sprintf("button%d", i), p})
	}
	seen := map[int]string{}
	for _, n := range named {
		if n.pin < 0 || n.pin > 28 {
			return fmt.Errorf("board: %s: GP%d out of range", n.name, n.pin)
		}
		if other, dup := seen[n.pin]; dup {
			return fmt.Errorf("board: GP%d used by %s and %s", n.pin, other, n.name)
		}
		seen[n.pin] = n.name
	}
	if l.UART != 0 && l.UART != 1 {
		return fmt.Errorf("board: no UART%d", l.UART)
	}
	return nil
}
