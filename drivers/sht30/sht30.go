// Package sht30 provides a driver for the Sensirion SHT30 temperature and
// humidity sensor in single-shot mode:
//
//	d.Trigger()              // send the measure command (fast)
//	err := d.Collect(&s)     // read the 6-byte result once converted
//
// Read() does both with a sleep of TriggerHint in between.
//
// Fixed-point helpers return tenths of units (deci-°C and deci-%RH); the
// float helpers are for display only.
package sht30

import (
	"errors"
	"math"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address with ADDR tied low. 0x45 with ADDR high.
const (
	Address    = 0x44
	AddressAlt = 0x45
)

// Commands, MSB first.
var (
	cmdMeasureHigh = [2]byte{0x2C, 0x06} // single shot, high repeatability, clock stretching
	cmdSoftReset   = [2]byte{0x30, 0xA2}
	cmdReadStatus  = [2]byte{0xF3, 0x2D}
)

var (
	ErrCRC      = errors.New("sht30: crc mismatch")
	ErrNotReady = errors.New("sht30: not ready")
)

type Config struct {
	// Address defaults to 0x44 if zero.
	Address uint16
	// TriggerHint is the conversion time waited by Read. Default 50 ms.
	TriggerHint time.Duration
}

type Device struct {
	bus     drivers.I2C
	Address uint16

	hint      time.Duration
	triggered bool
	buf       [6]byte
	last      Sample
}

// New creates the Device object; it does not touch the bus.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address, hint: 50 * time.Millisecond}
}

func (d *Device) Configure(c Config) {
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.TriggerHint > 0 {
		d.hint = c.TriggerHint
	}
}

// Reset issues a soft reset. The sensor needs about 1 ms before the next
// command.
func (d *Device) Reset() error {
	d.triggered = false
	return d.bus.Tx(d.Address, cmdSoftReset[:], nil)
}

// Status reads the 16-bit status register.
func (d *Device) Status() (uint16, error) {
	var r [3]byte
	if err := d.bus.Tx(d.Address, cmdReadStatus[:], r[:]); err != nil {
		return 0, err
	}
	if CRC8(r[:2]) != r[2] {
		return 0, ErrCRC
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

func (d *Device) Trigger() error {
	if err := d.bus.Tx(d.Address, cmdMeasureHigh[:], nil); err != nil {
		return err
	}
	d.triggered = true
	return nil
}

func (d *Device) TriggerHint() time.Duration { return d.hint }

// Collect reads the result of the last Trigger. ErrNotReady means no
// measurement was started.
func (d *Device) Collect(out *Sample) error {
	if !d.triggered {
		return ErrNotReady
	}
	d.triggered = false
	b := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, b); err != nil {
		return err
	}
	if CRC8(b[0:2]) != b[2] || CRC8(b[3:5]) != b[5] {
		return ErrCRC
	}
	d.last = Sample{
		RawTemp:     uint16(b[0])<<8 | uint16(b[1]),
		RawHumidity: uint16(b[3])<<8 | uint16(b[4]),
	}
	if out != nil {
		*out = d.last
	}
	return nil
}

// Read is Trigger, a sleep of TriggerHint, then Collect.
func (d *Device) Read(out *Sample) error {
	if err := d.Trigger(); err != nil {
		return err
	}
	time.Sleep(d.hint)
	return d.Collect(out)
}

// Last is the most recent good sample.
func (d *Device) Last() Sample { return d.last }

// CRC8 is the Sensirion checksum: polynomial 0x31, init 0xFF, no reflection.
func CRC8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Sample holds raw 16-bit readings.
type Sample struct {
	RawTemp     uint16
	RawHumidity uint16
}

// DeciCelsius is -450 + 1750*raw/65535.
func (s Sample) DeciCelsius() int32 {
	return int32(uint32(s.RawTemp)*1750/65535) - 450
}

// DeciRelHumidity is 1000*raw/65535, capped at 1000.
func (s Sample) DeciRelHumidity() int32 {
	v := int32(uint32(s.RawHumidity) * 1000 / 65535)
	if v > 1000 {
		v = 1000
	}
	return v
}

func (s Sample) Celsius() float32 { return -45 + 175*float32(s.RawTemp)/65535 }

func (s Sample) RelHumidity() float32 { return 100 * float32(s.RawHumidity) / 65535 }

// DewPoint uses the Magnus formula. It returns NaN at zero humidity.
func (s Sample) DewPoint() float32 {
	const a, b = 17.271, 237.7
	t := float64(s.Celsius())
	rh := float64(s.RelHumidity())
	g := a*t/(b+t) + math.Log(rh/100)
	return float32(b * g / (a - g))
}
