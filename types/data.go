package types

import "time"

// Byte limits for the text fields carried in events. They bound the size of
// every payload at compile time; longer values are rejected, never cut.
const (
	MaxNameLen    = 32
	MaxMessageLen = 128
	MaxStampLen   = 16
)

// Weather is the latest forecast snapshot pushed by the host.
type Weather struct {
	City        string
	Condition   string
	Temperature float32
	Humidity    float32
	Pressure    int32 // hPa
	UpdateTime  string
	Code        int16
	CityCode    int16
	Valid       bool
}

// Stock is one ticker quote.
type Stock struct {
	Symbol        string
	Name          string
	Price         float32
	Change        float32
	ChangePercent float32
	UpdateTime    string
	Valid         bool
}

// System is a host performance snapshot.
type System struct {
	CPUUsage float32
	CPUTemp  float32
	GPUUsage float32
	GPUTemp  float32
	RAMUsage float32
	NetUp    float32 // MB/s
	NetDown  float32 // MB/s
	Valid    bool
}

// Sensor is one local T/RH sample in tenths of a unit.
type Sensor struct {
	DeciCelsius     int16
	DeciRelHumidity uint16
	Valid           bool
}

func (s Sensor) Celsius() float32  { return float32(s.DeciCelsius) / 10 }
func (s Sensor) Humidity() float32 { return float32(s.DeciRelHumidity) / 10 }

// Clock is the wall time shown on the clock pages.
type Clock struct {
	Hour, Minute, Second uint8
	Year                 uint16
	Month, Day           uint8
	Weekday              string
}

// ClockOf converts a time.Time.
func ClockOf(t time.Time) Clock {
	return Clock{
		Hour:    uint8(t.Hour()),
		Minute:  uint8(t.Minute()),
		Second:  uint8(t.Second()),
		Year:    uint16(t.Year()),
		Month:   uint8(t.Month()),
		Day:     uint8(t.Day()),
		Weekday: t.Weekday().String(),
	}
}
