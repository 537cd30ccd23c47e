package bus

import (
	"time"

	"panelcore/errcode"
	"panelcore/types"
)

type payloadKind uint8

const (
	kindNone payloadKind = iota
	kindWeather
	kindStock
	kindSystem
	kindSensor
	kindScreenSwitch
	kindNav
	kindHID
	kindEncoder
	kindError
	kindComm
	kindLED
)

// Payload is the closed set of event bodies. Only the types in this file
// implement it; receivers switch on the concrete type.
type Payload interface {
	kind() payloadKind
	validate() error
}

type WeatherPayload struct{ types.Weather }

type StockPayload struct{ types.Stock }

type SystemPayload struct{ types.System }

type SensorPayload struct{ types.Sensor }

// ScreenSwitchPayload asks the screen to move to Target.
type ScreenSwitchPayload struct {
	Target  uint8
	Current uint8
	Force   bool
}

// NavPayload reports a navigation position after a transition.
type NavPayload struct {
	Group   uint8
	Level   uint8
	L2Group uint8
	L2Page  uint8
}

// HIDPayload is a keyboard combo or a consumer-control usage.
type HIDPayload struct {
	Modifier uint8
	Key      uint8
	Consumer uint16
}

// EncoderMode selects what rotation drives.
type EncoderMode uint8

const (
	EncoderIdle EncoderMode = iota
	EncoderVolume
	EncoderScroll
	EncoderBrightness
	EncoderMenuNav
)

func (m EncoderMode) String() string {
	switch m {
	case EncoderIdle:
		return "idle"
	case EncoderVolume:
		return "volume"
	case EncoderScroll:
		return "scroll"
	case EncoderBrightness:
		return "brightness"
	case EncoderMenuNav:
		return "menu_nav"
	}
	return "unknown"
}

// EncoderPayload carries a rotation step (after sensitivity) or a mode change.
type EncoderPayload struct {
	Delta int16
	Total int32
	Mode  EncoderMode
}

type ErrorPayload struct {
	Code   int32
	Msg    string
	Module ModuleID
}

type CommPayload struct {
	Connected bool
	Timeouts  uint32
	Commands  uint32
}

// LEDFeedbackPayload requests a short static colour on one LED.
type LEDFeedbackPayload struct {
	Index    uint8
	Color    types.Color
	Duration time.Duration
}

func (WeatherPayload) kind() payloadKind      { return kindWeather }
func (StockPayload) kind() payloadKind        { return kindStock }
func (SystemPayload) kind() payloadKind       { return kindSystem }
func (SensorPayload) kind() payloadKind       { return kindSensor }
func (ScreenSwitchPayload) kind() payloadKind { return kindScreenSwitch }
func (NavPayload) kind() payloadKind          { return kindNav }
func (HIDPayload) kind() payloadKind          { return kindHID }
func (EncoderPayload) kind() payloadKind      { return kindEncoder }
func (ErrorPayload) kind() payloadKind        { return kindError }
func (CommPayload) kind() payloadKind         { return kindComm }
func (LEDFeedbackPayload) kind() payloadKind  { return kindLED }

func fits(s string, max int) bool { return len(s) <= max }

func (p WeatherPayload) validate() error {
	if !fits(p.City, types.MaxNameLen) || !fits(p.Condition, types.MaxNameLen) ||
		!fits(p.UpdateTime, types.MaxStampLen) {
		return errcode.PayloadTooLarge
	}
	return nil
}

func (p StockPayload) validate() error {
	if !fits(p.Symbol, types.MaxNameLen) || !fits(p.Name, types.MaxNameLen) ||
		!fits(p.UpdateTime, types.MaxStampLen) {
		return errcode.PayloadTooLarge
	}
	return nil
}

func (SystemPayload) validate() error       { return nil }
func (SensorPayload) validate() error       { return nil }
func (ScreenSwitchPayload) validate() error { return nil }
func (NavPayload) validate() error          { return nil }
func (HIDPayload) validate() error          { return nil }
func (EncoderPayload) validate() error      { return nil }
func (CommPayload) validate() error         { return nil }

func (p ErrorPayload) validate() error {
	if !fits(p.Msg, types.MaxMessageLen) {
		return errcode.PayloadTooLarge
	}
	return nil
}

func (p LEDFeedbackPayload) validate() error {
	if p.Duration < 0 {
		return errcode.InvalidPayload
	}
	return nil
}
