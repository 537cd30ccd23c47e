package bus

import (
	"time"

	"panelcore/errcode"
)

// Type identifies an event. The high nibble groups families.
type Type uint16

const (
	DataWeatherUpdated Type = 0x1001 + iota
	DataStockUpdated
	DataSystemUpdated
	DataSensorUpdated
)

const (
	ScreenSwitchRequest Type = 0x2001 + iota
	ScreenRefreshRequest
	ScreenGroupChanged
	ScreenLevelChanged
)

const (
	HIDKey Type = 0x3001 + iota
	HIDConsumer
)

const (
	EncoderRotated Type = 0x4001 + iota
	EncoderModeChanged
)

const (
	SystemError Type = 0x5001 + iota
	SystemWarning
	SystemStatus
	SystemCleanup
)

const (
	CommConnected Type = 0x6001 + iota
	CommLost
)

const (
	LEDFeedbackRequest Type = 0x7001 + iota
)

// Family returns the family bits (0x1000, 0x2000, ...).
func (t Type) Family() Type { return t & 0xF000 }

// payloadKind is the only payload shape a type accepts.
func (t Type) payloadKind() (payloadKind, bool) {
	switch t {
	case DataWeatherUpdated:
		return kindWeather, true
	case DataStockUpdated:
		return kindStock, true
	case DataSystemUpdated:
		return kindSystem, true
	case DataSensorUpdated:
		return kindSensor, true
	case ScreenSwitchRequest:
		return kindScreenSwitch, true
	case ScreenRefreshRequest, SystemStatus, SystemCleanup:
		return kindNone, true
	case ScreenGroupChanged, ScreenLevelChanged:
		return kindNav, true
	case HIDKey, HIDConsumer:
		return kindHID, true
	case EncoderRotated, EncoderModeChanged:
		return kindEncoder, true
	case SystemError, SystemWarning:
		return kindError, true
	case CommConnected, CommLost:
		return kindComm, true
	case LEDFeedbackRequest:
		return kindLED, true
	}
	return kindNone, false
}

func (t Type) String() string {
	switch t {
	case DataWeatherUpdated:
		return "data.weather"
	case DataStockUpdated:
		return "data.stock"
	case DataSystemUpdated:
		return "data.system"
	case DataSensorUpdated:
		return "data.sensor"
	case ScreenSwitchRequest:
		return "screen.switch"
	case ScreenRefreshRequest:
		return "screen.refresh"
	case ScreenGroupChanged:
		return "screen.group"
	case ScreenLevelChanged:
		return "screen.level"
	case HIDKey:
		return "hid.key"
	case HIDConsumer:
		return "hid.consumer"
	case EncoderRotated:
		return "encoder.rotated"
	case EncoderModeChanged:
		return "encoder.mode"
	case SystemError:
		return "system.error"
	case SystemWarning:
		return "system.warning"
	case SystemStatus:
		return "system.status"
	case SystemCleanup:
		return "system.cleanup"
	case CommConnected:
		return "comm.connected"
	case CommLost:
		return "comm.lost"
	case LEDFeedbackRequest:
		return "led.feedback"
	}
	return "unknown"
}

// Priority orders events for subscriber thresholds.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// ModuleID names the publishing component.
type ModuleID uint8

const (
	ModuleUnknown ModuleID = iota
	ModuleScreen
	ModuleDataManager
	ModuleSerialComm
	ModuleHID
	ModuleEncoder
	ModuleLED
	ModuleSensor
	ModuleSystem
)

func (m ModuleID) String() string {
	switch m {
	case ModuleScreen:
		return "screen"
	case ModuleDataManager:
		return "data"
	case ModuleSerialComm:
		return "serial"
	case ModuleHID:
		return "hid"
	case ModuleEncoder:
		return "encoder"
	case ModuleLED:
		return "led"
	case ModuleSensor:
		return "sensor"
	case ModuleSystem:
		return "system"
	}
	return "unknown"
}

// Event is the fixed-shape envelope copied through the bus queue.
type Event struct {
	Type      Type
	Priority  Priority
	Timestamp time.Time
	Source    ModuleID
	Payload   Payload
}

// NewEvent validates and builds an event. It never truncates: a payload
// that does not match its type or exceeds a field bound is rejected.
func NewEvent(t Type, p Payload, prio Priority, src ModuleID) (Event, error) {
	want, ok := t.payloadKind()
	if !ok {
		return Event{}, errcode.InvalidParams
	}
	if prio > PriorityCritical {
		return Event{}, errcode.InvalidParams
	}
	got := kindNone
	if p != nil {
		got = p.kind()
	}
	if got != want {
		return Event{}, errcode.InvalidPayload
	}
	if p != nil {
		if err := p.validate(); err != nil {
			return Event{}, err
		}
	}
	return Event{Type: t, Priority: prio, Timestamp: time.Now(), Source: src, Payload: p}, nil
}
