package bus

import (
	"time"

	"panelcore/types"
)

// PublishLEDFeedback asks the LED scheduler for a short static colour on
// one LED. A zero duration with ColorOff clears the LED.
func PublishLEDFeedback(p Publisher, index uint8, c types.Color, d time.Duration) error {
	return p.Publish(LEDFeedbackRequest, LEDFeedbackPayload{Index: index, Color: c, Duration: d}, PriorityNormal, ModuleLED)
}

// PublishScreenSwitch requests a group change.
func PublishScreenSwitch(p Publisher, target, current uint8, force bool) error {
	return p.Publish(ScreenSwitchRequest, ScreenSwitchPayload{Target: target, Current: current, Force: force}, PriorityHigh, ModuleScreen)
}

// PublishError reports a failure on behalf of module. Messages longer than
// the payload bound are rejected, so callers keep them short.
func PublishError(p Publisher, code int32, msg string, module ModuleID) error {
	return p.Publish(SystemError, ErrorPayload{Code: code, Msg: msg, Module: module}, PriorityHigh, module)
}

// PublishHID forwards a key combo or consumer usage to the HID transport.
func PublishHID(p Publisher, h HIDPayload) error {
	t := HIDKey
	if h.Consumer != 0 {
		t = HIDConsumer
	}
	return p.Publish(t, h, PriorityNormal, ModuleHID)
}

// PublishWeather, PublishStock, PublishSystem and PublishSensor publish data
// snapshots at Normal priority.
func PublishWeather(p Publisher, w types.Weather, src ModuleID) error {
	return p.Publish(DataWeatherUpdated, WeatherPayload{w}, PriorityNormal, src)
}

func PublishStock(p Publisher, s types.Stock, src ModuleID) error {
	return p.Publish(DataStockUpdated, StockPayload{s}, PriorityNormal, src)
}

func PublishSystem(p Publisher, s types.System, src ModuleID) error {
	return p.Publish(DataSystemUpdated, SystemPayload{s}, PriorityNormal, src)
}

func PublishSensor(p Publisher, s types.Sensor) error {
	return p.Publish(DataSensorUpdated, SensorPayload{s}, PriorityNormal, ModuleSensor)
}
