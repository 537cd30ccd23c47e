package screen

import "panelcore/types"

// Renderer owns the visual tree. The core calls it only from the goroutine
// that runs Drain.
type Renderer interface {
	Build(g Group) error
	BuildL2(g L2Group, p L2Page) error
	UpdateTime(c types.Clock) error
	UpdateWeather(w types.Weather) error
	UpdateStock(s types.Stock) error
	UpdateSystem(s types.System) error
}

// SensorRenderer is implemented by renderers that show the local sensor.
type SensorRenderer interface {
	UpdateSensor(s types.Sensor) error
}

// TapRenderer is implemented by renderers with a tap counter page.
type TapRenderer interface {
	UpdateTaps(session, lifetime uint32) error
}

// Source supplies the last known data when an update arrives without a
// valid snapshot. datastore.Store implements it.
type Source interface {
	Weather() (types.Weather, bool)
	Stock() (types.Stock, bool)
	System() (types.System, bool)
	Sensor() (types.Sensor, bool)
	Cleanup() int
}

// TapSource reports the tap counts shown on the muyu page.
type TapSource func() (session, lifetime uint32)
