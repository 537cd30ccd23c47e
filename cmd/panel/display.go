//go:build rp2040 || rp2350

package main

import (
	"log/slog"

	"panelcore/services/screen"
	"panelcore/types"
)

// logRenderer stands in for the panel driver: page builds are logged at
// info and data updates at debug.
type logRenderer struct{ log *slog.Logger }

func newLogRenderer(l *slog.Logger) *logRenderer { return &logRenderer{log: l} }

func (r *logRenderer) Build(g screen.Group) error {
	r.log.Info("build", "group", g)
	return nil
}

func (r *logRenderer) BuildL2(g screen.L2Group, p screen.L2Page) error {
	r.log.Info("build", "l2", g, "page", p)
	return nil
}

func (r *logRenderer) UpdateTime(c types.Clock) error { return nil }

func (r *logRenderer) UpdateWeather(w types.Weather) error {
	r.log.Debug("weather", "city", w.City, "temp", w.Temperature, "cond", w.Condition)
	return nil
}

func (r *logRenderer) UpdateStock(s types.Stock) error {
	r.log.Debug("stock", "name", s.Name, "price", s.Price, "pct", s.ChangePercent)
	return nil
}

func (r *logRenderer) UpdateSystem(s types.System) error {
	r.log.Debug("system", "cpu", s.CPUUsage, "mem", s.RAMUsage)
	return nil
}

func (r *logRenderer) UpdateSensor(s types.Sensor) error {
	r.log.Debug("sensor", "c", s.Celsius(), "rh", s.Humidity())
	return nil
}

func (r *logRenderer) UpdateTaps(session, lifetime uint32) error {
	r.log.Debug("taps", "session", session, "lifetime", lifetime)
	return nil
}
