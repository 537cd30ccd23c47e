// Package datastore keeps the latest data snapshots published on the bus so
// that pages built later can start from the last known values.
package datastore

import (
	"sync"
	"time"

	"panelcore/bus"
	"panelcore/types"
)

// Kind names one of the stored snapshots.
type Kind uint8

const (
	Weather Kind = iota
	Stock
	System
	Sensor
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Weather:
		return "weather"
	case Stock:
		return "stock"
	case System:
		return "system"
	case Sensor:
		return "sensor"
	}
	return "unknown"
}

// DefaultExpiry is how long a snapshot stays valid without an update.
const DefaultExpiry = 60 * time.Second

type Option func(*Store)

func WithExpiry(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is safe for concurrent use. A snapshot older than the expiry reads
// back with Valid cleared.
type Store struct {
	expiry time.Duration
	now    func() time.Time

	mu       sync.Mutex
	weather  types.Weather
	stock    types.Stock
	system   types.System
	sensor   types.Sensor
	updated  [numKinds]time.Time
	cleanups uint32
}

func New(opts ...Option) *Store {
	s := &Store{expiry: DefaultExpiry, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) expired(k Kind, now time.Time) bool {
	t := s.updated[k]
	return t.IsZero() || now.Sub(t) > s.expiry
}

func (s *Store) PutWeather(w types.Weather) {
	s.mu.Lock()
	s.weather = w
	s.updated[Weather] = s.now()
	s.mu.Unlock()
}

func (s *Store) PutStock(v types.Stock) {
	s.mu.Lock()
	s.stock = v
	s.updated[Stock] = s.now()
	s.mu.Unlock()
}

func (s *Store) PutSystem(v types.System) {
	s.mu.Lock()
	s.system = v
	s.updated[System] = s.now()
	s.mu.Unlock()
}

func (s *Store) PutSensor(v types.Sensor) {
	s.mu.Lock()
	s.sensor = v
	s.updated[Sensor] = s.now()
	s.mu.Unlock()
}

// Weather returns the stored snapshot and whether it is valid and fresh.
func (s *Store) Weather() (types.Weather, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(Weather, s.now()) {
		s.weather.Valid = false
	}
	return s.weather, s.weather.Valid
}

func (s *Store) Stock() (types.Stock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(Stock, s.now()) {
		s.stock.Valid = false
	}
	return s.stock, s.stock.Valid
}

func (s *Store) System() (types.System, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(System, s.now()) {
		s.system.Valid = false
	}
	return s.system, s.system.Valid
}

func (s *Store) Sensor() (types.Sensor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(Sensor, s.now()) {
		s.sensor.Valid = false
	}
	return s.sensor, s.sensor.Valid
}

// Fresh reports whether k holds a valid, unexpired snapshot.
func (s *Store) Fresh(k Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expired(k, s.now()) && s.validLocked(k)
}

// Age returns the time since k was last written, or -1 if never.
func (s *Store) Age(k Kind) time.Duration {
	if k >= numKinds {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updated[k].IsZero() {
		return -1
	}
	return s.now().Sub(s.updated[k])
}

func (s *Store) validLocked(k Kind) bool {
	switch k {
	case Weather:
		return s.weather.Valid
	case Stock:
		return s.stock.Valid
	case System:
		return s.system.Valid
	case Sensor:
		return s.sensor.Valid
	}
	return false
}

// Cleanup invalidates every expired snapshot that was still marked valid
// and returns how many it touched.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	if s.weather.Valid && s.expired(Weather, now) {
		s.weather.Valid = false
		n++
	}
	if s.stock.Valid && s.expired(Stock, now) {
		s.stock.Valid = false
		n++
	}
	if s.system.Valid && s.expired(System, now) {
		s.system.Valid = false
		n++
	}
	if s.sensor.Valid && s.expired(Sensor, now) {
		s.sensor.Valid = false
		n++
	}
	s.cleanups += uint32(n)
	return n
}

// Invalidate marks every snapshot stale without dropping the values.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.weather.Valid = false
	s.stock.Valid = false
	s.system.Valid = false
	s.sensor.Valid = false
	s.mu.Unlock()
}

// Reset forgets everything.
func (s *Store) Reset() {
	s.mu.Lock()
	s.weather = types.Weather{}
	s.stock = types.Stock{}
	s.system = types.System{}
	s.sensor = types.Sensor{}
	s.updated = [numKinds]time.Time{}
	s.mu.Unlock()
}

// Cleaned returns the running total of snapshots invalidated by Cleanup.
func (s *Store) Cleaned() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

// Subscribe records every data update published on b.
func (s *Store) Subscribe(b *bus.Bus) error {
	h := func(ev bus.Event) bool {
		switch p := ev.Payload.(type) {
		case bus.WeatherPayload:
			s.PutWeather(p.Weather)
		case bus.StockPayload:
			s.PutStock(p.Stock)
		case bus.SystemPayload:
			s.PutSystem(p.System)
		case bus.SensorPayload:
			s.PutSensor(p.Sensor)
		default:
			return false
		}
		return true
	}
	for _, t := range []bus.Type{bus.DataWeatherUpdated, bus.DataStockUpdated, bus.DataSystemUpdated, bus.DataSensorUpdated} {
		if err := b.Subscribe(t, "datastore", h, bus.PriorityLow); err != nil {
			return err
		}
	}
	return nil
}
