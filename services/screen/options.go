package screen

import "log/slog"

type config struct {
	queueSize int
	batch     int
	intervals Intervals
	source    Source
	taps      TapSource
	hook      func(Nav)
	logger    *slog.Logger
}

func defaultConfig() config {
	return config{
		queueSize: 32,
		batch:     10,
		intervals: DefaultIntervals(),
	}
}

type Option func(*config)

func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithBatch bounds how many requests one Drain call handles.
func WithBatch(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithIntervals replaces the page timer cadence. Zero fields keep their
// defaults.
func WithIntervals(iv Intervals) Option {
	return func(c *config) {
		d := &c.intervals
		if iv.Clock > 0 {
			d.Clock = iv.Clock
		}
		if iv.Weather > 0 {
			d.Weather = iv.Weather
		}
		if iv.Stock > 0 {
			d.Stock = iv.Stock
		}
		if iv.System > 0 {
			d.System = iv.System
		}
		if iv.Sensor > 0 {
			d.Sensor = iv.Sensor
		}
		if iv.L2Clock > 0 {
			d.L2Clock = iv.L2Clock
		}
		if iv.Taps > 0 {
			d.Taps = iv.Taps
		}
		if iv.Cleanup > 0 {
			d.Cleanup = iv.Cleanup
		}
	}
}

// WithSource sets the fallback data source for updates without valid data.
func WithSource(s Source) Option {
	return func(c *config) { c.source = s }
}

func WithTapSource(f TapSource) Option {
	return func(c *config) { c.taps = f }
}

// WithTransitionHook registers f to run on the draining goroutine after
// every successful navigation change.
func WithTransitionHook(f func(Nav)) Option {
	return func(c *config) { c.hook = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
