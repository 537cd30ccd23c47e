// Package metrics exports service counters to Prometheus. Values are read
// from each service's Stats at scrape time, so nothing on the hot paths
// touches the registry.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"panelcore/bus"
	"panelcore/services/app"
	"panelcore/services/encoder"
	"panelcore/services/keys"
	"panelcore/services/leds"
	"panelcore/services/screen"
	"panelcore/services/sensor"
	"panelcore/services/sysfeed"
	"panelcore/services/telemetry"
)

const namespace = "panel"

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func() float64
}

// Collector is a prometheus.Collector over a set of attached services.
type Collector struct {
	mu      sync.Mutex
	metrics []metric
}

func New() *Collector { return &Collector{} }

func (c *Collector) add(subsystem, name, help string, kind prometheus.ValueType, value func() float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, metric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil),
		kind:  kind,
		value: value,
	})
}

func (c *Collector) counter(sub, name, help string, v func() float64) {
	c.add(sub, name, help, prometheus.CounterValue, v)
}

func (c *Collector) gauge(sub, name, help string, v func() float64) {
	c.add(sub, name, help, prometheus.GaugeValue, v)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	ms := append([]metric(nil), c.metrics...)
	c.mu.Unlock()
	for _, m := range ms {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value())
	}
}

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Bus attaches the event bus.
func (c *Collector) Bus(b interface{ Stats() bus.Stats }) {
	st := func() bus.Stats { return b.Stats() }
	c.counter("bus", "published_total", "Events accepted into the queue.", func() float64 { return float64(st().Published) })
	c.counter("bus", "processed_total", "Events taken off the queue.", func() float64 { return float64(st().Processed) })
	c.counter("bus", "handled_total", "Handler invocations.", func() float64 { return float64(st().Handled) })
	c.counter("bus", "unhandled_total", "Events with no subscriber.", func() float64 { return float64(st().Unhandled) })
	c.counter("bus", "dropped_total", "Events rejected because the queue was full.", func() float64 { return float64(st().Dropped) })
	c.counter("bus", "requeued_total", "Events put back after a busy handler.", func() float64 { return float64(st().Requeued) })
	c.counter("bus", "errors_total", "Handler errors.", func() float64 { return float64(st().Errors) })
	c.counter("bus", "purges_total", "Queue purges by the health check.", func() float64 { return float64(st().Purges) })
	c.gauge("bus", "queue_length", "Events waiting.", func() float64 { return float64(st().QueueLen) })
	c.gauge("bus", "subscribers", "Registered handlers.", func() float64 { return float64(st().Subscribers) })
}

func (c *Collector) Keys(m interface{ Stats() keys.Stats }) {
	c.counter("keys", "dispatched_total", "Key events delivered to a context.", func() float64 { return float64(m.Stats().Dispatched) })
	c.counter("keys", "unhandled_total", "Key events the context ignored.", func() float64 { return float64(m.Stats().Unhandled) })
	c.counter("keys", "no_context_total", "Key events with no active context.", func() float64 { return float64(m.Stats().NoContext) })
	c.counter("keys", "bounces_total", "Edges filtered by debounce.", func() float64 { return float64(m.Stats().Bounced) })
	c.counter("keys", "isr_drops_total", "Edges lost because the interrupt queue was full.", func() float64 { return float64(m.Stats().ISRDrops) })
	c.gauge("keys", "context_depth", "Depth of the context stack.", func() float64 { return float64(m.Stats().Depth) })
}

func (c *Collector) LEDs(s interface{ Stats() leds.Stats }) {
	c.counter("leds", "frames_total", "Frames pushed to the strip.", func() float64 { return float64(s.Stats().Frames) })
	c.counter("leds", "apply_errors_total", "Strip write failures.", func() float64 { return float64(s.Stats().ApplyErrors) })
	c.counter("leds", "dropped_total", "LED events not published.", func() float64 { return float64(s.Stats().Dropped) })
	c.counter("leds", "abandoned_total", "Effects released because the caller stopped waiting.", func() float64 { return float64(s.Stats().Abandoned) })
	c.gauge("leds", "active_effects", "Effects currently running.", func() float64 { return float64(s.Stats().Active) })
}

func (c *Collector) Screen(s interface{ Stats() screen.Stats }) {
	c.counter("screen", "processed_total", "Screen events processed.", func() float64 { return float64(s.Stats().Processed) })
	c.counter("screen", "switches_total", "Successful navigation transitions.", func() float64 { return float64(s.Stats().Switches) })
	c.counter("screen", "rejected_total", "Invalid transition requests.", func() float64 { return float64(s.Stats().Rejected) })
	c.counter("screen", "discarded_total", "Updates not shown on the current page.", func() float64 { return float64(s.Stats().Discarded) })
	c.counter("screen", "render_errors_total", "Renderer failures.", func() float64 { return float64(s.Stats().RenderErrors) })
	c.counter("screen", "dropped_total", "Events lost to a full screen queue.", func() float64 { return float64(s.Stats().Dropped) })
	c.gauge("screen", "queue_length", "Screen events waiting.", func() float64 { return float64(s.Stats().QueueLen) })
}

func (c *Collector) App(a interface{ Stats() app.Stats }) {
	c.counter("app", "actions_total", "Key actions run.", func() float64 { return float64(a.Stats().Actions) })
	c.counter("app", "action_errors_total", "Key actions that failed.", func() float64 { return float64(a.Stats().Failed) })
}

func (c *Collector) Encoder(e interface{ Stats() encoder.Stats }) {
	c.counter("encoder", "published_total", "Rotation events published.", func() float64 { return float64(e.Stats().Published) })
	c.gauge("encoder", "position", "Accumulated detents.", func() float64 { return float64(e.Stats().Total) })
}

func (c *Collector) Telemetry(t interface{ Stats() telemetry.Stats }) {
	c.counter("telemetry", "lines_total", "Lines received from the host.", func() float64 { return float64(t.Stats().Lines) })
	c.counter("telemetry", "commands_total", "Commands applied.", func() float64 { return float64(t.Stats().Commands) })
	c.counter("telemetry", "invalid_total", "Malformed lines and values.", func() float64 { return float64(t.Stats().Invalid) })
	c.counter("telemetry", "unknown_total", "Commands with an unknown key.", func() float64 { return float64(t.Stats().Unknown) })
	c.counter("telemetry", "timeouts_total", "Host link timeouts.", func() float64 { return float64(t.Stats().Timeouts) })
	c.counter("telemetry", "read_errors_total", "Port receive errors.", func() float64 { return float64(t.Stats().ReadErrs) })
	c.gauge("telemetry", "connected", "1 while the host link is alive.", func() float64 { return b2f(t.Stats().Connected) })
}

func (c *Collector) Sensor(p interface{ Stats() sensor.Stats }) {
	c.counter("sensor", "samples_total", "Good samples.", func() float64 { return float64(p.Stats().Samples) })
	c.counter("sensor", "errors_total", "Failed reads.", func() float64 { return float64(p.Stats().Errors) })
	c.counter("sensor", "resets_total", "Soft resets after an error streak.", func() float64 { return float64(p.Stats().Resets) })
}

func (c *Collector) SysFeed(f interface{ Stats() sysfeed.Stats }) {
	c.counter("sysfeed", "published_total", "Host snapshots published.", func() float64 { return float64(f.Stats().Published) })
	c.counter("sysfeed", "failed_total", "Host samples that failed.", func() float64 { return float64(f.Stats().Failed) })
}

// Handler registers c and the Go runtime collector on a fresh registry and
// serves it.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
