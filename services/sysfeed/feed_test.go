package sysfeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelcore/bus"
	"panelcore/types"
)

type recPub struct {
	mu  sync.Mutex
	sys []types.System
}

func (r *recPub) Publish(t bus.Type, p bus.Payload, _ bus.Priority, _ bus.ModuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sp, ok := p.(bus.SystemPayload); ok && t == bus.DataSystemUpdated {
		r.sys = append(r.sys, sp.System)
	}
	return nil
}

func (r *recPub) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sys)
}

type fakeSource struct {
	s   types.System
	err error
}

func (f fakeSource) Sample(context.Context) (types.System, error) { return f.s, f.err }

func TestTickPublishesValidSamples(t *testing.T) {
	pub := &recPub{}
	f := New(fakeSource{s: types.System{CPUUsage: 33, Valid: true}}, pub, Config{})
	f.Tick(context.Background())
	require.Equal(t, 1, pub.len())
	assert.Equal(t, float32(33), pub.sys[0].CPUUsage)

	bad := New(fakeSource{err: errors.New("no /proc")}, pub, Config{})
	bad.Tick(context.Background())
	assert.Equal(t, 1, pub.len())
	assert.Equal(t, uint32(1), bad.Stats().Failed)
}

func TestFeedRunsOnInterval(t *testing.T) {
	pub := &recPub{}
	f := New(fakeSource{s: types.System{Valid: true}}, pub, Config{Interval: 2 * time.Millisecond})
	require.NoError(t, f.Start(context.Background()))
	require.Eventually(t, func() bool { return pub.len() >= 3 }, 2*time.Second, 2*time.Millisecond)
	require.NoError(t, f.Stop())
	require.NoError(t, f.Stop())
}

func TestNetRates(t *testing.T) {
	now := time.Unix(100, 0)
	h := &Host{nowFunc: func() time.Time { return now }}

	up, down := h.rates(1_000_000, 5_000_000)
	assert.Zero(t, up)
	assert.Zero(t, down)

	now = now.Add(2 * time.Second)
	up, down = h.rates(3_000_000, 9_000_000)
	assert.InDelta(t, 1.0, up, 1e-6)
	assert.InDelta(t, 2.0, down, 1e-6)

	now = now.Add(time.Second)
	up, _ = h.rates(0, 9_000_000)
	assert.Zero(t, up, "counter wrap reads as zero")
}

func TestCPUTempPicksHottestCore(t *testing.T) {
	ts := []sensors.TemperatureStat{
		{SensorKey: "acpitz", Temperature: 90},
		{SensorKey: "coretemp_core_0", Temperature: 51},
		{SensorKey: "coretemp_package_id_0", Temperature: 55},
	}
	assert.Equal(t, 55.0, cpuTemp(ts))
}
