package sysfeed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"

	"panelcore/types"
)

// Host samples the machine the simulator runs on. GPU figures stay zero;
// gopsutil has no portable GPU source.
type Host struct {
	mu      sync.Mutex
	sent    uint64
	recv    uint64
	at      time.Time
	primed  bool
	nowFunc func() time.Time
}

func NewHost() *Host { return &Host{nowFunc: time.Now} }

// Sample returns what it could gather. It fails only when CPU and memory
// both fail.
func (h *Host) Sample(ctx context.Context) (types.System, error) {
	var s types.System
	var errs []error

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(pct) > 0 {
		s.CPUUsage = float32(pct[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		s.RAMUsage = float32(vm.UsedPercent)
	}
	if len(errs) == 2 {
		return s, errors.Join(errs...)
	}

	if temps, err := sensors.TemperaturesWithContext(ctx); err == nil {
		s.CPUTemp = float32(cpuTemp(temps))
	}
	if io, err := net.IOCountersWithContext(ctx, false); err == nil && len(io) > 0 {
		s.NetUp, s.NetDown = h.rates(io[0].BytesSent, io[0].BytesRecv)
	}
	s.Valid = true
	return s, nil
}

// rates turns cumulative byte counters into MB/s since the previous call.
func (h *Host) rates(sent, recv uint64) (up, down float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFunc()
	if h.primed {
		if dt := now.Sub(h.at).Seconds(); dt > 0 {
			up = mbps(h.sent, sent, dt)
			down = mbps(h.recv, recv, dt)
		}
	}
	h.sent, h.recv, h.at, h.primed = sent, recv, now, true
	return up, down
}

func mbps(prev, cur uint64, dt float64) float32 {
	if cur < prev {
		return 0
	}
	return float32(float64(cur-prev) / dt / 1e6)
}

// cpuTemp is the hottest sensor that looks like a CPU package or core.
func cpuTemp(ts []sensors.TemperatureStat) float64 {
	var max float64
	for _, t := range ts {
		k := strings.ToLower(t.SensorKey)
		if !strings.Contains(k, "core") && !strings.Contains(k, "cpu") &&
			!strings.Contains(k, "package") && !strings.Contains(k, "k10temp") {
			continue
		}
		if t.Temperature > max {
			max = t.Temperature
		}
	}
	return max
}
