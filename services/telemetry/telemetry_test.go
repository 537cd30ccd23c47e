package telemetry

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelcore/bus"
	"panelcore/errcode"
)

type published struct {
	t bus.Type
	p bus.Payload
}

type recPub struct {
	mu  sync.Mutex
	evs []published
}

func (r *recPub) Publish(t bus.Type, p bus.Payload, _ bus.Priority, _ bus.ModuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, published{t, p})
	return nil
}

func (r *recPub) of(t bus.Type) []bus.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Payload
	for _, e := range r.evs {
		if e.t == t {
			out = append(out, e.p)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.t }
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countInv struct{ n int }

func (c *countInv) Invalidate() { c.n++ }

func TestParse(t *testing.T) {
	c, err := Parse(`sys_set stock_name "上证 指数"`)
	require.NoError(t, err)
	assert.Equal(t, "stock_name", c.Key)
	assert.Equal(t, "上证 指数", c.Value)
	assert.Equal(t, GroupStock, c.Group)

	c, err = Parse("sys_set test hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", c.Value)

	_, err = Parse("set temp 20")
	assert.Equal(t, errcode.InvalidPayload, err)
	_, err = Parse("sys_set temp")
	assert.Equal(t, errcode.InvalidPayload, err)
	_, err = Parse(`sys_set temp "20`)
	assert.Equal(t, errcode.InvalidPayload, errcode.Of(err))

	c, err = Parse("sys_set colour red")
	assert.Equal(t, errcode.NotFound, err)
	assert.Equal(t, "colour", c.Key)
}

func TestWeatherValidOnTemperature(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 9, 30, 5, 0, time.UTC)}
	d := NewDecoder(clk.now)

	_, err := d.Apply("sys_set weather_code 3")
	require.NoError(t, err)
	assert.False(t, d.Weather().Valid)

	_, err = d.Apply("sys_set temp 21")
	require.NoError(t, err)
	w := d.Weather()
	assert.True(t, w.Valid)
	assert.Equal(t, float32(21), w.Temperature)
	assert.Equal(t, "小雨", w.Condition)
	assert.Equal(t, "杭州", w.City)
	assert.Equal(t, "09:30:05", w.UpdateTime)

	_, _ = d.Apply("sys_set city_code 2")
	_, _ = d.Apply("sys_set weather_code 40")
	w = d.Weather()
	assert.Equal(t, "北京", w.City)
	assert.Equal(t, "晴", w.Condition)

	_, err = d.Apply("sys_set humidity damp")
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

func TestStockChangePercent(t *testing.T) {
	d := NewDecoder(nil)
	_, _ = d.Apply("sys_set stock_price 110")
	_, _ = d.Apply("sys_set stock_change 10")
	assert.False(t, d.Stock().Valid)

	_, err := d.Apply("sys_set stock_name 上证指数")
	require.NoError(t, err)
	s := d.Stock()
	assert.True(t, s.Valid)
	assert.Equal(t, StockSymbol, s.Symbol)
	assert.InDelta(t, 10.0, s.ChangePercent, 0.001)

	_, _ = d.Apply("sys_set stock_change 110")
	assert.Zero(t, d.Stock().ChangePercent)

	_, err = d.Apply("sys_set stock_name " + strings.Repeat("x", 40))
	assert.Equal(t, errcode.InvalidParams, err)
}

func TestClockFromTimeAndDate(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDecoder(clk.now)

	_, ok := d.Clock()
	assert.False(t, ok)

	_, err := d.Apply("sys_set time 14:05:09")
	require.NoError(t, err)
	got, ok := d.Clock()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC), got)

	_, err = d.Apply("sys_set date 2024-12-31")
	require.NoError(t, err)
	got, _ = d.Clock()
	assert.Equal(t, time.Date(2024, 12, 31, 14, 5, 9, 0, time.UTC), got)

	_, err = d.Apply("sys_set time 25:00:00")
	assert.Equal(t, errcode.InvalidParams, err)
	_, err = d.Apply("sys_set weekday Tuesday")
	require.NoError(t, err)
	assert.Equal(t, "Tuesday", d.Weekday())
}

func TestExecPublishesAndCounts(t *testing.T) {
	pub := &recPub{}
	var synced []time.Time
	s := New(nil, pub, WithTimeSink(func(tm time.Time) { synced = append(synced, tm) }))

	require.NoError(t, s.Exec("sys_set mem 40"))
	assert.Empty(t, pub.of(bus.DataSystemUpdated), "system published before cpu")
	require.NoError(t, s.Exec("sys_set cpu 12.5"))
	require.NoError(t, s.Exec("sys_set gpu 70"))
	sys := pub.of(bus.DataSystemUpdated)
	require.Len(t, sys, 2)
	last := sys[1].(bus.SystemPayload).System
	assert.Equal(t, float32(12.5), last.CPUUsage)
	assert.Equal(t, float32(40), last.RAMUsage)
	assert.Equal(t, float32(70), last.GPUUsage)

	require.NoError(t, s.Exec("sys_set time 08:00:00"))
	assert.Len(t, synced, 1)

	assert.Error(t, s.Exec("hello"))
	assert.Error(t, s.Exec("sys_set volume 3"))
	assert.Error(t, s.Exec("sys_set cpu high"))
	require.NoError(t, s.Exec("sys_set test ping"))

	st := s.Stats()
	assert.Equal(t, uint32(8), st.Lines)
	assert.Equal(t, uint32(5), st.Commands)
	assert.Equal(t, uint32(2), st.Invalid)
	assert.Equal(t, uint32(1), st.Unknown)
	assert.Equal(t, uint32(2), st.Published)
	assert.True(t, st.Connected)
	assert.Len(t, pub.of(bus.CommConnected), 1)
}

func TestLinkTimeoutInvalidates(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	pub := &recPub{}
	inv := &countInv{}
	s := New(nil, pub, WithClock(clk.now), WithInvalidator(inv), WithLinkTimeout(30*time.Second, 10*time.Second))

	s.CheckLink()
	assert.Empty(t, pub.of(bus.CommLost), "lost before ever connecting")

	require.NoError(t, s.Exec("sys_set temp 18"))
	clk.advance(30 * time.Second)
	s.CheckLink()
	assert.True(t, s.Connected())

	clk.advance(time.Second)
	s.CheckLink()
	assert.False(t, s.Connected())
	assert.Equal(t, 1, inv.n)
	assert.False(t, s.Decoder().Weather().Valid)
	lost := pub.of(bus.CommLost)
	require.Len(t, lost, 1)
	assert.Equal(t, uint32(1), lost[0].(bus.CommPayload).Timeouts)

	s.CheckLink()
	assert.Equal(t, 1, inv.n)

	require.NoError(t, s.Exec("sys_set humidity 50"))
	assert.True(t, s.Connected())
	assert.Len(t, pub.of(bus.CommConnected), 2)
	assert.Len(t, pub.of(bus.DataWeatherUpdated), 1, "weather republished without a fresh temp")
}

func TestLineSplitter(t *testing.T) {
	var got []string
	var long []int
	l := newLineSplitter(16)
	feed := func(s string) {
		l.feed([]byte(s), func(s string) { got = append(got, s) }, func(n int) { long = append(long, n) })
	}

	feed("sys_set a\x01 1\r\n\r\nsys")
	feed("_set b 2\n")
	assert.Equal(t, []string{"sys_set a 1", "sys_set b 2"}, got)

	feed(strings.Repeat("z", 40) + "\nok\n")
	assert.Equal(t, []int{15}, long)
	assert.Equal(t, "ok", got[len(got)-1])
	assert.Zero(t, l.pending())
}

func TestReaderOverRingPort(t *testing.T) {
	pub := &recPub{}
	port := NewRingPort(64)
	s := New(port, pub, WithReadSlice(5*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, port.WriteLine(ctx, "sys_set stock_name 沪深300"))
	require.NoError(t, port.WriteLine(ctx, "sys_set stock_price 3900.5"))

	require.Eventually(t, func() bool { return len(pub.of(bus.DataStockUpdated)) == 2 }, 2*time.Second, 2*time.Millisecond)
	last := pub.of(bus.DataStockUpdated)[1].(bus.StockPayload).Stock
	assert.Equal(t, "沪深300", last.Name)
	assert.Equal(t, float32(3900.5), last.Price)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
}
