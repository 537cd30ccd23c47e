package telemetry

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"panelcore/errcode"
	"panelcore/types"
)

// Command is the only verb the host sends.
const Command = "sys_set"

// StockSymbol is reported for the single quote the host pushes.
const StockSymbol = "000001"

// Group says which snapshot a command touched.
type Group uint8

const (
	GroupNone Group = iota
	GroupTime
	GroupWeather
	GroupStock
	GroupSystem
	GroupTest
)

func (g Group) String() string {
	switch g {
	case GroupTime:
		return "time"
	case GroupWeather:
		return "weather"
	case GroupStock:
		return "stock"
	case GroupSystem:
		return "system"
	case GroupTest:
		return "test"
	}
	return "none"
}

var keyGroup = map[string]Group{
	"time":         GroupTime,
	"date":         GroupTime,
	"weekday":      GroupTime,
	"temp":         GroupWeather,
	"weather_code": GroupWeather,
	"humidity":     GroupWeather,
	"pressure":     GroupWeather,
	"city_code":    GroupWeather,
	"stock_name":   GroupStock,
	"stock_price":  GroupStock,
	"stock_change": GroupStock,
	"cpu":          GroupSystem,
	"cpu_temp":     GroupSystem,
	"mem":          GroupSystem,
	"gpu":          GroupSystem,
	"gpu_temp":     GroupSystem,
	"net_up":       GroupSystem,
	"net_down":     GroupSystem,
	"test":         GroupTest,
}

// Cmd is one parsed sys_set line.
type Cmd struct {
	Key   string
	Value string
	Group Group
}

// Parse splits a line into key and value. Quoting follows shell rules, so
// `sys_set stock_name "上证 指数"` carries the space.
func Parse(line string) (Cmd, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return Cmd{}, errcode.Wrap(errcode.InvalidPayload, "telemetry.parse", err)
	}
	if len(fields) < 3 || fields[0] != Command {
		return Cmd{}, errcode.InvalidPayload
	}
	c := Cmd{Key: fields[1], Value: strings.Join(fields[2:], " ")}
	g, ok := keyGroup[c.Key]
	if !ok {
		return c, errcode.NotFound
	}
	c.Group = g
	return c, nil
}

// Decoder folds commands into the weather, stock, system and clock
// snapshots. A snapshot turns valid on its anchor key (temp, stock_name,
// cpu) and stays valid until Invalidate.
type Decoder struct {
	now func() time.Time

	mu      sync.Mutex
	weather types.Weather
	stock   types.Stock
	system  types.System

	hms     [3]int
	ymd     [3]int
	weekday string
	hasTime bool
	hasDate bool
}

func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	d := &Decoder{now: now}
	d.weather.City = CityName(0)
	d.weather.Condition = ConditionName(0)
	d.stock.Symbol = StockSymbol
	return d
}

// Apply parses and applies one line and returns the parsed command. Errors
// are errcode values (InvalidPayload for a malformed line, NotFound for an
// unknown key, InvalidParams for a value that does not parse).
func (d *Decoder) Apply(line string) (Cmd, error) {
	c, err := Parse(line)
	if err != nil {
		return c, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch c.Group {
	case GroupTime:
		err = d.applyTime(c.Key, c.Value)
	case GroupWeather:
		err = d.applyWeather(c.Key, c.Value)
	case GroupStock:
		err = d.applyStock(c.Key, c.Value)
	case GroupSystem:
		err = d.applySystem(c.Key, c.Value)
	}
	return c, err
}

func (d *Decoder) stamp() string { return d.now().Format("15:04:05") }

func (d *Decoder) applyTime(key, v string) error {
	switch key {
	case "time":
		t, err := triple(v, ":")
		if err != nil || t[0] > 23 || t[1] > 59 || t[2] > 59 {
			return errcode.InvalidParams
		}
		d.hms, d.hasTime = t, true
	case "date":
		t, err := triple(v, "-")
		if err != nil || t[1] < 1 || t[1] > 12 || t[2] < 1 || t[2] > 31 {
			return errcode.InvalidParams
		}
		d.ymd, d.hasDate = t, true
	case "weekday":
		if len(v) > types.MaxStampLen {
			return errcode.InvalidParams
		}
		d.weekday = v
	}
	return nil
}

// triple reads "a<sep>b<sep>c" as non-negative integers.
func triple(v, sep string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(v, sep)
	if len(parts) != 3 {
		return out, errcode.InvalidParams
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return out, errcode.InvalidParams
		}
		out[i] = n
	}
	return out, nil
}

func (d *Decoder) applyWeather(key, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, "telemetry."+key, err)
	}
	w := &d.weather
	switch key {
	case "temp":
		w.Temperature = float32(n)
		w.Valid = true
	case "weather_code":
		w.Code = int16(n)
		w.Condition = ConditionName(w.Code)
	case "humidity":
		w.Humidity = float32(n)
	case "pressure":
		w.Pressure = int32(n)
	case "city_code":
		w.CityCode = int16(n)
		w.City = CityName(w.CityCode)
	}
	if w.Valid {
		w.UpdateTime = d.stamp()
	}
	return nil
}

func (d *Decoder) applyStock(key, v string) error {
	s := &d.stock
	switch key {
	case "stock_name":
		if v == "" || len(v) > types.MaxNameLen {
			return errcode.InvalidParams
		}
		s.Name = v
		s.Valid = true
	case "stock_price", "stock_change":
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return errcode.Wrap(errcode.InvalidParams, "telemetry."+key, err)
		}
		if key == "stock_price" {
			s.Price = float32(f)
		} else {
			s.Change = float32(f)
		}
	}
	s.ChangePercent = changePercent(s.Price, s.Change)
	if s.Valid {
		s.UpdateTime = d.stamp()
	}
	return nil
}

// changePercent is the change relative to the previous close.
func changePercent(price, change float32) float32 {
	if price <= 0 {
		return 0
	}
	prev := price - change
	if prev <= 0 {
		return 0
	}
	return change / prev * 100
}

func (d *Decoder) applySystem(key, v string) error {
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, "telemetry."+key, err)
	}
	s := &d.system
	switch key {
	case "cpu":
		s.CPUUsage = float32(f)
		s.Valid = true
	case "cpu_temp":
		s.CPUTemp = float32(f)
	case "mem":
		s.RAMUsage = float32(f)
	case "gpu":
		s.GPUUsage = float32(f)
	case "gpu_temp":
		s.GPUTemp = float32(f)
	case "net_up":
		s.NetUp = float32(f)
	case "net_down":
		s.NetDown = float32(f)
	}
	return nil
}

func (d *Decoder) Weather() types.Weather {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.weather
}

func (d *Decoder) Stock() types.Stock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stock
}

func (d *Decoder) System() types.System {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.system
}

// Clock returns the wall time the host last pushed. Without a date the
// local date is used; ok is false until a time has arrived.
func (d *Decoder) Clock() (t time.Time, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasTime {
		return time.Time{}, false
	}
	now := d.now()
	y, m, day := now.Date()
	if d.hasDate {
		y, m, day = d.ymd[0], time.Month(d.ymd[1]), d.ymd[2]
	}
	return time.Date(y, m, day, d.hms[0], d.hms[1], d.hms[2], 0, now.Location()), true
}

// Weekday is the label last pushed by the host.
func (d *Decoder) Weekday() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.weekday
}

// Invalidate clears the valid flags; values stay for display.
func (d *Decoder) Invalidate() {
	d.mu.Lock()
	d.weather.Valid = false
	d.stock.Valid = false
	d.system.Valid = false
	d.mu.Unlock()
}
