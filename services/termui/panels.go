// Package termui draws the three panels and the LED cluster in a terminal
// for the host simulator.
package termui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"panelcore/services/screen"
	"panelcore/types"
)

const panelWidth = 26

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B7280")).
			Padding(0, 1).
			Width(panelWidth)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	navStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
)

// Panels implements the screen renderer interfaces by keeping the latest
// values and laying out the page for the current position on View.
type Panels struct {
	mu    sync.Mutex
	nav   screen.Nav
	dirty bool

	clock   types.Clock
	weather types.Weather
	stock   types.Stock
	system  types.System
	sensor  types.Sensor
	session uint32
	life    uint32

	builds uint32
}

func NewPanels() *Panels { return &Panels{} }

func (p *Panels) set(f func()) error {
	p.mu.Lock()
	f()
	p.dirty = true
	p.mu.Unlock()
	return nil
}

func (p *Panels) Build(g screen.Group) error {
	return p.set(func() {
		p.nav = screen.Nav{Group: g, Level: screen.L1}
		p.builds++
	})
}

func (p *Panels) BuildL2(g screen.L2Group, pg screen.L2Page) error {
	return p.set(func() {
		p.nav = screen.Nav{Group: p.nav.Group, Level: screen.L2, L2Group: g, L2Page: pg}
		p.builds++
	})
}

func (p *Panels) UpdateTime(c types.Clock) error      { return p.set(func() { p.clock = c }) }
func (p *Panels) UpdateWeather(w types.Weather) error { return p.set(func() { p.weather = w }) }
func (p *Panels) UpdateStock(s types.Stock) error     { return p.set(func() { p.stock = s }) }
func (p *Panels) UpdateSystem(s types.System) error   { return p.set(func() { p.system = s }) }
func (p *Panels) UpdateSensor(s types.Sensor) error   { return p.set(func() { p.sensor = s }) }

func (p *Panels) UpdateTaps(session, lifetime uint32) error {
	return p.set(func() { p.session, p.life = session, lifetime })
}

// Builds counts page builds, L1 and L2.
func (p *Panels) Builds() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds
}

// View renders the three panels for the current position.
func (p *Panels) View() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	cols := p.columns()
	boxes := make([]string, len(cols))
	for i, c := range cols {
		boxes[i] = boxStyle.Render(strings.Join(c, "\n"))
	}
	head := navStyle.Render("[" + p.nav.String() + "]")
	return lipgloss.JoinVertical(lipgloss.Left, head, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
}

// Flush writes the view when something changed since the last flush.
func (p *Panels) Flush(w io.Writer) (bool, error) {
	p.mu.Lock()
	dirty := p.dirty
	p.dirty = false
	p.mu.Unlock()
	if !dirty {
		return false, nil
	}
	_, err := io.WriteString(w, p.View()+"\n")
	return true, err
}

func (p *Panels) columns() [][]string {
	if p.nav.Level == screen.L2 {
		return p.l2Columns()
	}
	switch p.nav.Group {
	case screen.Group1:
		return [][]string{p.clockLines(), p.weatherLines(), p.stockLines()}
	case screen.Group2:
		s := p.system
		if !s.Valid {
			return [][]string{{titleStyle.Render("CPU"), dimStyle.Render("--")}, {titleStyle.Render("RAM")}, {titleStyle.Render("NET")}}
		}
		return [][]string{
			{titleStyle.Render("CPU / GPU"), fmt.Sprintf("CPU %5.1f%% %4.1f°C", s.CPUUsage, s.CPUTemp), fmt.Sprintf("GPU %5.1f%% %4.1f°C", s.GPUUsage, s.GPUTemp)},
			{titleStyle.Render("RAM"), fmt.Sprintf("%5.1f%%", s.RAMUsage), bar(s.RAMUsage)},
			{titleStyle.Render("NET"), fmt.Sprintf("↑ %.2f MB/s", s.NetUp), fmt.Sprintf("↓ %.2f MB/s", s.NetDown)},
		}
	case screen.Group3:
		return [][]string{{titleStyle.Render("Media")}, {titleStyle.Render("Web")}, {titleStyle.Render("Shortcut")}}
	case screen.Group4:
		return [][]string{{titleStyle.Render("木鱼")}, {fmt.Sprintf("session %d", p.session)}, {fmt.Sprintf("total %d", p.life)}}
	}
	return [][]string{{dimStyle.Render("booting")}}
}

func (p *Panels) l2Columns() [][]string {
	switch p.nav.L2Page {
	case screen.PageTimeDetail:
		c := p.clock
		return [][]string{
			{titleStyle.Render("Time"), fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)},
			{titleStyle.Render("Date"), fmt.Sprintf("%04d-%02d-%02d", c.Year, c.Month, c.Day)},
			{titleStyle.Render("Day"), c.Weekday},
		}
	case screen.PageMediaControl:
		return [][]string{{"[0] vol +"}, {"[1] vol -", "[2] play/pause"}, {"[3] back"}}
	case screen.PageWebControl:
		return [][]string{{"[0] page up"}, {"[1] page down", "[2] refresh"}, {"[3] back"}}
	case screen.PageShortcutControl:
		return [][]string{{"[0] copy"}, {"[1] paste", "[2] undo"}, {"[3] back"}}
	case screen.PageMuyu:
		return [][]string{
			{titleStyle.Render("木鱼"), "[0] tap  [1] reset"},
			{fmt.Sprintf("功德 +%d", p.session)},
			{fmt.Sprintf("total %d", p.life), "[3] back"},
		}
	}
	return [][]string{{dimStyle.Render(p.nav.L2Page.String())}}
}

func (p *Panels) clockLines() []string {
	c := p.clock
	lines := []string{titleStyle.Render("Clock"), fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)}
	if c.Year != 0 {
		lines = append(lines, fmt.Sprintf("%04d-%02d-%02d %s", c.Year, c.Month, c.Day, c.Weekday))
	}
	if s := p.sensor; s.Valid {
		lines = append(lines, fmt.Sprintf("room %.1f°C %.1f%%", s.Celsius(), s.Humidity()))
	}
	return lines
}

func (p *Panels) weatherLines() []string {
	w := p.weather
	if !w.Valid {
		return []string{titleStyle.Render("Weather"), dimStyle.Render("no data")}
	}
	return []string{
		titleStyle.Render(w.City),
		fmt.Sprintf("%s %.0f°C", w.Condition, w.Temperature),
		fmt.Sprintf("RH %.0f%%  %d hPa", w.Humidity, w.Pressure),
		dimStyle.Render(w.UpdateTime),
	}
}

func (p *Panels) stockLines() []string {
	s := p.stock
	if !s.Valid {
		return []string{titleStyle.Render("Stock"), dimStyle.Render("no data")}
	}
	st := downStyle
	if s.Change >= 0 {
		st = upStyle
	}
	return []string{
		titleStyle.Render(s.Name),
		fmt.Sprintf("%.2f", s.Price),
		st.Render(fmt.Sprintf("%+.2f (%+.2f%%)", s.Change, s.ChangePercent)),
		dimStyle.Render(s.UpdateTime),
	}
}

// bar is a ten-cell usage gauge.
func bar(pct float32) string {
	n := int(pct/10 + 0.5)
	n = max(0, min(10, n))
	return strings.Repeat("█", n) + strings.Repeat("░", 10-n)
}
