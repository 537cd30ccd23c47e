package termui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"panelcore/types"
)

// Strip is a leds.Strip that keeps the last frame for display.
type Strip struct {
	mu     sync.Mutex
	frame  []types.Color
	frames uint32
}

func NewStrip(count int) *Strip { return &Strip{frame: make([]types.Color, count)} }

func (s *Strip) Apply(frame []types.Color) error {
	s.mu.Lock()
	if len(s.frame) != len(frame) {
		s.frame = make([]types.Color, len(frame))
	}
	copy(s.frame, frame)
	s.frames++
	s.mu.Unlock()
	return nil
}

// Last is a copy of the most recent frame.
func (s *Strip) Last() []types.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Color(nil), s.frame...)
}

func (s *Strip) Frames() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// View draws one block per LED in its colour; off LEDs show as a hollow dot.
func (s *Strip) View() string {
	var b strings.Builder
	for i, c := range s.Last() {
		if i > 0 {
			b.WriteByte(' ')
		}
		if c == types.ColorOff {
			b.WriteString(dimStyle.Render("○"))
			continue
		}
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(hex(c))).Render("●"))
	}
	return b.String()
}

func hex(c types.Color) string {
	const digits = "0123456789ABCDEF"
	out := []byte("#000000")
	for i, v := range []uint8{c.R(), c.G(), c.B()} {
		out[1+2*i] = digits[v>>4]
		out[2+2*i] = digits[v&0x0F]
	}
	return string(out)
}
