package types

// Color is a packed 0xRRGGBB value.
type Color uint32

// Named colours used for feedback and effects.
const (
	ColorOff     Color = 0x000000
	ColorWhite   Color = 0xFFFFFF
	ColorRed     Color = 0xFF0000
	ColorGreen   Color = 0x00FF00
	ColorBlue    Color = 0x0000FF
	ColorYellow  Color = 0xFFFF00
	ColorCyan    Color = 0x00FFFF
	ColorMagenta Color = 0xFF00FF
	ColorOrange  Color = 0xFF8000
	ColorPurple  Color = 0x8000FF
	ColorPink    Color = 0xFF80C0
	ColorGold    Color = 0xFFD700
)

func RGB(r, g, b uint8) Color {
	return Color(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c Color) R() uint8 { return uint8(c >> 16) }
func (c Color) G() uint8 { return uint8(c >> 8) }
func (c Color) B() uint8 { return uint8(c) }

// Scale multiplies each channel by level/255.
func (c Color) Scale(level uint8) Color {
	if level == 255 {
		return c
	}
	l := uint32(level)
	return RGB(
		uint8(uint32(c.R())*l/255),
		uint8(uint32(c.G())*l/255),
		uint8(uint32(c.B())*l/255),
	)
}
