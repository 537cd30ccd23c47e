// Package hid names the keyboard and consumer-control usages the panel
// sends, and publishes them as bus events for the USB transport.
package hid

import "panelcore/bus"

// Keyboard modifiers.
const (
	ModLeftCtrl  uint8 = 0x01
	ModLeftShift uint8 = 0x02
	ModLeftAlt   uint8 = 0x04
	ModLeftGUI   uint8 = 0x08

	// ModOS is the modifier used for clipboard shortcuts.
	ModOS = ModLeftCtrl
)

// Keyboard usages (HID usage page 0x07).
const (
	KeyA        uint8 = 0x04
	KeyC        uint8 = 0x06
	KeyV        uint8 = 0x19
	KeyX        uint8 = 0x1B
	KeyZ        uint8 = 0x1D
	KeyF5       uint8 = 0x3E
	KeyPageUp   uint8 = 0x4B
	KeyPageDown uint8 = 0x4E
)

// Consumer usages (HID usage page 0x0C).
const (
	ConsumerPlayPause  uint16 = 0x00CD
	ConsumerVolumeUp   uint16 = 0x00E9
	ConsumerVolumeDown uint16 = 0x00EA
)

// Combo publishes a key with modifiers.
func Combo(p bus.Publisher, mod, key uint8) error {
	return bus.PublishHID(p, bus.HIDPayload{Modifier: mod, Key: key})
}

// Click publishes a consumer-control press.
func Click(p bus.Publisher, usage uint16) error {
	return bus.PublishHID(p, bus.HIDPayload{Consumer: usage})
}
