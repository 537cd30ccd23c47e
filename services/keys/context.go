package keys

// ContextID names a registrable key context.
type ContextID uint8

const (
	None ContextID = iota
	HIDShortcut
	MenuNav
	Volume
	Settings
	System
	Muyu
	L2Time
	L2Media
	L2Web
	L2Shortcut
	L2Muyu

	maxContext
)

// Valid reports whether id is inside the known range. None is valid.
func (id ContextID) Valid() bool { return id < maxContext }

// Action is what happened to a button.
type Action uint8

const (
	Pressed Action = iota
	Released
	Clicked
	LongPressed
)

func (a Action) String() string {
	switch a {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	case Clicked:
		return "clicked"
	case LongPressed:
		return "long_pressed"
	}
	return "unknown"
}

// Handler interprets one button action; it returns false for keys it does
// not use.
type Handler func(index int, action Action) bool

// Context binds a handler to exclusive ownership of the buttons while it is
// active.
type Context struct {
	ID        ContextID
	Name      string
	Handler   Handler
	Priority  uint8
	Exclusive bool
}

// OnClick adapts a click-only handler: other actions are reported handled
// so they are not logged as unknown keys.
func OnClick(f func(index int) bool) Handler {
	return func(index int, action Action) bool {
		if action != Clicked {
			return true
		}
		return f(index)
	}
}
