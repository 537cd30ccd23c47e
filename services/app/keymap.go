package app

import (
	"time"

	"panelcore/bus"
	"panelcore/services/hid"
	"panelcore/services/keys"
	"panelcore/services/screen"
	"panelcore/types"
)

// action is what one key does inside a context.
type action func(a *App) error

// binding is a key context described as four key actions.
type binding struct {
	id       keys.ContextID
	name     string
	priority uint8
	onPress  bool
	keys     [4]action
}

func enterL2(g screen.L2Group, p screen.L2Page) action {
	return func(a *App) error { return a.nav.EnterL2(g, p) }
}

func returnL1(a *App) error { return a.nav.ReturnL1() }

func nextGroup(a *App) error { return a.nav.NextGroup() }

func consumer(u uint16) action {
	return func(a *App) error { return hid.Click(a.pub, u) }
}

func combo(mod, key uint8) action {
	return func(a *App) error { return hid.Combo(a.pub, mod, key) }
}

// flash runs then after a feedback request on led.
func flash(led uint8, c types.Color, d time.Duration, then action) action {
	return func(a *App) error {
		_ = bus.PublishLEDFeedback(a.pub, led, c, d)
		if then == nil {
			return nil
		}
		return then(a)
	}
}

// sweep flashes every LED white before then.
func sweep(then action) action {
	return func(a *App) error {
		for i := uint8(0); i < 3; i++ {
			_ = bus.PublishLEDFeedback(a.pub, i, types.ColorWhite, 100*time.Millisecond)
		}
		return then(a)
	}
}

func refreshWeather(a *App) error {
	if err := a.nav.UpdateWeather(nil); err != nil {
		return err
	}
	return a.nav.UpdateSensor(nil)
}

func refreshStock(a *App) error { return a.nav.UpdateStock(nil) }

func refreshSystem(a *App) error { return a.nav.UpdateSystem(nil) }

func tap(a *App) error {
	if a.taps == nil {
		return nil
	}
	s := a.taps.Tap()
	_ = bus.PublishLEDFeedback(a.pub, uint8(s.Session%3), types.ColorGold, 100*time.Millisecond)
	return a.nav.RefreshTaps()
}

func resetTaps(a *App) error {
	if a.taps == nil {
		return nil
	}
	a.taps.Reset()
	_ = bus.PublishLEDFeedback(a.pub, 1, types.ColorRed, 200*time.Millisecond)
	return a.nav.RefreshTaps()
}

func lightOne(led uint8, c types.Color) action {
	return func(a *App) error { return bus.PublishLEDFeedback(a.pub, led, c, time.Second) }
}

func allOff(a *App) error {
	if a.lights == nil {
		return nil
	}
	return a.lights.SetAll(types.ColorOff)
}

// bindings is the key map of every screen position plus the manual LED
// context. Key 3 always moves on: next group at L1, back to L1 at L2.
var bindings = []binding{
	{id: keys.MenuNav, name: "SCREEN_GROUP_1", priority: 100, keys: [4]action{
		flash(0, types.ColorBlue, 300*time.Millisecond, enterL2(screen.L2Time, screen.PageTimeDetail)),
		flash(1, types.ColorYellow, 300*time.Millisecond, refreshWeather),
		flash(2, types.ColorPurple, 300*time.Millisecond, refreshStock),
		sweep(nextGroup),
	}},
	{id: keys.System, name: "SCREEN_GROUP_2", priority: 100, keys: [4]action{
		refreshSystem, refreshSystem, refreshSystem, sweep(nextGroup),
	}},
	{id: keys.Settings, name: "SCREEN_GROUP_3", priority: 100, keys: [4]action{
		enterL2(screen.L2Media, screen.PageMediaControl),
		enterL2(screen.L2Web, screen.PageWebControl),
		enterL2(screen.L2Shortcut, screen.PageShortcutControl),
		nextGroup,
	}},
	{id: keys.Muyu, name: "SCREEN_GROUP_4", priority: 100, keys: [4]action{
		flash(0, types.ColorGold, 300*time.Millisecond, enterL2(screen.L2Muyu, screen.PageMuyu)),
		nil, nil, sweep(nextGroup),
	}},
	{id: keys.L2Time, name: "SCREEN_L2_TIME", priority: 110, keys: [4]action{
		nil, nil, nil, returnL1,
	}},
	{id: keys.L2Media, name: "SCREEN_L2_MEDIA", priority: 110, keys: [4]action{
		consumer(hid.ConsumerVolumeUp),
		consumer(hid.ConsumerVolumeDown),
		consumer(hid.ConsumerPlayPause),
		returnL1,
	}},
	{id: keys.L2Web, name: "SCREEN_L2_WEB", priority: 110, keys: [4]action{
		combo(0, hid.KeyPageUp),
		combo(0, hid.KeyPageDown),
		combo(0, hid.KeyF5),
		returnL1,
	}},
	{id: keys.L2Shortcut, name: "SCREEN_L2_SHORTCUT", priority: 110, keys: [4]action{
		combo(hid.ModOS, hid.KeyC),
		combo(hid.ModOS, hid.KeyV),
		combo(hid.ModOS, hid.KeyZ),
		returnL1,
	}},
	{id: keys.L2Muyu, name: "SCREEN_L2_MUYU", priority: 110, keys: [4]action{
		tap, resetTaps, nil, returnL1,
	}},
	{id: keys.HIDShortcut, name: "LED_CONTROL", priority: 100, onPress: true, keys: [4]action{
		lightOne(0, types.ColorRed),
		lightOne(1, types.ColorGreen),
		lightOne(2, types.ColorBlue),
		allOff,
	}},
}

// contextFor is the key context that owns the buttons at n.
func contextFor(n screen.Nav) keys.ContextID {
	if n.Level == screen.L2 {
		switch n.L2Group {
		case screen.L2Time:
			return keys.L2Time
		case screen.L2Media:
			return keys.L2Media
		case screen.L2Web:
			return keys.L2Web
		case screen.L2Shortcut:
			return keys.L2Shortcut
		case screen.L2Muyu:
			return keys.L2Muyu
		}
		return keys.None
	}
	switch n.Group {
	case screen.Group1:
		return keys.MenuNav
	case screen.Group2:
		return keys.System
	case screen.Group3:
		return keys.Settings
	case screen.Group4:
		return keys.Muyu
	}
	return keys.None
}
