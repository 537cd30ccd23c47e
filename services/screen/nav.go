package screen

import (
	"strconv"

	"panelcore/x/mathx"
)

// Group is a top-level screen group, 1 through GroupCount.
type Group uint8

const (
	Group1 Group = iota + 1 // clock, weather, stock, sensor
	Group2                  // system monitor
	Group3                  // shortcut entrances
	Group4                  // muyu entrance

	GroupCount = 4
)

func (g Group) Valid() bool { return g >= Group1 && g <= Group4 }

func (g Group) String() string { return "group" + strconv.Itoa(int(g)) }

// Level is the depth in the screen hierarchy.
type Level uint8

const (
	L1 Level = iota + 1
	L2
)

func (l Level) String() string {
	switch l {
	case L1:
		return "L1"
	case L2:
		return "L2"
	}
	return "L?"
}

// L2Group is a drill-down family.
type L2Group uint8

const (
	L2None L2Group = iota
	L2Time
	L2Weather
	L2System
	L2Media
	L2Web
	L2Shortcut
	L2Muyu

	l2GroupEnd
)

func (g L2Group) Valid() bool { return g > L2None && g < l2GroupEnd }

func (g L2Group) String() string {
	switch g {
	case L2None:
		return "none"
	case L2Time:
		return "time"
	case L2Weather:
		return "weather"
	case L2System:
		return "system"
	case L2Media:
		return "media"
	case L2Web:
		return "web"
	case L2Shortcut:
		return "shortcut"
	case L2Muyu:
		return "muyu"
	}
	return "unknown"
}

// L2Page is a page inside an L2 group.
type L2Page uint8

const (
	PageNone L2Page = iota
	PageTimeDetail
	PageMediaControl
	PageWebControl
	PageShortcutControl
	PageMuyu

	pageEnd
)

func (p L2Page) Valid() bool { return p > PageNone && p < pageEnd }

func (p L2Page) String() string {
	switch p {
	case PageNone:
		return "none"
	case PageTimeDetail:
		return "time_detail"
	case PageMediaControl:
		return "media_control"
	case PageWebControl:
		return "web_control"
	case PageShortcutControl:
		return "shortcut_control"
	case PageMuyu:
		return "muyu"
	}
	return "unknown"
}

// Nav is the navigation position. L2Group and L2Page are None at L1.
type Nav struct {
	Group   Group
	Level   Level
	L2Group L2Group
	L2Page  L2Page
}

func (n Nav) String() string {
	if n.Level == L2 {
		return n.Group.String() + "/L2/" + n.L2Group.String() + "/" + n.L2Page.String()
	}
	return n.Group.String() + "/L1"
}

// Next returns the group after g, wrapping from the last to the first.
func (g Group) Next() Group { return Group(mathx.Wrap(int(g), 1, int(Group1), int(Group4))) }

// Prev returns the group before g, wrapping from the first to the last.
func (g Group) Prev() Group { return Group(mathx.Wrap(int(g), -1, int(Group1), int(Group4))) }
