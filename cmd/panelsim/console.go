package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"panelcore/services/board"
	"panelcore/services/encoder"
	"panelcore/services/panel"
	"panelcore/services/telemetry"
)

// gray is the clockwise A/B sequence of a quadrature encoder.
var gray = [4][2]bool{{false, false}, {true, false}, {true, true}, {false, true}}

// console turns typed commands into button edges, encoder steps and host
// lines.
type console struct {
	p    *panel.Panel
	quad *encoder.Quadrature
	port *telemetry.RingPort
	tel  *telemetry.Service
	out  io.Writer

	phase int
	click time.Duration
	hold  time.Duration
}

func newConsole(p *panel.Panel, quad *encoder.Quadrature, port *telemetry.RingPort, tel *telemetry.Service, out io.Writer, click, hold time.Duration) *console {
	return &console{p: p, quad: quad, port: port, tel: tel, out: out, click: click, hold: hold}
}

const help = `commands:
  press <0-3>          click a button
  hold <0-3>           long-press a button
  rotate <n>           turn the encoder n steps (negative is anticlockwise)
  mode none|hid|encoder
  sys_set <key> <val>  send a host line
  stats                print service counters
  help                 this text`

// Exec runs one command line. It returns io.EOF on quit.
func (c *console) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, telemetry.Command+" ") {
		return c.port.WriteLine(ctx, line)
	}
	f, err := shlex.Split(line)
	if err != nil {
		return err
	}
	switch f[0] {
	case "press", "hold":
		if len(f) != 2 {
			return fmt.Errorf("usage: %s <0-%d>", f[0], board.Keys-1)
		}
		n, err := strconv.Atoi(f[1])
		if err != nil || n < 0 || n >= board.Keys {
			return fmt.Errorf("no button %q", f[1])
		}
		d := c.click
		if f[0] == "hold" {
			d = c.hold
		}
		if !c.p.Press(uint8(n), d) {
			return fmt.Errorf("key queue full")
		}
	case "rotate":
		if len(f) != 2 {
			return fmt.Errorf("usage: rotate <n>")
		}
		n, err := strconv.Atoi(f[1])
		if err != nil {
			return err
		}
		c.rotate(n)
	case "mode":
		if len(f) != 2 {
			return fmt.Errorf("usage: mode none|hid|encoder")
		}
		return c.p.App.SwitchMode(f[1])
	case "stats":
		c.stats()
	case "help":
		fmt.Fprintln(c.out, help)
	case "quit", "exit":
		return io.EOF
	default:
		return fmt.Errorf("unknown command %q, try help", f[0])
	}
	return nil
}

func (c *console) rotate(n int) {
	dir := 1
	if n < 0 {
		dir, n = -1, -n
	}
	for range n {
		c.phase = (c.phase + dir + 4) % 4
		s := gray[c.phase]
		c.quad.Step(s[0], s[1])
	}
}

func (c *console) stats() {
	b := c.p.Bus.Stats()
	fmt.Fprintf(c.out, "bus      published=%d processed=%d dropped=%d errors=%d queue=%d/%d subs=%d\n",
		b.Published, b.Processed, b.Dropped, b.Errors, b.QueueLen, b.QueueCap, b.Subscribers)
	k := c.p.Keys.Stats()
	fmt.Fprintf(c.out, "keys     dispatched=%d unhandled=%d bounced=%d context=%s\n",
		k.Dispatched, k.Unhandled, k.Bounced, c.p.Keys.Name(k.Current))
	l := c.p.LEDs.Stats()
	fmt.Fprintf(c.out, "leds     frames=%d active=%d/%d\n", l.Frames, l.Active, l.PoolSize)
	s := c.p.Screen.Stats()
	fmt.Fprintf(c.out, "screen   nav=%s switches=%d rejected=%d discarded=%d\n",
		c.p.Screen.State(), s.Switches, s.Rejected, s.Discarded)
	a := c.p.App.Stats()
	fmt.Fprintf(c.out, "app      mode=%s actions=%d failed=%d\n", a.Mode, a.Actions, a.Failed)
	if c.tel != nil {
		t := c.tel.Stats()
		fmt.Fprintf(c.out, "host     connected=%t commands=%d invalid=%d unknown=%d timeouts=%d\n",
			t.Connected, t.Commands, t.Invalid, t.Unknown, t.Timeouts)
	}
	m := c.p.Taps.Snapshot()
	fmt.Fprintf(c.out, "muyu     session=%d lifetime=%d\n", m.Session, m.Lifetime)
}
