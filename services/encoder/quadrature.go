package encoder

import (
	"sync/atomic"

	"panelcore/services/keys"
)

// steps maps (previous<<2 | current) AB states to a count change. Invalid
// transitions (both lines changed) count zero.
var steps = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Quadrature decodes the A/B lines of a mechanical encoder into a signed
// count. Step runs in interrupt context.
type Quadrature struct {
	state   atomic.Uint32
	count   atomic.Int32
	invalid atomic.Uint32

	a, b keys.IRQPin
}

func NewQuadrature() *Quadrature { return &Quadrature{} }

// Step feeds the current line levels.
func (q *Quadrature) Step(a, b bool) {
	var cur uint32
	if a {
		cur |= 2
	}
	if b {
		cur |= 1
	}
	prev := q.state.Swap(cur)
	if prev == cur {
		return
	}
	d := steps[prev<<2|cur]
	if d == 0 {
		q.invalid.Add(1)
		return
	}
	q.count.Add(int32(d))
}

func (q *Quadrature) Count() int32 { return q.count.Load() }

func (q *Quadrature) Reset() { q.count.Store(0) }

// Invalid counts transitions that skipped a state.
func (q *Quadrature) Invalid() uint32 { return q.invalid.Load() }

// Attach samples both lines on every edge of either one.
func (q *Quadrature) Attach(a, b keys.IRQPin) error {
	sample := func() { q.Step(a.Get(), b.Get()) }
	q.Step(a.Get(), b.Get())
	if err := a.SetIRQ(sample); err != nil {
		return err
	}
	if err := b.SetIRQ(sample); err != nil {
		_ = a.ClearIRQ()
		return err
	}
	q.a, q.b = a, b
	return nil
}

// Detach removes the interrupts installed by Attach.
func (q *Quadrature) Detach() {
	if q.a != nil {
		_ = q.a.ClearIRQ()
		_ = q.b.ClearIRQ()
		q.a, q.b = nil, nil
	}
}
