package keys

import (
	"sync"

	"panelcore/errcode"
)

// IRQPin is the slice of a GPIO the button watcher needs. Handlers run in
// interrupt context.
type IRQPin interface {
	Get() bool
	SetIRQ(handler func()) error
	ClearIRQ() error
}

// Buttons turns pin edges into Pressed/Released posts on an InputSink.
// Debounce and click synthesis happen on the manager's goroutine; the
// interrupt path only samples the level and enqueues.
type Buttons struct {
	sink InputSink

	mu    sync.Mutex
	watch map[uint8]func()
}

func NewButtons(sink InputSink) *Buttons {
	return &Buttons{sink: sink, watch: map[uint8]func(){}}
}

// Add watches pin as logical button index. activeLow inverts the level so
// that a pulled-up switch to ground reads as pressed when low. The returned
// func detaches the interrupt.
func (b *Buttons) Add(index uint8, pin IRQPin, activeLow bool) (func(), error) {
	if int(index) >= MaxButtons {
		return nil, errcode.InvalidParams
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.watch[index]; taken {
		return nil, errcode.Busy
	}
	handler := func() {
		down := pin.Get()
		if activeLow {
			down = !down
		}
		a := Released
		if down {
			a = Pressed
		}
		b.sink.Post(index, a)
	}
	if err := pin.SetIRQ(handler); err != nil {
		return nil, err
	}
	cancel := func() {
		b.mu.Lock()
		if _, ok := b.watch[index]; ok {
			_ = pin.ClearIRQ()
			delete(b.watch, index)
		}
		b.mu.Unlock()
	}
	b.watch[index] = cancel
	return cancel, nil
}

// Close detaches every watched pin.
func (b *Buttons) Close() {
	b.mu.Lock()
	cancels := make([]func(), 0, len(b.watch))
	for _, c := range b.watch {
		cancels = append(cancels, c)
	}
	b.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}
