package telemetry

import (
	"context"

	"panelcore/x/shmring"
)

// RingPort is an in-memory host link: the producer writes bytes with Write,
// the service receives them through RecvSomeContext.
type RingPort struct {
	r *shmring.Ring
}

// NewRingPort allocates a link buffering size bytes (a power of two).
func NewRingPort(size int) *RingPort {
	return &RingPort{r: shmring.New(size)}
}

// Write queues as much of p as fits and reports how much that was.
func (p *RingPort) Write(b []byte) (int, error) {
	return p.r.Write(b), nil
}

// WriteLine queues s with a trailing newline, waiting for space.
func (p *RingPort) WriteLine(ctx context.Context, s string) error {
	b := append([]byte(s), '\n')
	for len(b) > 0 {
		n := p.r.Write(b)
		b = b[n:]
		if len(b) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.r.Writable():
		}
	}
	return nil
}

// RecvSomeContext blocks until at least one byte is available or ctx ends.
func (p *RingPort) RecvSomeContext(ctx context.Context, b []byte) (int, error) {
	for {
		if n := p.r.Read(b); n > 0 {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-p.r.Readable():
		}
	}
}

// Buffered is the number of bytes not yet received.
func (p *RingPort) Buffered() int { return p.r.Len() }
