// Package shmring is a lock-free byte ring for exactly one writer and one
// reader goroutine. It stands in for a UART FIFO on the host.
//
// Indices run freely and wrap at 2^32; only their difference matters. The
// writer publishes head after copying, the reader publishes tail after
// copying, so each side sees fully written bytes. Readable and Writable
// hold at most one pending wakeup each; every Write arms Readable and every
// Read arms Writable, so a waiter must retry its Read or Write after waking.
package shmring

import (
	"fmt"
	"sync/atomic"
)

type Ring struct {
	data []byte
	mask uint32
	head atomic.Uint32 // written
	tail atomic.Uint32 // read

	dataReady  chan struct{}
	spaceReady chan struct{}
}

// New allocates a ring of size bytes. It panics unless size is a power of
// two and at least 2.
func New(size int) *Ring {
	if size < 2 || size&(size-1) != 0 {
		panic(fmt.Sprintf("shmring: size %d is not a power of two", size))
	}
	return &Ring{
		data:       make([]byte, size),
		mask:       uint32(size - 1),
		dataReady:  make(chan struct{}, 1),
		spaceReady: make(chan struct{}, 1),
	}
}

func (r *Ring) Cap() int { return len(r.data) }

// Len is the number of unread bytes.
func (r *Ring) Len() int { return int(r.head.Load() - r.tail.Load()) }

func (r *Ring) Free() int { return r.Cap() - r.Len() }

// span returns the one or two pieces of the buffer covering n bytes from
// index at.
func (r *Ring) span(at uint32, n int) (a, b []byte) {
	i := int(at & r.mask)
	if i+n <= len(r.data) {
		return r.data[i : i+n], nil
	}
	return r.data[i:], r.data[:i+n-len(r.data)]
}

// Write copies as much of p as fits and returns the count. Writer side only.
func (r *Ring) Write(p []byte) int {
	head, tail := r.head.Load(), r.tail.Load()
	n := min(len(p), len(r.data)-int(head-tail))
	if n == 0 {
		return 0
	}
	a, b := r.span(head, n)
	copy(b, p[copy(a, p):n])
	r.head.Store(head + uint32(n))
	notify(r.dataReady)
	return n
}

// Read copies up to len(p) unread bytes and returns the count. Reader side
// only.
func (r *Ring) Read(p []byte) int {
	tail, head := r.tail.Load(), r.head.Load()
	n := min(len(p), int(head-tail))
	if n == 0 {
		return 0
	}
	a, b := r.span(tail, n)
	copy(p[copy(p, a):n], b)
	r.tail.Store(tail + uint32(n))
	notify(r.spaceReady)
	return n
}

func (r *Ring) Readable() <-chan struct{} { return r.dataReady }

func (r *Ring) Writable() <-chan struct{} { return r.spaceReady }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
