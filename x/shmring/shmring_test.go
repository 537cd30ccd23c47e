package shmring

import (
	"bytes"
	"sync"
	"testing"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i>>8)
	}
	return b
}

func TestStreamAcrossWrap(t *testing.T) {
	r := New(64)
	src := pattern(2000)

	rest := src
	var got []byte
	buf := make([]byte, 17)
	for len(got) < len(src) {
		if len(rest) > 0 {
			rest = rest[r.Write(rest[:min(len(rest), 23)]):]
		}
		got = append(got, buf[:r.Read(buf)]...)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("stream corrupted")
	}
	if r.Len() != 0 || r.Free() != 64 {
		t.Fatalf("len=%d free=%d", r.Len(), r.Free())
	}
}

func TestConcurrentWriterReader(t *testing.T) {
	r := New(32)
	src := pattern(50_000)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rest := src
		for len(rest) > 0 {
			n := r.Write(rest)
			rest = rest[n:]
			if n == 0 {
				<-r.Writable()
			}
		}
	}()

	got := make([]byte, 0, len(src))
	buf := make([]byte, 13)
	for len(got) < len(src) {
		n := r.Read(buf)
		if n == 0 {
			<-r.Readable()
			continue
		}
		got = append(got, buf[:n]...)
	}
	wg.Wait()
	if !bytes.Equal(got, src) {
		t.Fatal("stream corrupted")
	}
}

func TestWakeupsCoalesce(t *testing.T) {
	r := New(8)
	select {
	case <-r.Readable():
		t.Fatal("readable on empty ring")
	default:
	}
	r.Write([]byte{1, 2, 3})
	r.Write([]byte{4})
	<-r.Readable()
	select {
	case <-r.Readable():
		t.Fatal("second wakeup not coalesced")
	default:
	}

	if n := r.Write(make([]byte, 10)); n != 4 {
		t.Fatalf("fill -> %d", n)
	}
	if r.Free() != 0 || r.Write([]byte{9}) != 0 {
		t.Fatal("ring not full")
	}
	r.Read(make([]byte, 2))
	select {
	case <-r.Writable():
	default:
		t.Fatal("expected writable after a read")
	}
}

func TestNewRejectsBadSize(t *testing.T) {
	for _, n := range []int{0, 1, 12} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("no panic for size %d", n)
				}
			}()
			New(n)
		}()
	}
}
