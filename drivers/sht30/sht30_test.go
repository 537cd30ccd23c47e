package sht30

import (
	"errors"
	"testing"
)

type fakeI2C struct {
	writes [][]byte
	resp   []byte
	err    error
}

func (f *fakeI2C) ReadRegister(addr uint8, r uint8, buf []byte) error  { return nil }
func (f *fakeI2C) WriteRegister(addr uint8, r uint8, buf []byte) error { return nil }

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	if len(w) > 0 {
		f.writes = append(f.writes, append([]byte(nil), w...))
	}
	copy(r, f.resp)
	return nil
}

func frame(t, h uint16) []byte {
	b := []byte{byte(t >> 8), byte(t), 0, byte(h >> 8), byte(h), 0}
	b[2] = CRC8(b[0:2])
	b[5] = CRC8(b[3:5])
	return b
}

func TestCRC8DatasheetVector(t *testing.T) {
	if got := CRC8([]byte{0xBE, 0xEF}); got != 0x92 {
		t.Fatalf("crc = %#x", got)
	}
}

func TestTriggerCollect(t *testing.T) {
	bus := &fakeI2C{resp: frame(0x6666, 0x8000)}
	d := New(bus)

	var s Sample
	if err := d.Collect(&s); err != ErrNotReady {
		t.Fatalf("collect before trigger: %v", err)
	}
	if err := d.Trigger(); err != nil {
		t.Fatal(err)
	}
	if w := bus.writes[0]; w[0] != 0x2C || w[1] != 0x06 {
		t.Fatalf("command = % x", w)
	}
	if err := d.Collect(&s); err != nil {
		t.Fatal(err)
	}
	if s.DeciCelsius() != 250 || s.DeciRelHumidity() != 500 {
		t.Fatalf("deci C=%d RH=%d", s.DeciCelsius(), s.DeciRelHumidity())
	}
	if d.Last() != s {
		t.Fatal("last sample not cached")
	}
	if dp := s.DewPoint(); dp < 13.8 || dp > 13.9 {
		t.Fatalf("dew point = %v", dp)
	}
}

func TestCollectRejectsBadCRC(t *testing.T) {
	f := frame(0x6666, 0x8000)
	f[5] ^= 1
	d := New(&fakeI2C{resp: f})
	_ = d.Trigger()
	if err := d.Collect(nil); err != ErrCRC {
		t.Fatalf("err = %v", err)
	}
}

func TestBusErrorPassesThrough(t *testing.T) {
	boom := errors.New("nack")
	d := New(&fakeI2C{err: boom})
	if err := d.Trigger(); err != boom {
		t.Fatalf("err = %v", err)
	}
	if err := d.Reset(); err != boom {
		t.Fatalf("err = %v", err)
	}
}

func TestStatus(t *testing.T) {
	r := []byte{0x80, 0x10, 0}
	r[2] = CRC8(r[:2])
	d := New(&fakeI2C{resp: r})
	st, err := d.Status()
	if err != nil || st != 0x8010 {
		t.Fatalf("status=%#x err=%v", st, err)
	}
}
