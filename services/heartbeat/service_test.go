package heartbeat

import (
	"context"
	"testing"
	"time"

	"panelcore/bus"
)

type countPub struct{ n int }

func (c *countPub) Publish(t bus.Type, p bus.Payload, _ bus.Priority, _ bus.ModuleID) error {
	if t == bus.SystemStatus && p == nil {
		c.n++
	}
	return nil
}

type fixedStats struct{}

func (fixedStats) Stats() bus.Stats { return bus.Stats{Processed: 7} }

func TestBeatPublishesStatus(t *testing.T) {
	pub := &countPub{}
	s := New(pub, fixedStats{}, 0, nil)
	s.Beat()
	s.Beat()
	if pub.n != 2 || s.Beats() != 2 {
		t.Fatalf("published=%d beats=%d", pub.n, s.Beats())
	}
}

func TestLoopBeatsUntilStopped(t *testing.T) {
	b := bus.New()
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()
	got := make(chan struct{}, 8)
	if err := b.Subscribe(bus.SystemStatus, "test", func(bus.Event) bool {
		select {
		case got <- struct{}{}:
		default:
		}
		return true
	}, bus.PriorityLow); err != nil {
		t.Fatal(err)
	}

	s := New(b, b, 5*time.Millisecond, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no status event")
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
}
