package muyu

import (
	"sync"
	"testing"
)

func TestTapAndReset(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Tap()
	}
	s := c.Reset()
	if s.Session != 0 || s.Lifetime != 5 {
		t.Fatalf("after reset: %+v", s)
	}
	s = c.Tap()
	if s.Session != 1 || s.Lifetime != 6 {
		t.Fatalf("after tap: %+v", s)
	}
}

func TestLifetimeMonotonicUnderConcurrency(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Reader checks that no observed lifetime is lower than the last one.
	var bad bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last uint32
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := c.Snapshot()
			if s.Lifetime < last || s.Session > s.Lifetime {
				bad = true
				return
			}
			last = s.Lifetime
		}
	}()

	var tappers sync.WaitGroup
	for g := 0; g < 4; g++ {
		tappers.Add(1)
		go func(g int) {
			defer tappers.Done()
			for i := 0; i < 500; i++ {
				if g == 0 && i%50 == 0 {
					c.Reset()
					continue
				}
				c.Tap()
			}
		}(g)
	}
	tappers.Wait()
	close(stop)
	wg.Wait()

	if bad {
		t.Fatal("lifetime went backwards or session exceeded lifetime")
	}
	// Group 0 resets on 10 of its 500 iterations.
	if got := c.Snapshot().Lifetime; got != 4*500-10 {
		t.Fatalf("lifetime = %d want %d", got, 4*500-10)
	}
}

func TestRestoreNeverLowers(t *testing.T) {
	c := New()
	c.Restore(250)
	c.Restore(10)
	if got := c.Snapshot().Lifetime; got != 250 {
		t.Fatalf("lifetime = %d", got)
	}
}

func TestLevels(t *testing.T) {
	cases := map[uint32]string{0: "lv1", 99: "lv1", 100: "lv2", 999: "lv2", 1000: "lv3"}
	for n, want := range cases {
		if got := Level(n); got != want {
			t.Fatalf("Level(%d) = %s want %s", n, got, want)
		}
	}
}
