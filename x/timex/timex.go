package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// ResetTimer safely stops, drains, and resets a timer.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

// DrainTimer empties a fired timer's channel without blocking.
func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// Phase returns the position of elapsed inside period as a fraction in
// [0, 1). A non-positive period yields 0.
func Phase(elapsed, period time.Duration) float32 {
	if period <= 0 || elapsed <= 0 {
		return 0
	}
	return float32(elapsed%period) / float32(period)
}

// Join waits for done up to timeout and reports whether it closed.
func Join(done <-chan struct{}, timeout time.Duration) bool {
	if done == nil {
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
