package coap

import (
	"sync"
	"time"
)

// throttledWarner rate-limits repeated warnings, matching the
// lastWarn+mutex+min-interval pattern liveness.Receiver/Scheduler use
// (readErrWarnEvery, writeErrWarnEvery) to avoid log floods under
// sustained error conditions (spec §7: "Send failure: logged").
type throttledWarner struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func newThrottledWarner(interval time.Duration) *throttledWarner {
	return &throttledWarner{interval: interval}
}

// allow reports whether enough time has elapsed since the last warning
// to log another one, and records the attempt.
func (w *throttledWarner) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last.IsZero() || now.Sub(w.last) >= w.interval {
		w.last = now
		return true
	}
	return false
}
