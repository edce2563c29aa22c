// internal/workers/integration/government-gateway/limiter.go
package governmentgateway

import (
	"sync"
	"time"
)

// slidingWindow admits at most limit calls in any trailing window.
type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	window     time.Duration
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{limit: limit, window: window}
}

// Allow records a call at now when under the limit. Otherwise it returns how long
// until the oldest call leaves the window.
func (sw *slidingWindow) Allow(now time.Time) (bool, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cleanup(now)
	if len(sw.timestamps) < sw.limit {
		sw.timestamps = append(sw.timestamps, now)
		return true, 0
	}
	return false, sw.timestamps[0].Add(sw.window).Sub(now)
}

// cleanup drops timestamps at or before now-window. Callers hold mu.
func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}
