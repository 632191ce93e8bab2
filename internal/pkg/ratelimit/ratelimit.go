// Package ratelimit provides per-key submission rate limiting for the
// render API.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts submissions per key within a fixed window.
type Limiter struct {
	mu sync.Mutex

	maxPerWindow int
	window       time.Duration
	windows      map[string]*submissionWindow

	// now is swappable in tests.
	now func() time.Time
}

type submissionWindow struct {
	count     int
	windowEnd time.Time
}

// New creates a limiter allowing maxPerWindow submissions per key in
// each window.
func New(maxPerWindow int, window time.Duration) *Limiter {
	return &Limiter{
		maxPerWindow: maxPerWindow,
		window:       window,
		windows:      make(map[string]*submissionWindow),
		now:          time.Now,
	}
}

// Allow records a submission for key and reports whether it is within
// the limit. Expired windows reset on first use.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || now.After(w.windowEnd) {
		l.windows[key] = &submissionWindow{
			count:     1,
			windowEnd: now.Add(l.window),
		}
		return true
	}

	if w.count >= l.maxPerWindow {
		return false
	}
	w.count++
	return true
}
