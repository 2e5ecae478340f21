// Package scheduler
package scheduler

import (
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/utils"
)

// PageRateLimiter enforces per-page hourly send ceilings over fixed clock
// windows. Counts reset at the top of each hour; a send that does not fit in
// the current window is deferred, never dropped.
type PageRateLimiter struct {
	mu         sync.Mutex
	defaultCap int
	windows    map[uint]*pageWindow

	// now is swappable for tests.
	now func() time.Time
}

type pageWindow struct {
	start time.Time
	count int
}

// NewPageRateLimiter creates a limiter with the given default hourly cap
func NewPageRateLimiter(defaultCap int) *PageRateLimiter {
	if defaultCap <= 0 {
		defaultCap = utils.DefaultPageHourlyCap
	}
	return &PageRateLimiter{
		defaultCap: defaultCap,
		windows:    make(map[uint]*pageWindow),
		now:        utils.UTCNow,
	}
}

// Allow reports whether the page may send one more message in the current
// hourly window, counting it when allowed. A non-positive cap falls back to
// the default.
func (l *PageRateLimiter) Allow(pageID uint, cap int) bool {
	if cap <= 0 {
		cap = l.defaultCap
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Truncate(time.Hour)
	w, ok := l.windows[pageID]
	if !ok || !w.start.Equal(windowStart) {
		w = &pageWindow{start: windowStart}
		l.windows[pageID] = w
	}

	if w.count >= cap {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many sends the page has left in the current window
func (l *PageRateLimiter) Remaining(pageID uint, cap int) int {
	if cap <= 0 {
		cap = l.defaultCap
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Truncate(time.Hour)
	w, ok := l.windows[pageID]
	if !ok || !w.start.Equal(windowStart) {
		return cap
	}
	if w.count >= cap {
		return 0
	}
	return cap - w.count
}

// NextWindow returns when the current hourly window rolls over
func (l *PageRateLimiter) NextWindow() time.Time {
	return l.now().Truncate(time.Hour).Add(time.Hour)
}
