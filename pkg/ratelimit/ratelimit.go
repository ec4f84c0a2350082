package ratelimit

import (
	"sync"
	"time"
)

// window is one fixed counting window for a single source address.
type window struct {
	count   int
	resetAt time.Time
}

// Table is a fixed-window admission counter keyed by source address.
// Windows expire lazily on the next Allow for their key; nothing sweeps the
// table in the background. The zero value is not usable, construct with New.
type Table struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	span    time.Duration
	now     func() time.Time
}

// New builds a table admitting up to limit attempts per span for each key.
func New(limit int, span time.Duration) *Table {
	return &Table{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (t *Table) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Allow reports whether an attempt from key is admitted. The counter is
// incremented only on admission, so rejected attempts never push a window
// past its limit.
func (t *Table) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	w, ok := t.windows[key]
	if !ok {
		t.windows[key] = &window{count: 1, resetAt: now.Add(t.span)}
		return true
	}
	if now.After(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(t.span)
		return true
	}
	if w.count < t.limit {
		w.count++
		return true
	}
	return false
}

// Sweep drops every expired window and returns the number removed. Callers
// that care about table growth for long-lived processes can run this on a
// ticker; Allow does not depend on it.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, w := range t.windows {
		if now.After(w.resetAt) {
			delete(t.windows, key)
			removed++
		}
	}
	return removed
}

// Clear empties the table. Called on shutdown.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows = make(map[string]*window)
}

// Len returns the number of tracked keys, expired or not.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}
