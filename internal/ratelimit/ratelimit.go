// Package ratelimit implements the per-team order rate limiter: a
// hard reset on every new wall-clock second, not a smoothed token
// bucket. Grounded on original_source's test_rate_limiting.py, which
// asserts that a count from an old second reads back as zero rather
// than decaying — no stdlib or ecosystem limiter (including
// golang.org/x/time/rate, which smooths across windows) implements
// that exact semantics, so this is bespoke on top of sync.Mutex.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	second int64
	count  int
}

// Limiter tracks one counting window per team.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]window
}

func New() *Limiter {
	return &Limiter{windows: make(map[string]window)}
}

// Count returns how many orders teamID has submitted in now's second,
// without incrementing it. A second with no recorded activity reads
// zero, whether it has never been seen or simply rolled over from a
// prior second.
func (l *Limiter) Count(teamID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.windows[teamID]
	if w.second != now.Unix() {
		return 0
	}
	return w.count
}

// Record increments teamID's count for now's second, resetting to 1 if
// now falls in a new second than the last recorded one, and returns
// the post-increment count.
func (l *Limiter) Record(teamID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sec := now.Unix()
	w := l.windows[teamID]
	if w.second != sec {
		w = window{second: sec, count: 0}
	}
	w.count++
	l.windows[teamID] = w
	return w.count
}
