// ABOUTME: Sliding-window request rate limiter keyed by client identity
// ABOUTME: Mutex-guarded in-process state with opportunistic stale-key cleanup

package ratelimit

import (
	"sync"
	"time"
)

// Default limits, per minute.
const (
	DefaultAuthLimit = 5
	DefaultAPILimit  = 30
)

// Limiter enforces at most limit events per window for each key. It keeps
// the timestamps of recent events per key and counts the ones still inside
// the window, so bursts right at a window edge can't double the rate the
// way fixed buckets allow.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	events  map[string][]time.Time
	lastGC  time.Time
	now     func() time.Time
}

// New creates a limiter allowing limit events per window.
func New(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within the
// limit. Denied attempts are not recorded; hammering a closed door does
// not push the reopen time further out.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := trim(l.events[key], cutoff)
	if len(recent) >= l.limit {
		l.events[key] = recent
		return false
	}

	l.events[key] = append(recent, now)
	l.maybeGC(now, cutoff)
	return true
}

// Remaining reports how many attempts key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := trim(l.events[key], l.now().Add(-l.window))
	l.events[key] = recent
	if n := l.limit - len(recent); n > 0 {
		return n
	}
	return 0
}

// trim drops events at or before cutoff. Timestamps are appended in order,
// so a single scan for the first survivor suffices.
func trim(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	return events[i:]
}

// maybeGC drops keys whose events have all aged out, at most once per
// window, so one-off clients don't accumulate forever.
func (l *Limiter) maybeGC(now time.Time, cutoff time.Time) {
	if now.Sub(l.lastGC) < l.window {
		return
	}
	l.lastGC = now
	for key, events := range l.events {
		if remaining := trim(events, cutoff); len(remaining) == 0 {
			delete(l.events, key)
		} else {
			l.events[key] = remaining
		}
	}
}
