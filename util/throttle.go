// Package util holds small helpers shared by the commands and the driver.
package util

import "time"

// SkipThrottler admits at most one event per period and skips the rest.
type SkipThrottler struct {
	d    time.Duration
	now  func() time.Time
	last time.Time
}

// NewSkipThrottler returns a throttler admitting one event per d.
func NewSkipThrottler(d time.Duration) *SkipThrottler {
	return NewSkipThrottlerClock(d, time.Now)
}

// NewSkipThrottlerClock is NewSkipThrottler with an explicit clock.
func NewSkipThrottlerClock(d time.Duration, now func() time.Time) *SkipThrottler {
	return &SkipThrottler{d: d, now: now}
}

// Ok reports whether an event happening now is admitted.
// The first event is always admitted.
func (tt *SkipThrottler) Ok() bool {
	now := tt.now()
	if !tt.last.IsZero() && now.Before(tt.last.Add(tt.d)) {
		return false
	}
	tt.last = now
	return true
}
