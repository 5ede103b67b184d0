package util

import (
	"testing"
	"time"
)

func TestSkipThrottler(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		at time.Duration
		ok bool
	}{
		{at: 0, ok: true},
		{at: time.Second, ok: false},
		{at: 9 * time.Second, ok: false},
		{at: 10 * time.Second, ok: true},
		{at: 15 * time.Second, ok: false},
		{at: 25 * time.Second, ok: true},
	}
	var now time.Time
	tt := NewSkipThrottlerClock(10*time.Second, func() time.Time { return now })
	for _, test := range tests {
		now = start.Add(test.at)
		if ok := tt.Ok(); ok != test.ok {
			t.Fatalf("%v %t, expected %t", test.at, ok, test.ok)
		}
	}
}
