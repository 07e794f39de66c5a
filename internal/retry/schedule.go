// Package retry defines the fixed delivery retry schedule.
package retry

import "time"

// Schedule is a fixed backoff schedule: Delays[i] is the wait before attempt
// i+2 (no delay before the first attempt). Total attempts = len(Delays) + 1.
//
// All failures are retried uniformly: the engine does not try to distinguish
// a permanently broken subscriber (404) from a temporarily overloaded one
// (503). The cost is two wasted attempts on a dead URL; the benefit is that a
// subscriber returning the wrong status during an incident still gets the
// event.
type Schedule struct {
	Delays []time.Duration
}

// Default returns the production schedule: 3 total attempts with 5s and 30s
// waits before the second and third.
func Default() Schedule {
	return Schedule{
		Delays: []time.Duration{5 * time.Second, 30 * time.Second},
	}
}

// MaxAttempts is the total number of attempts, including the first.
func (s Schedule) MaxAttempts() int {
	return len(s.Delays) + 1
}

// DelayBefore returns the wait preceding the given 1-based attempt number,
// and whether such an attempt exists. Attempt 1 has no delay.
func (s Schedule) DelayBefore(attempt int) (time.Duration, bool) {
	if attempt <= 1 {
		return 0, attempt == 1
	}
	idx := attempt - 2
	if idx >= len(s.Delays) {
		return 0, false
	}
	return s.Delays[idx], true
}
