// Package clock abstracts time for deterministic tests. Delivery backoff
// waits on After, so tests can run the full retry schedule instantly.
package clock

import "time"

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// MockClock is a fixed clock whose After fires immediately.
type MockClock struct {
	NowTime time.Time

	// AfterDelays records every duration passed to After, so tests can
	// assert the backoff schedule without waiting it out.
	AfterDelays []time.Duration
}

func (m *MockClock) Now() time.Time {
	return m.NowTime
}

func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.AfterDelays = append(m.AfterDelays, d)
	m.NowTime = m.NowTime.Add(d)
	ch := make(chan time.Time, 1)
	ch <- m.NowTime
	return ch
}

func (m *MockClock) Advance(d time.Duration) {
	m.NowTime = m.NowTime.Add(d)
}
