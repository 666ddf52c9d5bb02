package store

import "time"

// TimeProvider is an interface for getting the current time.
// This allows injecting a fixed clock for deterministic testing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using the actual system time.
type RealTimeProvider struct{}

// Now returns the current system time in UTC.
func (RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// getTimeProvider returns the provided TimeProvider if non-nil,
// otherwise returns the real clock.
func getTimeProvider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return RealTimeProvider{}
}
