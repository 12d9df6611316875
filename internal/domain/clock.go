package domain

import "time"

// Clock supplies the current time for expiry checks and order timestamps.
// Injected so tests control it; treated as monotonic and trustworthy.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall-clock Clock used outside tests.
var SystemClock Clock = ClockFunc(time.Now)
