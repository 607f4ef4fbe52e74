// Package clock abstracts the timers used by the debounce pipeline so tests
// can drive time deterministically.
//
// Production code uses Real(). Tests use Fake() and call Advance to fire
// pending timers synchronously in deadline order.
package clock

import "time"

// Clock is the subset of the time package the client core depends on.
type Clock interface {
	Now() time.Time
	// AfterFunc waits for d, then calls f on its own goroutine (real) or
	// synchronously inside Advance (fake).
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc call.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
