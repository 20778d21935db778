// Package clock provides an injectable time source so engine and service
// loop tests can control the passage of time deterministically.
package clock

import "time"

// Clock abstracts time.Now and time.Sleep for testability.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }
