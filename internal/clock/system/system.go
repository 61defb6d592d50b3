// Package system provides the wall-clock implementation of
// archive.Clock.
package system

import "time"

// Clock reads the real time. All archiver timestamps (state latest
// dates, continuous-mode pass timing) are UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
