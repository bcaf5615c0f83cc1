// Package system provides the wall clock used to stamp records.
package system

import "time"

// Clock implements wayback.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to the millisecond, the
// resolution of a BSON datetime, so stored and in-memory timestamps agree.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
