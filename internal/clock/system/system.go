// Package system provides the real catalog.Clock implementation.
package system

import "time"

// Clock reads wall-clock time in UTC. Timestamps persisted by the stores
// all flow through here so tests can substitute a fixed clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
