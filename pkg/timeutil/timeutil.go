// Package timeutil resolves calendar days in the planner's configured zone.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// Clock returns the current instant. Tests pin it with Fixed.
type Clock func() time.Time

// SystemClock reads the wall clock.
func SystemClock() time.Time { return time.Now() }

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// Calendar turns instants into local calendar days.
type Calendar struct {
	loc   *time.Location
	clock Clock
}

// NewCalendar creates a Calendar for the named IANA zone. An empty name
// means UTC.
func NewCalendar(zone string, clock Clock) (*Calendar, error) {
	loc := time.UTC
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", zone, err)
		}
		loc = l
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Calendar{loc: loc, clock: clock}, nil
}

// MustCalendar is NewCalendar that panics on a bad zone.
func MustCalendar(zone string, clock Clock) *Calendar {
	c, err := NewCalendar(zone, clock)
	if err != nil {
		panic(err)
	}
	return c
}

// Now returns the current instant in the configured zone.
func (c *Calendar) Now() time.Time {
	return c.clock().In(c.loc)
}

// Today returns the local calendar day as year, month, day.
func (c *Calendar) Today() (int, time.Month, int) {
	return c.Now().Date()
}
