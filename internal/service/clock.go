package service

import "time"

// Clock yields the current time and the clinic's calendar day.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{loc: loc, now: time.Now}
}

// FixedClock always reports t; for tests.
func FixedClock(t time.Time) Clock {
	return Clock{loc: t.Location(), now: func() time.Time { return t }}
}

// ClockFunc reads the time from now; for tests that advance time.
func ClockFunc(loc *time.Location, now func() time.Time) Clock {
	return Clock{loc: loc, now: now}
}

func (c Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today is midnight of the current clinic day.
func (c Clock) Today() time.Time {
	n := c.Now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, c.loc)
}

// DayKey formats t as the queue day it belongs to.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
