package model

import "time"

// TimeLayout is the storage format of Task.DueTime.
const TimeLayout = "15:04"

// DateLayout is the calendar date format used for input and output.
const DateLayout = "2006-01-02"

// Date normalizes t to the calendar day it falls on in its own location,
// stored as UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns midnight of the calendar day date in loc.
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last instant of the calendar day date in loc.
func EndOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
}

// ParseDate parses a YYYY-MM-DD string into a stored calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t), nil
}
