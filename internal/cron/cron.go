// Package cron parses 5-field cron expressions and walks their occurrences.
//
//	minute (0-59) hour (0-23) day-of-month (1-31, L) month (1-12) day-of-week (0-6, 0=Sunday)
//
// Each field accepts *, single values, ranges (a-b), lists (a,b,c) and steps
// (*/n, a-b/n, a/n). L in the day-of-month field matches the last day of the
// evaluated month. When both day fields are restricted a day matches if
// either of them does.
//
// Evaluation happens in the location of the instant passed in.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Horizon bounds how far Next searches before giving up.
const Horizon = 5 * 365 * 24 * time.Hour

// ErrNoOccurrence is returned by Next when nothing matches within Horizon.
var ErrNoOccurrence = errors.New("cron: no occurrence found")

const (
	FieldExpression = "expression"
	FieldMinute     = "minute"
	FieldHour       = "hour"
	FieldDayOfMonth = "day-of-month"
	FieldMonth      = "month"
	FieldDayOfWeek  = "day-of-week"
)

// ParseError reports the field that failed to parse and why.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cron: %s: %s", e.Field, e.Reason)
}

// Expression is a parsed schedule. The zero value matches nothing.
type Expression struct {
	source      string
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64
	lastDay     bool
	domStar     bool
	dowStar     bool
}

type bitset64 uint64

func (b bitset64) has(v int) bool { return b&(1<<uint(v)) != 0 }
func (b *bitset64) set(v int)     { *b |= 1 << uint(v) }

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{FieldMinute, 0, 59},
	{FieldHour, 0, 23},
	{FieldDayOfMonth, 1, 31},
	{FieldMonth, 1, 12},
	{FieldDayOfWeek, 0, 6},
}

// Parse parses text. Failures are returned as *ParseError.
func Parse(text string) (Expression, error) {
	fields := strings.Fields(text)
	if len(fields) != len(fieldSpecs) {
		return Expression{}, &ParseError{
			Field:  FieldExpression,
			Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields)),
		}
	}

	var sets [5]bitset64
	var lastDay bool
	for i, spec := range fieldSpecs {
		set, last, err := parseField(fields[i], spec)
		if err != nil {
			return Expression{}, &ParseError{Field: spec.name, Reason: err.Error()}
		}
		sets[i] = set
		lastDay = lastDay || last
	}

	return Expression{
		source:      strings.Join(fields, " "),
		minutes:     sets[0],
		hours:       sets[1],
		daysOfMonth: sets[2],
		months:      sets[3],
		daysOfWeek:  sets[4],
		lastDay:     lastDay,
		domStar:     fields[2] == "*",
		dowStar:     fields[4] == "*",
	}, nil
}

// String returns the normalized expression text.
func (e Expression) String() string { return e.source }

// Matches reports whether the minute containing t is a scheduled minute.
func (e Expression) Matches(t time.Time) bool {
	return e.months.has(int(t.Month())) &&
		e.dayMatches(t) &&
		e.hours.has(t.Hour()) &&
		e.minutes.has(t.Minute())
}

// Next returns the earliest scheduled minute strictly after t. It returns
// ErrNoOccurrence if nothing matches within Horizon.
func (e Expression) Next(t time.Time) (time.Time, error) {
	loc := t.Location()
	cur := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)
	limit := t.Add(Horizon)

	for cur.Before(limit) {
		if !e.months.has(int(cur.Month())) {
			cur = time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !e.dayMatches(cur) {
			cur = time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !e.hours.has(cur.Hour()) {
			next := time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, loc)
			if !next.After(cur) {
				// Repeated wall-clock hour at a DST fall-back.
				next = cur.Truncate(time.Hour).Add(time.Hour)
			}
			cur = next
			continue
		}
		if !e.minutes.has(cur.Minute()) {
			cur = cur.Add(time.Minute)
			continue
		}
		if !cur.After(t) {
			cur = cur.Add(time.Minute)
			continue
		}
		return cur, nil
	}
	return time.Time{}, ErrNoOccurrence
}

func (e Expression) dayMatches(t time.Time) bool {
	day := t.Day()
	domMatch := e.daysOfMonth.has(day) || (e.lastDay && day == daysIn(t.Year(), t.Month()))
	dowMatch := e.daysOfWeek.has(int(t.Weekday()))
	if e.domStar || e.dowStar {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseField(field string, spec fieldSpec) (bitset64, bool, error) {
	var set bitset64
	var last bool
	for _, term := range strings.Split(field, ",") {
		if term == "L" {
			if spec.name != FieldDayOfMonth {
				return 0, false, fmt.Errorf("L is only allowed in %s", FieldDayOfMonth)
			}
			last = true
			continue
		}
		bits, err := parseTerm(term, spec)
		if err != nil {
			return 0, false, err
		}
		set |= bits
	}
	if set == 0 && !last {
		return 0, false, fmt.Errorf("field %q produces empty set", field)
	}
	return set, last, nil
}

// parseTerm handles *, */n, v, v/n, a-b, a-b/n.
func parseTerm(term string, spec fieldSpec) (bitset64, error) {
	if term == "" {
		return 0, fmt.Errorf("empty term")
	}

	base, stepText, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q", stepText)
		}
		if n <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", n)
		}
		step = n
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = spec.min, spec.max
	case strings.Contains(base, "-"):
		startText, endText, _ := strings.Cut(base, "-")
		var err error
		if lo, err = strconv.Atoi(startText); err != nil {
			return 0, fmt.Errorf("invalid range start %q", startText)
		}
		if hi, err = strconv.Atoi(endText); err != nil {
			return 0, fmt.Errorf("invalid range end %q", endText)
		}
		if lo > hi {
			return 0, fmt.Errorf("range start %d > end %d", lo, hi)
		}
	default:
		v, err := strconv.Atoi(base)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", base)
		}
		lo, hi = v, v
		if hasStep {
			hi = spec.max
		}
	}

	if lo < spec.min || lo > spec.max || hi > spec.max {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", spec.min, spec.max, lo, hi)
	}

	var bits bitset64
	for v := lo; v <= hi; v += step {
		bits.set(v)
	}
	return bits, nil
}
