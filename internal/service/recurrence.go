package service

import (
	"time"

	"task-calendar/internal/cron"
	"task-calendar/internal/model"
)

// RecurrenceEngine expands template schedules into occurrence instants.
// It keeps no state between calls.
type RecurrenceEngine struct {
	loc *time.Location
}

// NewRecurrenceEngine evaluates schedules and validity dates in loc.
func NewRecurrenceEngine(loc *time.Location) *RecurrenceEngine {
	if loc == nil {
		loc = time.Local
	}
	return &RecurrenceEngine{loc: loc}
}

func (e *RecurrenceEngine) Location() *time.Location { return e.loc }

// Window clips [rangeStart, rangeEnd] to the template's validity dates:
// StartDate counts from midnight, EndDate through the end of that day.
func (e *RecurrenceEngine) Window(tmpl model.TaskTemplate, rangeStart, rangeEnd time.Time) (time.Time, time.Time) {
	start, end := rangeStart.In(e.loc), rangeEnd.In(e.loc)
	if tmpl.StartDate != nil {
		if bound := model.StartOfDay(*tmpl.StartDate, e.loc); bound.After(start) {
			start = bound
		}
	}
	if tmpl.EndDate != nil {
		if bound := model.EndOfDay(*tmpl.EndDate, e.loc); bound.Before(end) {
			end = bound
		}
	}
	return start, end
}

// OccurrencesInRange returns the template's occurrences inside the clipped
// window, strictly increasing. An unparseable schedule yields the parse
// error. isActive is not consulted.
func (e *RecurrenceEngine) OccurrencesInRange(tmpl model.TaskTemplate, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	expr, err := cron.Parse(tmpl.CronSchedule)
	if err != nil {
		return nil, err
	}
	start, end := e.Window(tmpl, rangeStart, rangeEnd)
	return occurrences(expr, start, end), nil
}

// Preview returns up to count occurrences of text after from, or nil when
// text does not parse.
func (e *RecurrenceEngine) Preview(text string, from time.Time, count int) []time.Time {
	expr, err := cron.Parse(text)
	if err != nil || count <= 0 {
		return nil
	}
	out := make([]time.Time, 0, count)
	cur := from.In(e.loc)
	for len(out) < count {
		next, err := expr.Next(cur)
		if err != nil {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

// occurrences walks expr over the closed window [start, end].
func occurrences(expr cron.Expression, start, end time.Time) []time.Time {
	if start.After(end) {
		return nil
	}
	var out []time.Time
	// Step back so a match exactly at start is included.
	cur := start.Add(-time.Nanosecond)
	for {
		next, err := expr.Next(cur)
		if err != nil || next.After(end) {
			return out
		}
		out = append(out, next)
		cur = next
	}
}
