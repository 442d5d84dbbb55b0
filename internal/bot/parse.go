package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"task-calendar/internal/model"
	"task-calendar/internal/service"
)

const maxPreview = 20

func parseID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(value), nil
}

// parseRange reads "[from] [to]". No dates means today plus lookahead; one
// date means that single day.
func parseRange(args string, today time.Time, lookahead time.Duration) (time.Time, time.Time, error) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		from := model.Date(today)
		return from, model.Date(today.Add(lookahead)), nil
	case 1, 2:
		from, err := model.ParseDate(fields[0])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to := from
		if len(fields) == 2 {
			if to, err = model.ParseDate(fields[1]); err != nil {
				return time.Time{}, time.Time{}, err
			}
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, errors.New("range ends before it starts")
		}
		return from, to, nil
	default:
		return time.Time{}, time.Time{}, errors.New("too many arguments")
	}
}

func parseMonth(args string, today time.Time) (int, time.Month, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return today.Year(), today.Month(), nil
	}
	t, err := time.Parse("2006-01", args)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), t.Month(), nil
}

// parsePreviewArgs splits "<5 cron fields> [count]" or "<preset> [count]".
func parsePreviewArgs(args string) (string, int, error) {
	fields := strings.Fields(args)
	count := 5
	if n := len(fields); n == 2 || n == 6 {
		c, err := strconv.Atoi(fields[n-1])
		if err != nil || c <= 0 {
			return "", 0, fmt.Errorf("invalid count %q", fields[n-1])
		}
		count = min(c, maxPreview)
		fields = fields[:n-1]
	}
	if len(fields) == 0 {
		return "", 0, errors.New("schedule is required")
	}
	return strings.Join(fields, " "), count, nil
}

func resolvePreset(spec string, presets map[string]string) string {
	spec = strings.TrimSpace(spec)
	if preset, ok := presets[strings.ToLower(spec)]; ok {
		return preset
	}
	return spec
}

// parseTemplateArgs reads "schedule | title [| start] [| end]".
func parseTemplateArgs(args string, presets map[string]string) (service.TemplateInput, error) {
	parts := splitPipes(args)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return service.TemplateInput{}, errors.New("schedule and title are required")
	}
	if len(parts) > 4 {
		return service.TemplateInput{}, errors.New("too many arguments")
	}

	input := service.TemplateInput{
		CronSchedule: resolvePreset(parts[0], presets),
		Title:        parts[1],
	}
	var err error
	if len(parts) > 2 {
		if input.StartDate, err = optionalDate(parts[2]); err != nil {
			return service.TemplateInput{}, fmt.Errorf("start date: %w", err)
		}
	}
	if len(parts) > 3 {
		if input.EndDate, err = optionalDate(parts[3]); err != nil {
			return service.TemplateInput{}, fmt.Errorf("end date: %w", err)
		}
	}
	return input, nil
}

// parseTaskArgs reads "YYYY-MM-DD [HH:MM] | title [| priority]".
func parseTaskArgs(args string) (service.TaskInput, error) {
	parts := splitPipes(args)
	if len(parts) < 2 || len(parts) > 3 {
		return service.TaskInput{}, errors.New("date and title are required")
	}

	when := strings.Fields(parts[0])
	if len(when) == 0 || len(when) > 2 {
		return service.TaskInput{}, errors.New("expected date and optional time")
	}
	due, err := model.ParseDate(when[0])
	if err != nil {
		return service.TaskInput{}, fmt.Errorf("due date: %w", err)
	}
	input := service.TaskInput{DueDate: due, Title: parts[1]}
	if len(when) == 2 {
		input.DueTime = when[1]
	}
	if len(parts) == 3 {
		if input.Priority, err = parsePriority(parts[2]); err != nil {
			return service.TaskInput{}, err
		}
	}
	return input, nil
}

func parsePriority(raw string) (model.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "medium", "2":
		return model.PriorityMedium, nil
	case "high", "1":
		return model.PriorityHigh, nil
	case "low", "3":
		return model.PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", raw)
	}
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" || raw == "-" {
		return nil, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func splitPipes(args string) []string {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
