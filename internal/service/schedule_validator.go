package service

import (
	"strings"

	"task-calendar/internal/cron"
)

// ValidateCron checks that text is a well-formed 5-field schedule. The
// returned error is a *cron.ParseError naming the failing field. A schedule
// that can never fire is still valid.
func ValidateCron(text string) error {
	if _, err := cron.Parse(text); err != nil {
		return err
	}
	return nil
}

const maxTitleLength = 200

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return &ValidationError{Field: "title", Reason: "is required"}
	case len(title) > maxTitleLength:
		return &ValidationError{Field: "title", Reason: "must be at most 200 characters"}
	}
	return nil
}
