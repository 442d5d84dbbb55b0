package model

import "time"

// Priority orders tasks inside a day; lower is more urgent.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Task is a single calendar entry, either standalone (TemplateID nil) or
// materialized from a template. At most one task exists per
// (TemplateID, DueDate).
type Task struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"size:200;not null"`
	Description string
	DueDate     time.Time `gorm:"not null;index;uniqueIndex:idx_task_template_due,priority:2"`
	DueTime     *string   `gorm:"size:5"` // HH:MM
	IsCompleted bool      `gorm:"index"`
	CompletedAt *time.Time
	Priority    Priority `gorm:"not null"`
	TemplateID  *uint    `gorm:"uniqueIndex:idx_task_template_due,priority:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SetCompleted flips completion state and keeps CompletedAt in sync.
func (t *Task) SetCompleted(done bool, at time.Time) {
	t.IsCompleted = done
	if done {
		t.CompletedAt = &at
		return
	}
	t.CompletedAt = nil
}
