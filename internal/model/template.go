package model

import "time"

// TaskTemplate describes a recurring task. Instances are materialized from
// CronSchedule inside the optional [StartDate, EndDate] validity window.
type TaskTemplate struct {
	ID           uint   `gorm:"primaryKey"`
	Title        string `gorm:"size:200;not null"`
	Description  string
	CronSchedule string `gorm:"size:100;not null"`
	StartDate    *time.Time
	EndDate      *time.Time
	IsActive     bool `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Presets are ready-made schedules offered when creating a template.
var Presets = map[string]string{
	"daily":         "0 9 * * *",
	"weekdays":      "0 9 * * 1-5",
	"weekly_monday": "0 9 * * 1",
	"weekly_friday": "0 9 * * 5",
	"mon_wed_fri":   "0 9 * * 1/2",
	"monthly_first": "0 9 1 * *",
	"monthly_last":  "0 9 L * *",
	"quarterly":     "0 9 1 */3 *",
}
