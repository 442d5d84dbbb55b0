package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"task-calendar/internal/model"
)

// ReminderService builds human-readable agendas for daily notifications.
type ReminderService struct {
	tasks *TaskService
}

func NewReminderService(tasks *TaskService) *ReminderService {
	return &ReminderService{tasks: tasks}
}

// DailySummary renders the tasks due on now's calendar day as Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, now time.Time) (string, error) {
	today := model.Date(now)
	tasks, err := s.tasks.ListRange(ctx, today, today)
	if err != nil {
		return "", err
	}

	var open, done []model.Task
	for _, task := range tasks {
		if task.IsCompleted {
			done = append(done, task)
			continue
		}
		open = append(open, task)
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Agenda</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Monday, 2006-01-02")))

	if len(open) == 0 {
		builder.WriteString("— nothing left for today\n")
	}
	for _, task := range open {
		builder.WriteString(FormatTask(task))
	}
	if len(done) > 0 {
		builder.WriteString(fmt.Sprintf("\n✅ %d done today\n", len(done)))
	}

	return strings.TrimSpace(builder.String()), nil
}

// FormatTask renders one task line as Telegram HTML.
func FormatTask(task model.Task) string {
	var sb strings.Builder

	icon := priorityIcon(task.Priority)
	if task.IsCompleted {
		icon = "✅"
	}
	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> ", icon, task.ID))
	if task.DueTime != nil {
		sb.WriteString(fmt.Sprintf("%s ", *task.DueTime))
	}
	sb.WriteString(html.EscapeString(strings.TrimSpace(task.Title)))
	if task.TemplateID != nil {
		sb.WriteString(" ♻️")
	}
	if desc := strings.TrimSpace(task.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(desc)))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func priorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityLow:
		return "🟢"
	default:
		return "🟡"
	}
}
