package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"task-calendar/internal/cron"
	"task-calendar/internal/model"
	"task-calendar/internal/service"
)

const displayLayout = "Mon 2006-01-02 15:04"

func escape(s string) string {
	return html.EscapeString(s)
}

func shortTitle(title string, maxLen int) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxLen-1]) + "…"
}

func formatReport(r service.RunReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛠 <b>Generated %s … %s</b>\n", r.Start.Format(model.DateLayout), r.End.Format(model.DateLayout)))
	sb.WriteString(fmt.Sprintf("Templates: %d, ok: %d, failed: %d\n", r.Templates, r.Succeeded, r.Failed))
	sb.WriteString(fmt.Sprintf("Tasks created: %d", r.Created))
	for _, f := range r.Failures {
		text, _ := describeError(f.Err)
		sb.WriteString(fmt.Sprintf("\n⚠️ #%d %s: %s", f.TemplateID, escape(f.Title), text))
	}
	return sb.String()
}

func formatPreview(spec string, times []time.Time) string {
	if len(times) == 0 {
		return fmt.Sprintf("⚠️ <code>%s</code> never fires.", escape(spec))
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔮 <code>%s</code>\n", escape(spec)))
	for _, t := range times {
		sb.WriteString("• " + t.Format(displayLayout) + "\n")
	}
	return strings.TrimSpace(sb.String())
}

func formatTemplates(templates []model.TaskTemplate) string {
	if len(templates) == 0 {
		return "No templates yet. Add one with /addtemplate."
	}
	var sb strings.Builder
	sb.WriteString("♻️ <b>Templates</b>\n")
	for _, tmpl := range templates {
		sb.WriteString(formatTemplate(tmpl))
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func formatTemplate(tmpl model.TaskTemplate) string {
	state := "▶️"
	if !tmpl.IsActive {
		state = "⏸"
	}
	line := fmt.Sprintf("%s <b>#%d</b> %s <code>%s</code>", state, tmpl.ID, escape(tmpl.Title), escape(tmpl.CronSchedule))
	if tmpl.StartDate != nil || tmpl.EndDate != nil {
		line += fmt.Sprintf(" (%s … %s)", dateOrDash(tmpl.StartDate), dateOrDash(tmpl.EndDate))
	}
	return line
}

func dateOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(model.DateLayout)
}

func formatPresets(presets map[string]string) string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("📚 <b>Presets</b>\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("• %s <code>%s</code>\n", name, presets[name]))
	}
	return strings.TrimSpace(sb.String())
}

func formatWeek(week service.WeekView, today time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🗓 <b>Week %s … %s</b>\n", week.Start.Format(model.DateLayout), week.End.Format(model.DateLayout)))
	for _, day := range week.Days {
		marker := ""
		if day.Date.Equal(today) {
			marker = " 👈"
		}
		sb.WriteString(fmt.Sprintf("\n<b>%s</b>%s\n", day.Date.Format("Mon 02 Jan"), marker))
		if len(day.Tasks) == 0 {
			sb.WriteString("   —\n")
			continue
		}
		for _, task := range day.Tasks {
			sb.WriteString(service.FormatTask(task))
		}
	}
	return strings.TrimSpace(sb.String())
}

// formatMonth lists only days that have tasks.
func formatMonth(view service.MonthView) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📆 <b>%s %d</b>\n", view.Month, view.Year))
	empty := true
	for _, day := range view.Days {
		if len(day.Tasks) == 0 {
			continue
		}
		empty = false
		done := 0
		for _, task := range day.Tasks {
			if task.IsCompleted {
				done++
			}
		}
		sb.WriteString(fmt.Sprintf("%s: %d tasks, %d done\n", day.Date.Format("Mon 02"), len(day.Tasks), done))
	}
	if empty {
		sb.WriteString("No tasks this month.")
	}
	return strings.TrimSpace(sb.String())
}

// describeError turns err into a chat message. internal is true for
// failures the user cannot fix.
func describeError(err error) (text string, internal bool) {
	var perr *cron.ParseError
	var verr *service.ValidationError
	switch {
	case errors.As(err, &perr):
		return fmt.Sprintf("❌ Invalid schedule, %s: %s", perr.Field, escape(perr.Reason)), false
	case errors.As(err, &verr):
		return fmt.Sprintf("❌ Invalid %s: %s", verr.Field, escape(verr.Reason)), false
	case errors.Is(err, service.ErrTemplateNotFound):
		return "🤷 Template not found.", false
	case errors.Is(err, service.ErrTaskNotFound):
		return "🤷 Task not found.", false
	case errors.Is(err, service.ErrStoreUnavailable):
		return "💥 Storage is unavailable, try again later.", true
	default:
		return "💥 Something went wrong.", true
	}
}
