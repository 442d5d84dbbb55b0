package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-calendar/internal/model"
	"task-calendar/internal/service"
)

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /today — today's agenda\n" +
	"• /week [YYYY-MM-DD] — week view\n" +
	"• /month [YYYY-MM] — month view\n" +
	"• /addtask YYYY-MM-DD [HH:MM] | title [| high|medium|low]\n" +
	"• /done &lt;id&gt; — toggle a task\n" +
	"• /deletetask &lt;id&gt; — delete a task\n" +
	"• /templates — list recurring templates\n" +
	"• /addtemplate &lt;cron|preset&gt; | title [| start] [| end]\n" +
	"• /toggletemplate &lt;id&gt; — pause or resume a template\n" +
	"• /deletetemplate &lt;id&gt; — delete a template, keep its tasks\n" +
	"• /presets — named schedules\n" +
	"• /validate &lt;cron&gt; — check a schedule\n" +
	"• /preview &lt;cron&gt; [count] — next occurrences\n" +
	"• /generate [from] [to] — materialize tasks for a date range\n" +
	"• /regenerate &lt;id&gt; — rebuild a template's upcoming tasks\n" +
	"• /subscribe, /unsubscribe — daily agenda messages"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.Chat.ID, msg.From); err != nil {
		return err
	}
	name := msg.From.FirstName
	if name == "" {
		name = "there"
	}
	return b.sendText(ctx, msg.Chat.ID, fmt.Sprintf("👋 Hi, %s!\n<b>I keep your recurring tasks on the calendar.</b>\n\n%s", escape(name), helpText))
}

func (b *Bot) handleSubscribe(ctx context.Context, msg *tgbotapi.Message, subscribe bool) error {
	user, err := b.ensureUser(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return err
	}
	if err := b.svc.Users.SetSubscribed(ctx, user.ID, subscribe); err != nil {
		return err
	}
	if subscribe {
		return b.sendText(ctx, msg.Chat.ID, "🔔 You will get the agenda every morning.")
	}
	return b.sendText(ctx, msg.Chat.ID, "🔕 Daily agenda turned off.")
}

func (b *Bot) handleToday(ctx context.Context, chatID int64) error {
	now := b.today()
	text, err := b.svc.Reminders.DailySummary(ctx, now)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	day := model.Date(now)
	tasks, err := b.svc.Tasks.ListRange(ctx, day, day)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		if task.IsCompleted {
			continue
		}
		label := fmt.Sprintf("✅ #%d %s", task.ID, shortTitle(task.Title, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)),
		))
	}
	if len(rows) == 0 {
		return b.sendText(ctx, chatID, text)
	}
	return b.sendWithReplyMarkup(ctx, chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleGenerate(ctx context.Context, chatID, userID int64, args string) error {
	from, to, err := parseRange(args, b.today(), b.lookahead)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /generate [YYYY-MM-DD] [YYYY-MM-DD]")
	}
	if !b.begin(userID) {
		return b.sendText(ctx, chatID, "⏳ A generation is already running for you.")
	}
	defer b.end(userID)

	report, err := b.svc.Scheduler.ReconcileRange(ctx, model.StartOfDay(from, b.loc), model.EndOfDay(to, b.loc))
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, formatReport(report))
}

func (b *Bot) handleRegenerate(ctx context.Context, chatID int64, args string) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /regenerate &lt;template id&gt;")
	}
	created, err := b.svc.Materializer.RegenerateForTemplate(ctx, id)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("♻️ Template #%d rebuilt: %d upcoming tasks created.", id, created))
}

func (b *Bot) handleValidate(ctx context.Context, chatID int64, args string) error {
	if args == "" {
		return b.sendText(ctx, chatID, "Usage: /validate 0 9 * * 1-5")
	}
	spec := resolvePreset(args, b.svc.Templates.Presets())
	if err := service.ValidateCron(spec); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	next := b.svc.Engine.Preview(spec, b.today(), 1)
	if len(next) == 0 {
		return b.sendText(ctx, chatID, fmt.Sprintf("⚠️ <code>%s</code> is valid but never fires.", escape(spec)))
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("✅ <code>%s</code> is valid. Next: %s", escape(spec), next[0].Format(displayLayout)))
}

func (b *Bot) handlePreview(ctx context.Context, chatID int64, args string) error {
	spec, count, err := parsePreviewArgs(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /preview 0 9 * * 1-5 [count]")
	}
	spec = resolvePreset(spec, b.svc.Templates.Presets())
	if err := service.ValidateCron(spec); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, formatPreview(spec, b.svc.Engine.Preview(spec, b.today(), count)))
}

func (b *Bot) handleTemplates(ctx context.Context, chatID int64) error {
	templates, err := b.svc.Templates.List(ctx)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, formatTemplates(templates))
}

func (b *Bot) handleAddTemplate(ctx context.Context, chatID int64, args string) error {
	input, err := parseTemplateArgs(args, b.svc.Templates.Presets())
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /addtemplate 0 9 * * 1-5 | Standup [| 2024-07-01] [| 2024-07-31]\n"+escape(err.Error()))
	}
	tmpl, err := b.svc.Templates.Create(ctx, input)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}

	now := b.today()
	created, err := b.svc.Materializer.Reconcile(ctx, *tmpl, now, now.Add(b.lookahead))
	if err != nil {
		b.log.Warn().Err(err).Uint("template_id", tmpl.ID).Msg("initial materialization failed")
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("➕ Template created:\n%s\n%d tasks scheduled.", formatTemplate(*tmpl), created))
}

// handleToggleTemplate flips the template. A resumed template gets its
// lookahead filled in; existing tasks are left alone either way.
func (b *Bot) handleToggleTemplate(ctx context.Context, chatID int64, args string) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /toggletemplate &lt;id&gt;")
	}
	tmpl, err := b.svc.Templates.Toggle(ctx, id)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	if !tmpl.IsActive {
		return b.sendText(ctx, chatID, fmt.Sprintf("Template #%d ⏸ paused.", id))
	}

	now := b.today()
	created, err := b.svc.Materializer.Reconcile(ctx, *tmpl, now, now.Add(b.lookahead))
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("Template #%d ▶️ resumed, %d tasks scheduled.", id, created))
}

func (b *Bot) askDeleteTemplate(ctx context.Context, chatID int64, args string) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /deletetemplate &lt;id&gt;")
	}
	tmpl, err := b.svc.Templates.Get(ctx, id)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", fmt.Sprintf("%s%d", cbDeleteTemplatePrefix, id)),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", fmt.Sprintf("%s%d", cbCancelPrefix, id)),
	))
	text := fmt.Sprintf("Delete template <b>%s</b>? Tasks already on the calendar stay.", escape(tmpl.Title))
	return b.sendWithReplyMarkup(ctx, chatID, text, markup)
}

func (b *Bot) deleteTemplate(ctx context.Context, chatID int64, id uint) error {
	if err := b.svc.Templates.Delete(ctx, id); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("🗑 Template #%d deleted.", id))
}

func (b *Bot) handleWeek(ctx context.Context, chatID int64, args string) error {
	date := model.Date(b.today())
	if args != "" {
		parsed, err := model.ParseDate(args)
		if err != nil {
			return b.sendText(ctx, chatID, "Usage: /week [YYYY-MM-DD]")
		}
		date = parsed
	}
	week, err := b.svc.Calendar.Week(ctx, date)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, formatWeek(week, model.Date(b.today())))
}

func (b *Bot) handleMonth(ctx context.Context, chatID int64, args string) error {
	year, month, err := parseMonth(args, b.today())
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /month [YYYY-MM]")
	}
	view, err := b.svc.Calendar.Month(ctx, year, month)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, formatMonth(view))
}

func (b *Bot) handleAddTask(ctx context.Context, chatID int64, args string) error {
	input, err := parseTaskArgs(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /addtask 2024-06-03 09:30 | Dentist | high\n"+escape(err.Error()))
	}
	task, err := b.svc.Tasks.CreateTask(ctx, input)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("➕ Added for %s:\n%s", task.DueDate.Format(model.DateLayout), service.FormatTask(*task)))
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, args string) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /done &lt;id&gt;")
	}
	task, err := b.svc.Tasks.ToggleTask(ctx, id)
	if err != nil {
		return b.replyError(ctx, chatID, err)
	}
	if task.IsCompleted {
		return b.sendText(ctx, chatID, fmt.Sprintf("✅ Done: %s", escape(task.Title)))
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("↩️ Reopened: %s", escape(task.Title)))
}

func (b *Bot) handleDeleteTask(ctx context.Context, chatID int64, args string) error {
	id, err := parseID(args)
	if err != nil {
		return b.sendText(ctx, chatID, "Usage: /deletetask &lt;id&gt;")
	}
	if err := b.svc.Tasks.DeleteTask(ctx, id); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	return b.sendText(ctx, chatID, fmt.Sprintf("🗑 Task #%d deleted.", id))
}

// replyError reports user-facing failures in chat and logs the rest.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) error {
	text, internal := describeError(err)
	if internal {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("command failed")
	}
	return b.sendText(ctx, chatID, text)
}
