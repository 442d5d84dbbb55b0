package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-calendar/internal/model"
	"task-calendar/internal/repository"
	"task-calendar/internal/service"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

var testNow = time.Date(2024, 6, 5, 7, 0, 0, 0, time.UTC)

func setupBot(t *testing.T) (*Bot, *fakeAPI, Services) {
	t.Helper()
	db, err := repository.NewDB(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	now := func() time.Time { return testNow }
	templateRepo := repository.NewTemplateRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	engine := service.NewRecurrenceEngine(time.UTC)
	materializer := service.NewMaterializationService(templateRepo, taskRepo, engine, service.MaterializationOptions{Now: now, Logger: zerolog.Nop()})
	tasks := service.NewTaskService(taskRepo, now)

	svc := Services{
		Users:        repository.NewUserRepository(db),
		Templates:    service.NewTemplateService(templateRepo, zerolog.Nop()),
		Tasks:        tasks,
		Calendar:     service.NewCalendarService(tasks),
		Reminders:    service.NewReminderService(tasks),
		Engine:       engine,
		Materializer: materializer,
		Scheduler: service.NewRegenerationScheduler(templateRepo, materializer, service.SchedulerOptions{
			Location: time.UTC, Now: now, Logger: zerolog.Nop(),
		}),
	}
	api := &fakeAPI{}
	b := newBot(api, svc, Options{Now: now, RatePerSec: 1000, Logger: zerolog.Nop()})
	return b, api, svc
}

func command(text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: 42, FirstName: "Ada"},
		Chat:     &tgbotapi.Chat{ID: 4242, Type: "private"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestValidateCommand(t *testing.T) {
	b, api, _ := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/validate 9 * *")))
	assert.Contains(t, api.last(t).Text, "Invalid schedule, expression")

	require.NoError(t, b.handleMessage(ctx, command("/validate 0 9 * * 1-5")))
	assert.Contains(t, api.last(t).Text, "is valid. Next: Wed 2024-06-05 09:00")

	require.NoError(t, b.handleMessage(ctx, command("/validate 0 0 31 2 *")))
	assert.Contains(t, api.last(t).Text, "never fires")
}

func TestPreviewCommand(t *testing.T) {
	b, api, _ := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/preview monthly_last 2")))
	text := api.last(t).Text
	assert.Contains(t, text, "Sun 2024-06-30 09:00")
	assert.Contains(t, text, "Wed 2024-07-31 09:00")
	assert.NotContains(t, text, "2024-08-31")
}

func TestTemplateLifecycleCommands(t *testing.T) {
	b, api, svc := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/addtemplate weekdays | Standup")))
	assert.Contains(t, api.last(t).Text, "Standup")
	// 2024-06-05 07:00 plus seven days covers Wed through Tue, five weekdays.
	assert.Contains(t, api.last(t).Text, "5 tasks scheduled")

	templates, err := svc.Templates.List(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	id := templates[0].ID

	tasks, err := svc.Tasks.ListByTemplate(ctx, id)
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	edited := tasks[len(tasks)-1]
	title := "Standup with Sam"
	_, err = svc.Tasks.UpdateTask(ctx, edited.ID, service.TaskPatch{Title: service.Some(title)})
	require.NoError(t, err)

	require.NoError(t, b.handleMessage(ctx, command("/toggletemplate 1")))
	assert.Contains(t, api.last(t).Text, "paused")
	tasks, err = svc.Tasks.ListByTemplate(ctx, id)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	require.NoError(t, b.handleMessage(ctx, command("/toggletemplate 1")))
	assert.Contains(t, api.last(t).Text, "resumed, 0 tasks scheduled")

	kept, err := svc.Tasks.GetTask(ctx, edited.ID)
	require.NoError(t, err)
	assert.Equal(t, title, kept.Title)

	require.NoError(t, b.handleMessage(ctx, command("/deletetemplate 1")))
	_, ok := api.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.True(t, ok)

	require.NoError(t, b.handleCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 4242}},
		Data:    cbDeleteTemplatePrefix + "1",
	}))
	assert.Contains(t, api.last(t).Text, "deleted")

	require.NoError(t, b.handleMessage(ctx, command("/regenerate 1")))
	assert.Contains(t, api.last(t).Text, "Template not found")
}

func TestGenerateCommand(t *testing.T) {
	b, api, _ := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/addtemplate 0 9 * * * | Daily")))

	require.NoError(t, b.handleMessage(ctx, command("/generate 2024-06-01 2024-06-30")))
	text := api.last(t).Text
	assert.Contains(t, text, "Generated 2024-06-01")
	assert.Contains(t, text, "failed: 0")

	require.NoError(t, b.handleMessage(ctx, command("/generate 2024-06-30 2024-06-01")))
	assert.Contains(t, api.last(t).Text, "Usage: /generate")
}

func TestTaskCommands(t *testing.T) {
	b, api, svc := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/addtask 2024-06-05 10:30 | Call <bank> | high")))
	assert.Contains(t, api.last(t).Text, "Call &lt;bank&gt;")

	require.NoError(t, b.handleMessage(ctx, command("/today")))
	markup, ok := api.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, cbCompletePrefix+"1", *markup.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, b.handleCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 4242}},
		Data:    cbCompletePrefix + "1",
	}))
	assert.Contains(t, api.last(t).Text, "Done")

	task, err := svc.Tasks.GetTask(ctx, 1)
	require.NoError(t, err)
	assert.True(t, task.IsCompleted)

	require.NoError(t, b.handleMessage(ctx, command("/week")))
	assert.Contains(t, api.last(t).Text, "Week 2024-06-03")

	require.NoError(t, b.handleMessage(ctx, command("/deletetask 1")))
	require.NoError(t, b.handleMessage(ctx, command("/done 1")))
	assert.Contains(t, api.last(t).Text, "Task not found")
}

func TestSendDailyReportsToSubscribers(t *testing.T) {
	b, api, svc := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/subscribe")))
	other, err := svc.Users.UpsertFromTelegram(ctx, 7, 77, "Bob", "", "bob")
	require.NoError(t, err)
	require.False(t, other.Subscribed)

	_, err = svc.Tasks.CreateTask(ctx, service.TaskInput{Title: "Standup", DueDate: testNow})
	require.NoError(t, err)

	api.sent = nil
	require.NoError(t, b.SendDailyReports(ctx))
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(4242), api.sent[0].ChatID)
	assert.Contains(t, api.sent[0].Text, "Standup")
}

func TestUnknownInput(t *testing.T) {
	b, api, _ := setupBot(t)
	ctx := context.Background()

	require.NoError(t, b.handleMessage(ctx, command("/nope")))
	assert.Contains(t, api.last(t).Text, "Unknown command")

	require.NoError(t, b.handleMessage(ctx, &tgbotapi.Message{
		Text: menuLabelTemplates,
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 4242, Type: "private"},
	}))
	assert.Contains(t, api.last(t).Text, "No templates yet")
}

func TestParseTemplateArgs(t *testing.T) {
	presets := map[string]string{"weekdays": "0 9 * * 1-5"}

	input, err := parseTemplateArgs("Weekdays | Standup", presets)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1-5", input.CronSchedule)
	assert.Equal(t, "Standup", input.Title)
	assert.Nil(t, input.StartDate)

	input, err = parseTemplateArgs("0 9 1 * * | Rent | 2024-07-01 | 2024-12-31", presets)
	require.NoError(t, err)
	assert.Equal(t, "0 9 1 * *", input.CronSchedule)
	require.NotNil(t, input.StartDate)
	require.NotNil(t, input.EndDate)
	assert.Equal(t, "2024-07-01", input.StartDate.Format(model.DateLayout))
	assert.Equal(t, "2024-12-31", input.EndDate.Format(model.DateLayout))

	input, err = parseTemplateArgs("0 9 1 * * | Rent | - | 2024-12-31", presets)
	require.NoError(t, err)
	assert.Nil(t, input.StartDate)
	assert.NotNil(t, input.EndDate)

	for _, bad := range []string{"", "0 9 * * *", "| title", "0 9 * * * | x | 2024-13-01", "a | b | - | - | -"} {
		_, err := parseTemplateArgs(bad, presets)
		assert.Error(t, err, bad)
	}
}

func TestParseTaskArgs(t *testing.T) {
	input, err := parseTaskArgs("2024-06-03 09:30 | Dentist | high")
	require.NoError(t, err)
	assert.Equal(t, "Dentist", input.Title)
	assert.Equal(t, "09:30", input.DueTime)
	assert.Equal(t, model.PriorityHigh, input.Priority)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), input.DueDate)

	input, err = parseTaskArgs("2024-06-03 | Groceries")
	require.NoError(t, err)
	assert.Empty(t, input.DueTime)
	assert.Zero(t, input.Priority)

	for _, bad := range []string{"", "Dentist", "tomorrow | Dentist", "2024-06-03 | x | urgent", "2024-06-03 9:00 extra | x"} {
		_, err := parseTaskArgs(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePreviewArgs(t *testing.T) {
	tests := []struct {
		in        string
		spec      string
		count     int
		wantError bool
	}{
		{"0 9 * * 1-5", "0 9 * * 1-5", 5, false},
		{"0 9 * * 1-5 3", "0 9 * * 1-5", 3, false},
		{"daily 2", "daily", 2, false},
		{"daily", "daily", 5, false},
		{"0 9 * * 1-5 500", "0 9 * * 1-5", maxPreview, false},
		{"0 9 * * 1-5 x", "", 0, true},
		{"", "", 0, true},
	}
	for _, tt := range tests {
		spec, count, err := parsePreviewArgs(tt.in)
		if tt.wantError {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.spec, spec)
		assert.Equal(t, tt.count, count)
	}
}

func TestParseRange(t *testing.T) {
	today := time.Date(2024, 6, 5, 22, 0, 0, 0, time.UTC)

	from, to, err := parseRange("", today, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-05", from.Format(model.DateLayout))
	assert.Equal(t, "2024-06-12", to.Format(model.DateLayout))

	from, to, err = parseRange("2024-06-10", today, 0)
	require.NoError(t, err)
	assert.Equal(t, from, to)

	_, _, err = parseRange("2024-06-10 2024-06-01", today, 0)
	assert.Error(t, err)
	_, _, err = parseRange("a b c", today, 0)
	assert.Error(t, err)
}

func TestParseMonthAndID(t *testing.T) {
	year, month, err := parseMonth("", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2024, year)
	assert.Equal(t, time.June, month)

	year, month, err = parseMonth("2025-02", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, time.February, month)

	id, err := parseID(" #12 ")
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
	_, err = parseID("0")
	assert.Error(t, err)
	_, err = parseID("abc")
	assert.Error(t, err)
}

func TestFormatReport(t *testing.T) {
	text := formatReport(service.RunReport{
		Start:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 6, 7, 23, 59, 0, 0, time.UTC),
		Templates: 2, Succeeded: 1, Failed: 1, Created: 4,
		Failures: []service.TemplateResult{{TemplateID: 9, Title: "Broken", Err: &service.ValidationError{Field: "title", Reason: "is required"}}},
	})
	assert.Contains(t, text, "Templates: 2, ok: 1, failed: 1")
	assert.Contains(t, text, "Tasks created: 4")
	assert.Contains(t, text, "#9 Broken: ❌ Invalid title")
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "short", shortTitle(" short ", 10))
	assert.Equal(t, "Привет, м…", shortTitle("Привет, мир и все", 10))
}
