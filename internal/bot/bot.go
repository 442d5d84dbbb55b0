package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"task-calendar/internal/model"
	"task-calendar/internal/repository"
	"task-calendar/internal/service"
)

const (
	cbCompletePrefix       = "complete:"
	cbDeleteTemplatePrefix = "deltpl:"
	cbCancelPrefix         = "cancel:"
)

const (
	menuLabelToday     = "📅 Today"
	menuLabelWeek      = "🗓 Week"
	menuLabelTemplates = "♻️ Templates"
	menuLabelHelp      = "ℹ️ Help"
)

// sender is the part of the Telegram API the bot talks to.
// *tgbotapi.BotAPI implements it.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Services bundles what the command handlers operate on.
type Services struct {
	Users        *repository.UserRepository
	Templates    *service.TemplateService
	Tasks        *service.TaskService
	Calendar     *service.CalendarService
	Reminders    *service.ReminderService
	Engine       *service.RecurrenceEngine
	Materializer *service.MaterializationService
	Scheduler    *service.RegenerationScheduler
}

// Options tunes the bot.
type Options struct {
	// Lookahead is materialized for a template right after it is created.
	Lookahead time.Duration
	// RatePerSec caps outgoing messages.
	RatePerSec float64
	Now        func() time.Time
	Logger     zerolog.Logger
}

// Bot exposes the calendar over Telegram commands.
type Bot struct {
	poller    *tgbotapi.BotAPI
	api       sender
	svc       Services
	loc       *time.Location
	lookahead time.Duration
	limiter   *rate.Limiter
	now       func() time.Time
	log       zerolog.Logger

	mu       sync.Mutex
	inflight map[int64]bool
}

func New(token string, svc Services, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, svc, opts)
	b.poller = api
	b.log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return b, nil
}

func newBot(api sender, svc Services, opts Options) *Bot {
	if opts.Lookahead <= 0 {
		opts.Lookahead = service.DefaultLookahead
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	loc := time.Local
	if svc.Engine != nil {
		loc = svc.Engine.Location()
	}
	return &Bot{
		api:       api,
		svc:       svc,
		loc:       loc,
		lookahead: opts.Lookahead,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		now:       opts.Now,
		log:       opts.Logger.With().Str("component", "bot").Logger(),
		inflight:  make(map[int64]bool),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return errors.New("bot has no telegram connection")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error().Err(err).Msg("handle callback")
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error().Err(err).Msg("handle message")
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
		return b.sendText(ctx, msg.Chat.ID, "I did not get that. Try /help for the list of commands.")
	}

	b.log.Debug().Int64("user", msg.From.ID).Str("command", msg.Command()).
		Str("args", msg.CommandArguments()).Msg("command received")
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(ctx, msg.Chat.ID, helpText)
	case "subscribe":
		return b.handleSubscribe(ctx, msg, true)
	case "unsubscribe":
		return b.handleSubscribe(ctx, msg, false)
	case "today":
		return b.handleToday(ctx, msg.Chat.ID)
	case "generate":
		return b.handleGenerate(ctx, msg.Chat.ID, msg.From.ID, args)
	case "regenerate":
		return b.handleRegenerate(ctx, msg.Chat.ID, args)
	case "validate":
		return b.handleValidate(ctx, msg.Chat.ID, args)
	case "preview":
		return b.handlePreview(ctx, msg.Chat.ID, args)
	case "templates":
		return b.handleTemplates(ctx, msg.Chat.ID)
	case "addtemplate":
		return b.handleAddTemplate(ctx, msg.Chat.ID, args)
	case "toggletemplate":
		return b.handleToggleTemplate(ctx, msg.Chat.ID, args)
	case "deletetemplate":
		return b.askDeleteTemplate(ctx, msg.Chat.ID, args)
	case "presets":
		return b.sendText(ctx, msg.Chat.ID, formatPresets(b.svc.Templates.Presets()))
	case "week":
		return b.handleWeek(ctx, msg.Chat.ID, args)
	case "month":
		return b.handleMonth(ctx, msg.Chat.ID, args)
	case "addtask":
		return b.handleAddTask(ctx, msg.Chat.ID, args)
	case "done":
		return b.handleDone(ctx, msg.Chat.ID, args)
	case "deletetask":
		return b.handleDeleteTask(ctx, msg.Chat.ID, args)
	default:
		return b.sendText(ctx, msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelToday:
		return true, b.handleToday(ctx, msg.Chat.ID)
	case menuLabelWeek:
		return true, b.handleWeek(ctx, msg.Chat.ID, "")
	case menuLabelTemplates:
		return true, b.handleTemplates(ctx, msg.Chat.ID)
	case menuLabelHelp:
		return true, b.sendText(ctx, msg.Chat.ID, helpText)
	default:
		return false, nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	chatID := cb.Message.Chat.ID
	switch data := cb.Data; {
	case strings.HasPrefix(data, cbCompletePrefix):
		id, err := parseID(strings.TrimPrefix(data, cbCompletePrefix))
		if err != nil {
			return nil
		}
		return b.handleDone(ctx, chatID, fmt.Sprint(id))
	case strings.HasPrefix(data, cbDeleteTemplatePrefix):
		id, err := parseID(strings.TrimPrefix(data, cbDeleteTemplatePrefix))
		if err != nil {
			return nil
		}
		return b.deleteTemplate(ctx, chatID, id)
	case strings.HasPrefix(data, cbCancelPrefix):
		return b.sendText(ctx, chatID, "↩️ Cancelled.")
	default:
		return nil
	}
}

// SendDailyReports sends today's agenda to every subscribed user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.svc.Users.ListSubscribed(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	text, err := b.svc.Reminders.DailySummary(ctx, b.today())
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(ctx, user.ChatID, text); err != nil {
			b.log.Warn().Err(err).Int64("telegram_id", user.TelegramID).Msg("send summary")
		}
	}
	b.log.Info().Int("users", len(users)).Msg("daily summaries sent")
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, chatID int64, from *tgbotapi.User) (*model.User, error) {
	return b.svc.Users.UpsertFromTelegram(ctx, from.ID, chatID, from.FirstName, from.LastName, from.UserName)
}

// today is the current instant in the calendar's location.
func (b *Bot) today() time.Time {
	return b.now().In(b.loc)
}

// begin marks a long-running command for the user; it reports false when
// one is already in flight.
func (b *Bot) begin(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[userID] {
		return false
	}
	b.inflight[userID] = true
	return true
}

func (b *Bot) end(userID int64) {
	b.mu.Lock()
	delete(b.inflight, userID)
	b.mu.Unlock()
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) error {
	return b.sendWithReplyMarkup(ctx, chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(ctx context.Context, chatID int64, text string, markup interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelWeek),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTemplates),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}
