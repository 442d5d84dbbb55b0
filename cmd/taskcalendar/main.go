package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"task-calendar/internal/bot"
	"task-calendar/internal/config"
	"task-calendar/internal/logging"
	"task-calendar/internal/repository"
	"task-calendar/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "console", os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	engine := service.NewRecurrenceEngine(cfg.Location)
	materializer := service.NewMaterializationService(templateRepo, taskRepo, engine, service.MaterializationOptions{
		RegenerateHorizon: cfg.RegenerateHorizon,
		StoreTimeout:      cfg.StoreTimeout,
		Logger:            log,
	})
	scheduler := service.NewRegenerationScheduler(templateRepo, materializer, service.SchedulerOptions{
		Location:  cfg.Location,
		Spec:      cfg.RegenerateSpec,
		Lookahead: cfg.Lookahead,
		Logger:    log,
	})
	taskSvc := service.NewTaskService(taskRepo, nil)

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, bot.Services{
			Users:        userRepo,
			Templates:    service.NewTemplateService(templateRepo, log),
			Tasks:        taskSvc,
			Calendar:     service.NewCalendarService(taskSvc),
			Reminders:    service.NewReminderService(taskSvc),
			Engine:       engine,
			Materializer: materializer,
			Scheduler:    scheduler,
		}, bot.Options{
			Lookahead:  cfg.Lookahead,
			RatePerSec: cfg.BotRatePerSec,
			Logger:     log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("bot")
		}

		if _, err := scheduler.ScheduleDaily(cfg.DigestTime, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("daily report")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("schedule daily report")
		}
	}

	report, err := scheduler.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Stop()
	log.Info().Int("templates", report.Templates).Int("created", report.Created).
		Int("failed", report.Failed).Str("timezone", cfg.Location.String()).Msg("task calendar started")

	if telegramBot == nil {
		log.Info().Msg("TELEGRAM_TOKEN not set, running scheduler only")
		<-ctx.Done()
	} else if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped with error")
	}
	log.Info().Msg("shutdown complete")
}
