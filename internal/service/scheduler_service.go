package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"task-calendar/internal/logging"
	"task-calendar/internal/model"
)

const (
	// DefaultRegenerateSpec fires the periodic run at local midnight.
	DefaultRegenerateSpec = "0 0 * * *"
	DefaultLookahead      = 7 * 24 * time.Hour

	TriggerStartup  = "startup"
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

// TemplateResult is the outcome of reconciling one template in a run.
type TemplateResult struct {
	TemplateID uint
	Title      string
	Created    int
	Err        error
}

// RunReport summarizes one pass over every active template.
type RunReport struct {
	Trigger   string
	Start     time.Time
	End       time.Time
	Templates int
	Succeeded int
	Failed    int
	Created   int
	Failures  []TemplateResult
}

// SchedulerOptions tunes a RegenerationScheduler.
type SchedulerOptions struct {
	Location *time.Location
	// Spec is the robfig/cron schedule of the periodic run.
	Spec string
	// Lookahead is the window materialized by startup and periodic runs.
	Lookahead time.Duration
	// RunTimeout bounds a background run.
	RunTimeout time.Duration
	Now        func() time.Time
	Logger     zerolog.Logger
}

// RegenerationScheduler drives materialization at startup, on a daily cron
// trigger and on demand. Runs share no queue; the materializer serializes
// work on any single template.
type RegenerationScheduler struct {
	templates    TemplateStore
	materializer *MaterializationService
	cron         *cron.Cron
	spec         string
	lookahead    time.Duration
	runTimeout   time.Duration
	now          func() time.Time
	log          zerolog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRegenerationScheduler(templates TemplateStore, materializer *MaterializationService, opts SchedulerOptions) *RegenerationScheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if strings.TrimSpace(opts.Spec) == "" {
		opts.Spec = DefaultRegenerateSpec
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.With().Str("component", "scheduler").Logger()
	cronLog := logging.Cron(opts.Logger)
	return &RegenerationScheduler{
		templates:    templates,
		materializer: materializer,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		spec:       opts.Spec,
		lookahead:  opts.Lookahead,
		runTimeout: opts.RunTimeout,
		now:        opts.Now,
		log:        log,
	}
}

// Start materializes the lookahead window once, then arms the periodic
// trigger. The startup run finishes before the first tick can fire.
func (s *RegenerationScheduler) Start(ctx context.Context) (RunReport, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return RunReport{}, errors.New("scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.spec, s.periodic); err != nil {
		return RunReport{}, fmt.Errorf("schedule regeneration %q: %w", s.spec, err)
	}

	now := s.now()
	report, err := s.run(ctx, TriggerStartup, now, now.Add(s.lookahead))
	if err != nil {
		s.log.Error().Err(err).Msg("startup regeneration failed")
	}

	s.cron.Start()
	return report, err
}

// Stop halts the periodic trigger and waits for a running job to finish.
func (s *RegenerationScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleDaily registers an extra job at the given HH:MM local time.
func (s *RegenerationScheduler) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ReconcileRange materializes every active template over [start, end].
func (s *RegenerationScheduler) ReconcileRange(ctx context.Context, start, end time.Time) (RunReport, error) {
	return s.run(ctx, TriggerManual, start, end)
}

func (s *RegenerationScheduler) periodic() {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, s.runTimeout)
	defer cancel()

	now := s.now()
	if _, err := s.run(ctx, TriggerPeriodic, now, now.Add(s.lookahead)); err != nil {
		s.log.Error().Err(err).Msg("periodic regeneration failed")
	}
}

// run reconciles every active template. A failing template is recorded in
// the report and does not stop the others.
func (s *RegenerationScheduler) run(ctx context.Context, trigger string, start, end time.Time) (RunReport, error) {
	report := RunReport{Trigger: trigger, Start: start, End: end}
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return report, storeErr("list active templates", err)
	}

	report.Templates = len(templates)
	for _, tmpl := range templates {
		created, err := s.materializer.Reconcile(ctx, tmpl, start, end)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, TemplateResult{TemplateID: tmpl.ID, Title: tmpl.Title, Err: err})
			s.log.Warn().Err(err).Uint("template_id", tmpl.ID).Str("trigger", trigger).Msg("reconcile template failed")
			continue
		}
		report.Succeeded++
		report.Created += created
	}

	s.log.Info().
		Str("trigger", trigger).
		Str("from", start.Format(model.DateLayout)).
		Str("to", end.Format(model.DateLayout)).
		Int("templates", report.Templates).
		Int("failed", report.Failed).
		Int("created", report.Created).
		Msg("regeneration run finished")
	return report, nil
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: minute hour dom month dow
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
