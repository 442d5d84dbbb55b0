package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"task-calendar/internal/model"
)

// MaterializationService turns template occurrences into task rows without
// duplicating or touching rows that already exist.
type MaterializationService struct {
	templates    TemplateStore
	tasks        TaskStore
	engine       *RecurrenceEngine
	locks        *templateLocks
	now          func() time.Time
	horizon      time.Duration
	storeTimeout time.Duration
	log          zerolog.Logger
}

// MaterializationOptions tunes a MaterializationService. Zero values fall
// back to defaults.
type MaterializationOptions struct {
	// RegenerateHorizon is how far ahead RegenerateForTemplate rebuilds.
	RegenerateHorizon time.Duration
	// StoreTimeout bounds each reconcile call.
	StoreTimeout time.Duration
	Now          func() time.Time
	Logger       zerolog.Logger
}

const (
	DefaultRegenerateHorizon = 30 * 24 * time.Hour
	DefaultStoreTimeout      = 30 * time.Second
)

func NewMaterializationService(templates TemplateStore, tasks TaskStore, engine *RecurrenceEngine, opts MaterializationOptions) *MaterializationService {
	if opts.RegenerateHorizon <= 0 {
		opts.RegenerateHorizon = DefaultRegenerateHorizon
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MaterializationService{
		templates:    templates,
		tasks:        tasks,
		engine:       engine,
		locks:        newTemplateLocks(),
		now:          opts.Now,
		horizon:      opts.RegenerateHorizon,
		storeTimeout: opts.StoreTimeout,
		log:          opts.Logger.With().Str("component", "materializer").Logger(),
	}
}

// Reconcile creates the missing tasks for tmpl's occurrences in
// [rangeStart, rangeEnd] and returns how many rows were inserted. Calls for
// the same template never overlap.
func (s *MaterializationService) Reconcile(ctx context.Context, tmpl model.TaskTemplate, rangeStart, rangeEnd time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	release, err := s.locks.acquire(ctx, tmpl.ID)
	if err != nil {
		return 0, fmt.Errorf("lock template %d: %w", tmpl.ID, err)
	}
	defer release()

	return s.reconcileLocked(ctx, tmpl, rangeStart, rangeEnd)
}

func (s *MaterializationService) reconcileLocked(ctx context.Context, tmpl model.TaskTemplate, rangeStart, rangeEnd time.Time) (int, error) {
	occurrences, err := s.engine.OccurrencesInRange(tmpl, rangeStart, rangeEnd)
	if err != nil {
		return 0, fmt.Errorf("template %d schedule: %w", tmpl.ID, err)
	}

	var pending []model.Task
	for _, task := range firstPerDay(tmpl, occurrences) {
		existing, err := s.tasks.FindByTemplateAndDate(ctx, tmpl.ID, task.DueDate)
		if err != nil {
			return 0, storeErr("find existing task", err)
		}
		if existing != nil {
			continue
		}
		pending = append(pending, task)
	}

	created, err := s.tasks.CreateBatch(ctx, pending)
	if err != nil {
		return 0, storeErr("create tasks", err)
	}
	if created > 0 {
		s.log.Debug().Uint("template_id", tmpl.ID).Int("created", created).
			Time("from", rangeStart).Time("to", rangeEnd).Msg("materialized tasks")
	}
	return created, nil
}

// RegenerateForTemplate drops the template's incomplete tasks due today or
// later and rebuilds them over the regeneration horizon. Completed and past
// tasks are kept. The drop and the rebuild commit together, so a failed
// rebuild leaves the old tasks in place.
func (s *MaterializationService) RegenerateForTemplate(ctx context.Context, templateID uint) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	release, err := s.locks.acquire(ctx, templateID)
	if err != nil {
		return 0, fmt.Errorf("lock template %d: %w", templateID, err)
	}
	defer release()

	tmpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return 0, lookupErr("get template", err, ErrTemplateNotFound)
	}

	now := s.now().In(s.engine.Location())
	var rebuilt []model.Task
	if tmpl.IsActive {
		occurrences, err := s.engine.OccurrencesInRange(*tmpl, now, now.Add(s.horizon))
		if err != nil {
			return 0, fmt.Errorf("template %d schedule: %w", tmpl.ID, err)
		}
		rebuilt = firstPerDay(*tmpl, occurrences)
	}

	removed, created, err := s.tasks.ReplaceFutureIncomplete(ctx, tmpl.ID, model.Date(now), rebuilt)
	if err != nil {
		return 0, storeErr("regenerate tasks", err)
	}
	s.log.Info().Uint("template_id", tmpl.ID).Int("removed", removed).Int("created", created).
		Msg("regenerated future tasks")
	return created, nil
}

// firstPerDay builds one task per calendar day; the first occurrence of the
// day wins.
func firstPerDay(tmpl model.TaskTemplate, occurrences []time.Time) []model.Task {
	var tasks []model.Task
	seen := make(map[time.Time]bool, len(occurrences))
	for _, at := range occurrences {
		dueDate := model.Date(at)
		if seen[dueDate] {
			continue
		}
		seen[dueDate] = true
		tasks = append(tasks, newTemplatedTask(tmpl, at))
	}
	return tasks
}

func newTemplatedTask(tmpl model.TaskTemplate, at time.Time) model.Task {
	id := tmpl.ID
	dueTime := at.Format(model.TimeLayout)
	return model.Task{
		Title:       tmpl.Title,
		Description: tmpl.Description,
		DueDate:     model.Date(at),
		DueTime:     &dueTime,
		Priority:    model.PriorityMedium,
		TemplateID:  &id,
	}
}
