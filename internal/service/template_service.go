package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"task-calendar/internal/model"
)

// TemplateInput represents data required to create a template.
type TemplateInput struct {
	Title        string
	Description  string
	CronSchedule string
	StartDate    *time.Time
	EndDate      *time.Time
	// IsActive defaults to true when nil.
	IsActive *bool
}

// TemplatePatch updates only the fields that are set.
type TemplatePatch struct {
	Title        Optional[string]
	Description  Optional[string]
	CronSchedule Optional[string]
	StartDate    Optional[*time.Time]
	EndDate      Optional[*time.Time]
	IsActive     Optional[bool]
}

// TemplateService wraps template-related business logic. Editing a template
// never touches tasks already materialized from it.
type TemplateService struct {
	repo TemplateStore
	log  zerolog.Logger
}

func NewTemplateService(repo TemplateStore, log zerolog.Logger) *TemplateService {
	return &TemplateService{repo: repo, log: log.With().Str("component", "templates").Logger()}
}

func (s *TemplateService) Create(ctx context.Context, input TemplateInput) (*model.TaskTemplate, error) {
	tmpl := model.TaskTemplate{
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		CronSchedule: strings.TrimSpace(input.CronSchedule),
		StartDate:    normalizeDate(input.StartDate),
		EndDate:      normalizeDate(input.EndDate),
		IsActive:     true,
	}
	if input.IsActive != nil {
		tmpl.IsActive = *input.IsActive
	}
	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &tmpl); err != nil {
		return nil, storeErr("create template", err)
	}
	s.log.Info().Uint("template_id", tmpl.ID).Str("cron", tmpl.CronSchedule).Msg("template created")
	return &tmpl, nil
}

func (s *TemplateService) Update(ctx context.Context, id uint, patch TemplatePatch) (*model.TaskTemplate, error) {
	tmpl, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupErr("get template", err, ErrTemplateNotFound)
	}

	patch.Title.apply(&tmpl.Title)
	patch.Description.apply(&tmpl.Description)
	patch.CronSchedule.apply(&tmpl.CronSchedule)
	patch.StartDate.apply(&tmpl.StartDate)
	patch.EndDate.apply(&tmpl.EndDate)
	patch.IsActive.apply(&tmpl.IsActive)

	tmpl.Title = strings.TrimSpace(tmpl.Title)
	tmpl.Description = strings.TrimSpace(tmpl.Description)
	tmpl.CronSchedule = strings.TrimSpace(tmpl.CronSchedule)
	tmpl.StartDate = normalizeDate(tmpl.StartDate)
	tmpl.EndDate = normalizeDate(tmpl.EndDate)
	if err := validateTemplate(*tmpl); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, tmpl); err != nil {
		return nil, storeErr("update template", err)
	}
	return tmpl, nil
}

// Toggle flips the active flag.
func (s *TemplateService) Toggle(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	tmpl, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupErr("get template", err, ErrTemplateNotFound)
	}
	tmpl.IsActive = !tmpl.IsActive
	// Re-check the schedule: an active template must always parse.
	if tmpl.IsActive {
		if err := ValidateCron(tmpl.CronSchedule); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, tmpl); err != nil {
		return nil, storeErr("toggle template", err)
	}
	return tmpl, nil
}

// Delete removes the template; its tasks become standalone.
func (s *TemplateService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupErr("delete template", err, ErrTemplateNotFound)
	}
	s.log.Info().Uint("template_id", id).Msg("template deleted")
	return nil
}

func (s *TemplateService) Get(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	tmpl, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupErr("get template", err, ErrTemplateNotFound)
	}
	return tmpl, nil
}

func (s *TemplateService) List(ctx context.Context) ([]model.TaskTemplate, error) {
	templates, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeErr("list templates", err)
	}
	return templates, nil
}

// Presets returns the named schedules offered to users.
func (s *TemplateService) Presets() map[string]string {
	out := make(map[string]string, len(model.Presets))
	for name, spec := range model.Presets {
		out[name] = spec
	}
	return out
}

func validateTemplate(tmpl model.TaskTemplate) error {
	if err := validateTitle(tmpl.Title); err != nil {
		return err
	}
	if err := ValidateCron(tmpl.CronSchedule); err != nil {
		return err
	}
	if tmpl.StartDate != nil && tmpl.EndDate != nil && tmpl.StartDate.After(*tmpl.EndDate) {
		return &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return nil
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.Date(*t)
	return &d
}
