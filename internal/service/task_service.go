package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"task-calendar/internal/model"
)

// TaskInput represents data required to create a standalone task.
type TaskInput struct {
	Title       string
	Description string
	DueDate     time.Time
	// DueTime is HH:MM or empty.
	DueTime  string
	Priority model.Priority
}

// TaskPatch updates only the fields that are set.
type TaskPatch struct {
	Title       Optional[string]
	Description Optional[string]
	DueDate     Optional[time.Time]
	DueTime     Optional[string]
	Priority    Optional[model.Priority]
	IsCompleted Optional[bool]
}

// TaskService wraps task-related business logic.
type TaskService struct {
	repo TaskStore
	now  func() time.Time
}

func NewTaskService(repo TaskStore, now func() time.Time) *TaskService {
	if now == nil {
		now = time.Now
	}
	return &TaskService{repo: repo, now: now}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	if err := validateTitle(input.Title); err != nil {
		return nil, err
	}
	if input.DueDate.IsZero() {
		return nil, &ValidationError{Field: "due_date", Reason: "is required"}
	}
	if input.Priority == 0 {
		input.Priority = model.PriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, &ValidationError{Field: "priority", Reason: "must be 1 (high), 2 (medium) or 3 (low)"}
	}
	dueTime, err := parseDueTime(input.DueTime)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		DueDate:     model.Date(input.DueDate),
		DueTime:     dueTime,
		Priority:    input.Priority,
	}
	if err := s.repo.Create(ctx, &task); err != nil {
		return nil, storeErr("create task", err)
	}
	return &task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, id uint, patch TaskPatch) (*model.Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupErr("get task", err, ErrTaskNotFound)
	}

	if patch.Title.Set {
		if err := validateTitle(patch.Title.Value); err != nil {
			return nil, err
		}
		task.Title = strings.TrimSpace(patch.Title.Value)
	}
	patch.Description.apply(&task.Description)
	if patch.DueDate.Set {
		task.DueDate = model.Date(patch.DueDate.Value)
		if err := s.checkTemplateDay(ctx, task); err != nil {
			return nil, err
		}
	}
	if patch.DueTime.Set {
		dueTime, err := parseDueTime(patch.DueTime.Value)
		if err != nil {
			return nil, err
		}
		task.DueTime = dueTime
	}
	if patch.Priority.Set {
		if !patch.Priority.Value.Valid() {
			return nil, &ValidationError{Field: "priority", Reason: "must be 1 (high), 2 (medium) or 3 (low)"}
		}
		task.Priority = patch.Priority.Value
	}
	if patch.IsCompleted.Set {
		task.SetCompleted(patch.IsCompleted.Value, s.now())
	}

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, storeErr("update task", err)
	}
	return task, nil
}

// checkTemplateDay rejects moving a templated task onto a day its template
// already has a task for.
func (s *TaskService) checkTemplateDay(ctx context.Context, task *model.Task) error {
	if task.TemplateID == nil {
		return nil
	}
	other, err := s.repo.FindByTemplateAndDate(ctx, *task.TemplateID, task.DueDate)
	if err != nil {
		return storeErr("find template task", err)
	}
	if other != nil && other.ID != task.ID {
		return &ValidationError{
			Field:  "due_date",
			Reason: fmt.Sprintf("template already has task #%d on %s", other.ID, task.DueDate.Format(model.DateLayout)),
		}
	}
	return nil
}

// ToggleTask flips completion and stamps CompletedAt.
func (s *TaskService) ToggleTask(ctx context.Context, id uint) (*model.Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupErr("get task", err, ErrTaskNotFound)
	}
	task.SetCompleted(!task.IsCompleted, s.now())
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, storeErr("toggle task", err)
	}
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupErr("get task", err, ErrTaskNotFound)
	}
	return task, nil
}

// DeleteTask removes a task completely, templated or not.
func (s *TaskService) DeleteTask(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupErr("delete task", err, ErrTaskNotFound)
	}
	return nil
}

// ListRange returns tasks due between from and to inclusive.
func (s *TaskService) ListRange(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	tasks, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// ListByTemplate returns every task materialized from a template.
func (s *TaskService) ListByTemplate(ctx context.Context, templateID uint) ([]model.Task, error) {
	tasks, err := s.repo.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, storeErr("list template tasks", err)
	}
	return tasks, nil
}

func parseDueTime(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(model.TimeLayout, raw)
	if err != nil {
		return nil, &ValidationError{Field: "due_time", Reason: "expected HH:MM"}
	}
	formatted := t.Format(model.TimeLayout)
	return &formatted, nil
}
