package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-calendar/internal/model"
	"task-calendar/internal/repository"
)

// TemplateStore persists task templates.
type TemplateStore interface {
	ListActive(ctx context.Context) ([]model.TaskTemplate, error)
	List(ctx context.Context) ([]model.TaskTemplate, error)
	Get(ctx context.Context, id uint) (*model.TaskTemplate, error)
	Create(ctx context.Context, template *model.TaskTemplate) error
	Update(ctx context.Context, template *model.TaskTemplate) error
	Delete(ctx context.Context, id uint) error
}

// TaskStore persists task instances. CreateBatch and ReplaceFutureIncomplete
// must be all-or-nothing and silently skip rows that collide on
// (template, due date).
type TaskStore interface {
	FindByTemplateAndDate(ctx context.Context, templateID uint, dueDate time.Time) (*model.Task, error)
	CreateBatch(ctx context.Context, tasks []model.Task) (int, error)
	ReplaceFutureIncomplete(ctx context.Context, templateID uint, from time.Time, tasks []model.Task) (removed, created int, err error)
	ListByTemplate(ctx context.Context, templateID uint) ([]model.Task, error)
	ListRange(ctx context.Context, from, to time.Time) ([]model.Task, error)
	Get(ctx context.Context, id uint) (*model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id uint) error
}

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTaskNotFound     = errors.New("task not found")
	// ErrStoreUnavailable marks failures of the underlying store. Batches
	// that fail with it were not applied.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError rejects input before it reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// lookupErr maps a not-found lookup to notFound and wraps anything else as a
// store failure.
func lookupErr(op string, err, notFound error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return storeErr(op, err)
}

// Optional carries a patch value that is applied only when Set is true.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func (o Optional[T]) apply(dst *T) {
	if o.Set {
		*dst = o.Value
	}
}
