package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"task-calendar/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateBatch inserts tasks in one transaction. Rows colliding with an
// existing (template_id, due_date) pair are skipped; the returned count only
// includes rows actually written.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []model.Task) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	var inserted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = insertSkippingDuplicates(tx, tasks)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertSkippingDuplicates(tx *gorm.DB, tasks []model.Task) (int, error) {
	var inserted int64
	for i := range tasks {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tasks[i])
		if res.Error != nil {
			return 0, fmt.Errorf("create task batch: %w", res.Error)
		}
		inserted += res.RowsAffected
	}
	return int(inserted), nil
}

// FindByTemplateAndDate returns nil without error when no task exists.
func (r *TaskRepository) FindByTemplateAndDate(ctx context.Context, templateID uint, dueDate time.Time) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("template_id = ? AND due_date = ?", templateID, model.Date(dueDate)).
		Take(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find task by template: %w", err)
	}
}

// DeleteFutureIncomplete removes the template's incomplete tasks due on or
// after from.
func (r *TaskRepository) DeleteFutureIncomplete(ctx context.Context, templateID uint, from time.Time) (int, error) {
	return deleteFutureIncomplete(r.db.WithContext(ctx), templateID, from)
}

// ReplaceFutureIncomplete deletes like DeleteFutureIncomplete and inserts
// tasks like CreateBatch inside one transaction. On error nothing changes.
func (r *TaskRepository) ReplaceFutureIncomplete(ctx context.Context, templateID uint, from time.Time, tasks []model.Task) (removed, created int, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		if removed, txErr = deleteFutureIncomplete(tx, templateID, from); txErr != nil {
			return txErr
		}
		created, txErr = insertSkippingDuplicates(tx, tasks)
		return txErr
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, created, nil
}

func deleteFutureIncomplete(db *gorm.DB, templateID uint, from time.Time) (int, error) {
	res := db.Where("template_id = ? AND due_date >= ? AND is_completed = ?", templateID, model.Date(from), false).
		Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete future tasks: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *TaskRepository) ListByTemplate(ctx context.Context, templateID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("template_id = ?", templateID).
		Order("due_date, due_time, id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list template tasks: %w", err)
	}
	return tasks, nil
}

// ListRange returns tasks due between from and to inclusive, ordered by
// date, time and priority.
func (r *TaskRepository) ListRange(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("due_date >= ? AND due_date <= ?", model.Date(from), model.Date(to)).
		Order("due_date, due_time, priority, id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Task{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
