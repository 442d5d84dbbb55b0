package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"task-calendar/internal/model"
)

// TemplateRepository handles CRUD for task templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) ListActive(ctx context.Context) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	return templates, nil
}

// List returns every template, newest first.
func (r *TemplateRepository) List(ctx context.Context) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) Get(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	var template model.TaskTemplate
	if err := r.db.WithContext(ctx).First(&template, id).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *TemplateRepository) Create(ctx context.Context, template *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Update(ctx context.Context, template *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// Delete removes a template. Tasks generated from it stay behind as
// standalone tasks.
func (r *TemplateRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).Where("template_id = ?", id).
			Update("template_id", nil).Error; err != nil {
			return fmt.Errorf("detach template tasks: %w", err)
		}
		res := tx.Delete(&model.TaskTemplate{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete template: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
