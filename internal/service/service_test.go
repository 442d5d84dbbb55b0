package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"task-calendar/internal/model"
	"task-calendar/internal/repository"
)

type fixture struct {
	templates    *repository.TemplateRepository
	tasks        *repository.TaskRepository
	engine       *RecurrenceEngine
	materializer *MaterializationService
	now          time.Time
}

func setup(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db, err := repository.NewDB(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		templates: repository.NewTemplateRepository(db),
		tasks:     repository.NewTaskRepository(db),
		engine:    NewRecurrenceEngine(time.UTC),
		now:       now,
	}
	f.materializer = NewMaterializationService(f.templates, f.tasks, f.engine, MaterializationOptions{
		Now:    func() time.Time { return f.now },
		Logger: zerolog.Nop(),
	})
	return f
}

func (f *fixture) createTemplate(t *testing.T, tmpl model.TaskTemplate) model.TaskTemplate {
	t.Helper()
	require.NoError(t, f.templates.Create(context.Background(), &tmpl))
	return tmpl
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func dueDates(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.DueDate.Format(model.DateLayout))
	}
	return out
}
