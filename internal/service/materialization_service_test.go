package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-calendar/internal/model"
)

type failingTasks struct {
	TaskStore
	err error
}

func (f failingTasks) CreateBatch(context.Context, []model.Task) (int, error) {
	return 0, f.err
}

func (f failingTasks) ReplaceFutureIncomplete(context.Context, uint, time.Time, []model.Task) (int, int, error) {
	return 0, 0, f.err
}

func TestReconcile_CreatesOnePerOccurrenceDay(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Standup", Description: "daily sync", CronSchedule: "0 9 * * 1-5", IsActive: true})

	created, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 3, 0, 0), utc(2024, 6, 9, 23, 59))
	require.NoError(t, err)
	assert.Equal(t, 5, created)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-03", "2024-06-04", "2024-06-05", "2024-06-06", "2024-06-07"}, dueDates(tasks))
	for _, task := range tasks {
		assert.Equal(t, "Standup", task.Title)
		assert.Equal(t, "daily sync", task.Description)
		assert.Equal(t, model.PriorityMedium, task.Priority)
		assert.False(t, task.IsCompleted)
		require.NotNil(t, task.DueTime)
		assert.Equal(t, "09:00", *task.DueTime)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Water plants", CronSchedule: "30 7 * * *", IsActive: true})

	first, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 1, 0, 0), utc(2024, 6, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 9, first)

	second, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 1, 0, 0), utc(2024, 6, 10, 0, 0))
	require.NoError(t, err)
	assert.Zero(t, second)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 9)
}

func TestReconcile_CollapsesSameDayOccurrences(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Stretch", CronSchedule: "0 10,15 * * *", IsActive: true})

	created, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 1, 12, 0), utc(2024, 6, 2, 23, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	// On the first day only the 15:00 occurrence falls in range.
	assert.Equal(t, "15:00", *tasks[0].DueTime)
	assert.Equal(t, "10:00", *tasks[1].DueTime)
}

func TestReconcile_KeepsUserEdits(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Review", CronSchedule: "0 9 * * *", IsActive: true})

	_, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 3, 0, 0), utc(2024, 6, 3, 23, 0))
	require.NoError(t, err)

	existing, err := f.tasks.FindByTemplateAndDate(ctx, tmpl.ID, utc(2024, 6, 3, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, existing)
	existing.Title = "Review (moved)"
	existing.Priority = model.PriorityHigh
	existing.SetCompleted(true, utc(2024, 6, 3, 8, 0))
	require.NoError(t, f.tasks.Update(ctx, existing))

	created, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 3, 0, 0), utc(2024, 6, 4, 23, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	kept, err := f.tasks.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review (moved)", kept.Title)
	assert.Equal(t, model.PriorityHigh, kept.Priority)
	assert.True(t, kept.IsCompleted)
}

func TestReconcile_ConcurrentCallsNeverDuplicate(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Log hours", CronSchedule: "0 18 * * *", IsActive: true})

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 1, 0, 0), utc(2024, 6, 14, 23, 59))
			assert.NoError(t, err)
			mu.Lock()
			total += created
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, total)
	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 14)
}

func TestReconcile_InvalidSchedule(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Broken", CronSchedule: "61 * * * *", IsActive: true})

	_, err := f.materializer.Reconcile(context.Background(), tmpl, utc(2024, 6, 1, 0, 0), utc(2024, 6, 2, 0, 0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestReconcile_StoreFailureWritesNothing(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Backup", CronSchedule: "0 2 * * *", IsActive: true})

	broken := NewMaterializationService(f.templates, failingTasks{TaskStore: f.tasks, err: errors.New("disk full")}, f.engine, MaterializationOptions{})
	created, err := broken.Reconcile(ctx, tmpl, utc(2024, 6, 1, 0, 0), utc(2024, 6, 5, 0, 0))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, created)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestReconcile_CancelledWhileWaitingForLock(t *testing.T) {
	f := setup(t, utc(2024, 6, 1, 0, 0))
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Locked", CronSchedule: "0 9 * * *", IsActive: true})

	release, err := f.materializer.locks.acquire(context.Background(), tmpl.ID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 1, 0, 0), utc(2024, 6, 2, 0, 0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegenerateForTemplate(t *testing.T) {
	f := setup(t, utc(2024, 6, 5, 12, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Old title", CronSchedule: "0 9 * * *", IsActive: true})

	_, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 3, 0, 0), utc(2024, 6, 8, 23, 0))
	require.NoError(t, err)

	completed, err := f.tasks.FindByTemplateAndDate(ctx, tmpl.ID, utc(2024, 6, 7, 0, 0))
	require.NoError(t, err)
	completed.SetCompleted(true, utc(2024, 6, 5, 11, 0))
	require.NoError(t, f.tasks.Update(ctx, completed))

	tmpl.Title = "New title"
	require.NoError(t, f.templates.Update(ctx, &tmpl))

	created, err := f.materializer.RegenerateForTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	// 2024-06-06 through 2024-07-05 at 09:00, minus the completed 06-07.
	assert.Equal(t, 29, created)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	byDate := make(map[string]model.Task, len(tasks))
	for _, task := range tasks {
		byDate[task.DueDate.Format(model.DateLayout)] = task
	}

	// Past tasks are untouched.
	assert.Equal(t, "Old title", byDate["2024-06-03"].Title)
	assert.Equal(t, "Old title", byDate["2024-06-04"].Title)
	// Today's incomplete task is gone and its occurrence already passed.
	assert.NotContains(t, byDate, "2024-06-05")
	// Completed tasks survive as they were.
	assert.Equal(t, completed.ID, byDate["2024-06-07"].ID)
	assert.Equal(t, "Old title", byDate["2024-06-07"].Title)
	assert.True(t, byDate["2024-06-07"].IsCompleted)
	// Future incomplete tasks are rebuilt from the new template.
	assert.Equal(t, "New title", byDate["2024-06-06"].Title)
	assert.Equal(t, "New title", byDate["2024-06-08"].Title)
	assert.Equal(t, "New title", byDate["2024-07-05"].Title)
	assert.NotContains(t, byDate, "2024-07-06")
}

func TestRegenerateForTemplate_Inactive(t *testing.T) {
	f := setup(t, utc(2024, 6, 5, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Paused", CronSchedule: "0 9 * * *", IsActive: true})

	_, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 5, 0, 0), utc(2024, 6, 9, 0, 0))
	require.NoError(t, err)

	tmpl.IsActive = false
	require.NoError(t, f.templates.Update(ctx, &tmpl))

	created, err := f.materializer.RegenerateForTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Zero(t, created)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRegenerateForTemplate_StoreFailureKeepsTasks(t *testing.T) {
	f := setup(t, utc(2024, 6, 5, 0, 0))
	ctx := context.Background()
	tmpl := f.createTemplate(t, model.TaskTemplate{Title: "Gym", CronSchedule: "0 9 * * *", IsActive: true})

	_, err := f.materializer.Reconcile(ctx, tmpl, utc(2024, 6, 5, 0, 0), utc(2024, 6, 9, 23, 0))
	require.NoError(t, err)

	broken := NewMaterializationService(f.templates, failingTasks{TaskStore: f.tasks, err: errors.New("disk full")}, f.engine,
		MaterializationOptions{Now: func() time.Time { return f.now }})
	created, err := broken.RegenerateForTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, created)

	tasks, err := f.tasks.ListByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
}

func TestRegenerateForTemplate_NotFound(t *testing.T) {
	f := setup(t, utc(2024, 6, 5, 0, 0))
	_, err := f.materializer.RegenerateForTemplate(context.Background(), 404)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRegenerateForTemplate_LeavesOtherTemplatesAlone(t *testing.T) {
	f := setup(t, utc(2024, 6, 5, 0, 0))
	ctx := context.Background()
	a := f.createTemplate(t, model.TaskTemplate{Title: "A", CronSchedule: "0 9 * * *", IsActive: true})
	b := f.createTemplate(t, model.TaskTemplate{Title: "B", CronSchedule: "0 9 * * *", IsActive: true})

	_, err := f.materializer.Reconcile(ctx, b, utc(2024, 6, 5, 0, 0), utc(2024, 6, 7, 23, 0))
	require.NoError(t, err)
	before, err := f.tasks.ListByTemplate(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.materializer.RegenerateForTemplate(ctx, a.ID)
	require.NoError(t, err)

	after, err := f.tasks.ListByTemplate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}
}
