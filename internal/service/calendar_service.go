package service

import (
	"context"
	"time"

	"task-calendar/internal/model"
)

// DayView is one calendar day with its tasks.
type DayView struct {
	Date  time.Time
	Tasks []model.Task
}

// WeekView covers Monday through Sunday.
type WeekView struct {
	Start time.Time
	End   time.Time
	Days  []DayView
}

// MonthView covers every day of one month.
type MonthView struct {
	Year  int
	Month time.Month
	First time.Time
	Last  time.Time
	Days  []DayView
}

// CalendarService groups tasks by day for week and month views.
type CalendarService struct {
	tasks *TaskService
}

func NewCalendarService(tasks *TaskService) *CalendarService {
	return &CalendarService{tasks: tasks}
}

// Week returns the Monday-based week containing date.
func (s *CalendarService) Week(ctx context.Context, date time.Time) (WeekView, error) {
	day := model.Date(date)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)

	days, err := s.days(ctx, start, end)
	if err != nil {
		return WeekView{}, err
	}
	return WeekView{Start: start, End: end, Days: days}, nil
}

func (s *CalendarService) Month(ctx context.Context, year int, month time.Month) (MonthView, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	days, err := s.days(ctx, first, last)
	if err != nil {
		return MonthView{}, err
	}
	return MonthView{Year: year, Month: month, First: first, Last: last, Days: days}, nil
}

func (s *CalendarService) days(ctx context.Context, start, end time.Time) ([]DayView, error) {
	tasks, err := s.tasks.ListRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var days []DayView
	index := make(map[time.Time]int)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		index[d] = len(days)
		days = append(days, DayView{Date: d})
	}
	for _, task := range tasks {
		if i, ok := index[model.Date(task.DueDate)]; ok {
			days[i].Tasks = append(days[i].Tasks, task)
		}
	}
	return days, nil
}
