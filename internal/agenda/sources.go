// Package agenda reads calendar events and tasks for the printed agenda:
// iCalendar feeds over HTTP or from disk, and the local task list.
package agenda

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"agendaprint/internal/model"
)

type EventSource interface {
	Name() string
	FetchEvents(ctx context.Context, day time.Time) ([]model.CalendarEvent, error)
}

type TaskSource interface {
	Name() string
	FetchTasks(ctx context.Context) ([]model.TaskItem, error)
}

// Sources fans out over every configured source. Any failing source fails
// the whole fetch with a ProviderError.
type Sources struct {
	Events []EventSource
	Tasks  []TaskSource
}

// NewSources builds event and task sources for each calendar location.
func NewSources(calendars []string, taskList string, local TaskStore) Sources {
	var s Sources
	for _, location := range calendars {
		s.Events = append(s.Events, &Calendar{Location: location})
		s.Tasks = append(s.Tasks, &TodoFeed{Location: location, List: taskList})
	}
	if local != nil {
		s.Tasks = append(s.Tasks, LocalTasks{Store: local})
	}
	return s
}

func (s Sources) FetchEvents(ctx context.Context, day time.Time) ([]model.CalendarEvent, error) {
	results := make([][]model.CalendarEvent, len(s.Events))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range s.Events {
		g.Go(func() error {
			events, err := src.FetchEvents(ctx, day)
			if err != nil {
				return wrapProvider(src.Name(), err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []model.CalendarEvent
	for _, events := range results {
		out = append(out, events...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// FetchTasks returns tasks in source order, each source's tasks in the order
// the source returned them.
func (s Sources) FetchTasks(ctx context.Context) ([]model.TaskItem, error) {
	results := make([][]model.TaskItem, len(s.Tasks))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range s.Tasks {
		g.Go(func() error {
			tasks, err := src.FetchTasks(ctx)
			if err != nil {
				return wrapProvider(src.Name(), err)
			}
			results[i] = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []model.TaskItem
	for _, tasks := range results {
		out = append(out, tasks...)
	}
	return out, nil
}

// Fetch reads events for day and all tasks concurrently.
func (s Sources) Fetch(ctx context.Context, day time.Time) ([]model.CalendarEvent, []model.TaskItem, error) {
	var events []model.CalendarEvent
	var tasks []model.TaskItem
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.FetchEvents(ctx, day)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.FetchTasks(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return events, tasks, nil
}
