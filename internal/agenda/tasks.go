package agenda

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/emersion/go-ical"

	"agendaprint/internal/model"
)

// TodoFeed reads the VTODOs of one iCalendar feed.
type TodoFeed struct {
	Location string
	Client   *http.Client
	// List names the tasks when the feed carries no X-WR-CALNAME.
	List string
}

func (f *TodoFeed) Name() string {
	return f.Location
}

func (f *TodoFeed) FetchTasks(ctx context.Context) ([]model.TaskItem, error) {
	cals, err := loadFeed(ctx, f.Client, f.Location)
	if err != nil {
		return nil, wrapProvider(f.Name(), err)
	}
	var out []model.TaskItem
	for _, cal := range cals {
		list := propText(cal.Component, propCalName)
		if list == "" {
			list = f.List
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompToDo {
				continue
			}
			status := strings.ToUpper(propText(comp, ical.PropStatus))
			if status == statusCancelled {
				continue
			}
			out = append(out, model.TaskItem{
				ID:        propText(comp, ical.PropUID),
				Title:     propText(comp, ical.PropSummary),
				List:      list,
				Priority:  icalPriority(propText(comp, propPriority)),
				Completed: status == statusCompleted || comp.Props.Get(propCompleted) != nil,
			})
		}
	}
	return out, nil
}

// icalPriority maps RFC 5545 PRIORITY (1 highest, 9 lowest, 0 undefined).
func icalPriority(value string) model.Priority {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	switch {
	case err != nil || n <= 0 || n > 9:
		return model.PriorityNormal
	case n < 5:
		return model.PriorityHigh
	case n == 5:
		return model.PriorityNormal
	default:
		return model.PriorityLow
	}
}

// TaskStore is the local task list kept by this program.
type TaskStore interface {
	ListTasks(ctx context.Context, includeCompleted bool) ([]model.TaskItem, error)
}

// LocalTasks serves tasks added through the control API.
type LocalTasks struct {
	Store TaskStore
}

func (LocalTasks) Name() string {
	return "local"
}

func (l LocalTasks) FetchTasks(ctx context.Context) ([]model.TaskItem, error) {
	if l.Store == nil {
		return nil, nil
	}
	tasks, err := l.Store.ListTasks(ctx, false)
	if err != nil {
		return nil, wrapProvider(l.Name(), err)
	}
	return tasks, nil
}
