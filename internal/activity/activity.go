// Package activity delivers finished print jobs and scheduler transitions to
// whoever is watching: the activity log, the job history table, tests.
package activity

import (
	"sync"

	"agendaprint/internal/logging"
	"agendaprint/internal/model"
)

type Observer interface {
	Observe(a model.Activity)
}

// Func adapts a plain function to an Observer.
type Func func(a model.Activity)

func (f Func) Observe(a model.Activity) {
	if f != nil {
		f(a)
	}
}

// Multi forwards every activity to each observer in order. Nil entries are
// skipped.
func Multi(observers ...Observer) Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multi []Observer

func (m multi) Observe(a model.Activity) {
	for _, o := range m {
		o.Observe(a)
	}
}

// Log writes each activity as one line of the activity log.
type Log struct{}

func (Log) Observe(a model.Activity) {
	logging.Activity(logging.ActivityLine(a))
}

// Recorder keeps everything it observes. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []model.Activity
}

func (r *Recorder) Observe(a model.Activity) {
	r.mu.Lock()
	r.items = append(r.items, a)
	r.mu.Unlock()
}

func (r *Recorder) Items() []model.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Activity(nil), r.items...)
}

// Jobs returns only the job activities.
func (r *Recorder) Jobs() []model.Activity {
	var out []model.Activity
	for _, a := range r.Items() {
		if a.Kind == model.ActivityJob {
			out = append(out, a)
		}
	}
	return out
}
