// Package scheduler fires one scheduled print intent per schedule entry per
// local calendar day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"agendaprint/internal/activity"
	"agendaprint/internal/config"
	"agendaprint/internal/model"
)

var ErrRunning = errors.New("scheduler already running")

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Dispatcher receives the scheduled intents. It must not block.
type Dispatcher interface {
	Dispatch(reason model.Reason) error
}

type Options struct {
	Dispatcher Dispatcher
	Observer   activity.Observer
	Clock      Clock
	// Interval is how often the loop wakes. It is clamped to 1s..1m.
	Interval time.Duration
}

type Scheduler struct {
	dispatcher Dispatcher
	observer   activity.Observer
	clock      Clock
	interval   time.Duration

	mu      sync.Mutex
	running bool
	entries []model.ScheduleEntry
	fired   map[model.ScheduleEntry]bool
	day     time.Time
	stop    chan struct{}
	done    chan struct{}
}

type Status struct {
	Running    bool
	Entries    []model.ScheduleEntry
	FiredToday []model.ScheduleEntry
	Day        time.Time
	NextFire   time.Time
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		dispatcher: opts.Dispatcher,
		observer:   opts.Observer,
		clock:      opts.Clock,
		interval:   opts.Interval,
		fired:      map[model.ScheduleEntry]bool{},
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.observer == nil {
		s.observer = activity.Func(nil)
	}
	switch {
	case s.interval <= 0:
		s.interval = config.DefaultPollInterval
	case s.interval < time.Second:
		s.interval = time.Second
	case s.interval > time.Minute:
		s.interval = time.Minute
	}
	return s
}

// Start validates entries and starts the loop. Entries whose minute already
// passed today are treated as fired, so they first fire tomorrow.
func (s *Scheduler) Start(ctx context.Context, entries []model.ScheduleEntry) error {
	if err := config.ValidateSchedule(entries); err != nil {
		return err
	}
	entries = config.NormalizeSchedule(entries)
	now := s.clock.Now()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.entries = entries
	s.day = dateOf(now)
	s.fired = map[model.ScheduleEntry]bool{}
	for _, e := range entries {
		if elapsed(e, now) {
			s.fired[e] = true
		}
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.observer.Observe(model.Activity{
		Time:    now,
		Kind:    model.ActivitySchedulerStart,
		Outcome: model.Succeeded(),
		Detail:  config.FormatSchedule(entries),
	})
	s.tick(now)
	go s.loop(ctx, stop, done)
	return nil
}

// Stop ends the loop and waits for it to exit. No intent is dispatched after
// Stop returns; jobs already dispatched are not affected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.stopped()
}

// Reload replaces the entry set of a running or stopped scheduler. Entries
// kept from the previous set keep their fired state; new entries that
// already passed today wait for tomorrow.
func (s *Scheduler) Reload(entries []model.ScheduleEntry) error {
	if err := config.ValidateSchedule(entries); err != nil {
		return err
	}
	entries = config.NormalizeSchedule(entries)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	previous := map[model.ScheduleEntry]bool{}
	for _, e := range s.entries {
		previous[e] = true
	}
	fired := map[model.ScheduleEntry]bool{}
	for _, e := range entries {
		switch {
		case previous[e]:
			fired[e] = s.fired[e]
		case elapsed(e, now) && !dateOf(now).Before(s.day):
			fired[e] = true
		}
	}
	s.entries = entries
	s.fired = fired
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Status() Status {
	now := s.clock.Now()
	s.mu.Lock()
	st := Status{
		Running: s.running,
		Entries: append([]model.ScheduleEntry(nil), s.entries...),
		Day:     s.day,
	}
	for _, e := range s.entries {
		if s.fired[e] {
			st.FiredToday = append(st.FiredToday, e)
		}
	}
	s.mu.Unlock()
	if st.Running {
		if next, err := NextFire(now, st.Entries, st.FiredToday); err == nil {
			st.NextFire = next
		}
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(s.clock.Now())
		case <-stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			wasRunning := s.running
			s.running = false
			s.mu.Unlock()
			if wasRunning {
				s.stopped()
			}
			return
		}
	}
}

func (s *Scheduler) stopped() {
	s.observer.Observe(model.Activity{
		Time:    s.clock.Now(),
		Kind:    model.ActivitySchedulerStop,
		Outcome: model.Succeeded(),
	})
}

// tick runs one wake of the loop and returns the entries it dispatched.
func (s *Scheduler) tick(now time.Time) []model.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	today := dateOf(now)
	switch {
	case today.After(s.day):
		// Entries left unfired on the previous day expire.
		s.day = today
		s.fired = map[model.ScheduleEntry]bool{}
	case today.Before(s.day):
		// The clock went back across midnight; wait until it catches up.
		return nil
	}

	var due []model.ScheduleEntry
	for _, e := range s.entries {
		if s.fired[e] || e.Minutes() > minuteOfDay(now) {
			continue
		}
		s.fired[e] = true
		due = append(due, e)
		if s.dispatcher == nil {
			continue
		}
		if err := s.dispatcher.Dispatch(model.Scheduled(e)); err != nil {
			log.Printf("scheduled print %s not dispatched: %v", e, err)
		}
	}
	return due
}

// NextFire returns the next firing time after now, given the entries already
// fired today.
func NextFire(now time.Time, entries, firedToday []model.ScheduleEntry) (time.Time, error) {
	if len(entries) == 0 {
		return time.Time{}, errors.New("no schedule entries")
	}
	fired := map[model.ScheduleEntry]bool{}
	for _, e := range firedToday {
		fired[e] = true
	}
	ref := now.Truncate(time.Minute)
	tomorrow := dateOf(now).AddDate(0, 0, 1)
	var best time.Time
	for _, e := range entries {
		start := ref
		if fired[e] {
			start = tomorrow
		}
		next, err := gronx.NextTickAfter(cronExpr(e), start, true)
		if err != nil {
			return time.Time{}, err
		}
		if best.IsZero() || next.Before(best) {
			best = next
		}
	}
	return best, nil
}

func cronExpr(e model.ScheduleEntry) string {
	return fmt.Sprintf("%d %d * * *", e.Minute, e.Hour)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func elapsed(e model.ScheduleEntry, now time.Time) bool {
	return e.Minutes() < minuteOfDay(now)
}
