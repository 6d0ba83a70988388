// Package daemon wires the scheduler, the coordinator, the printer channel and
// the agenda sources into the running service behind the control API.
package daemon

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"agendaprint/internal/activity"
	"agendaprint/internal/agenda"
	"agendaprint/internal/compose"
	"agendaprint/internal/config"
	"agendaprint/internal/coordinator"
	"agendaprint/internal/model"
	"agendaprint/internal/printer"
	"agendaprint/internal/scheduler"
)

// PriorityStore resolves priority overrides for the tasks about to print.
type PriorityStore interface {
	Priorities(ctx context.Context, ids []string) (map[string]model.Priority, error)
}

// Fetcher returns the agenda for one local day.
type Fetcher interface {
	Fetch(ctx context.Context, day time.Time) ([]model.CalendarEvent, []model.TaskItem, error)
}

type Options struct {
	Config     config.Config
	Priorities PriorityStore
	// Tasks is the local task list appended after the feed tasks.
	Tasks    agenda.TaskStore
	Observer activity.Observer
	Archiver coordinator.Archiver
	// Printer defaults to a printer.Channel built from Config.
	Printer coordinator.Printer
	// Sources overrides the sources built from Config.Calendars.
	Sources Fetcher
	Clock   scheduler.Clock
}

type Service struct {
	priorities PriorityStore
	tasks      agenda.TaskStore
	clock      scheduler.Clock
	fixed      Fetcher

	mu      sync.Mutex
	cfg     config.Config
	sources Fetcher

	channel   *printer.Channel
	coord     *coordinator.Coordinator
	sched     *scheduler.Scheduler
	startedAt time.Time
}

type Status struct {
	Scheduler scheduler.Status
	Target    string
	Connected bool
	Pending   int
	Current   *model.PrintJob
	Recent    []model.PrintJob
	StartedAt time.Time
}

func New(opts Options) *Service {
	s := &Service{
		priorities: opts.Priorities,
		tasks:      opts.Tasks,
		clock:      opts.Clock,
		fixed:      opts.Sources,
		cfg:        opts.Config,
	}
	if s.clock == nil {
		s.clock = wallClock{}
	}
	s.sources = s.buildSources(opts.Config)

	p := opts.Printer
	if p == nil {
		s.channel = printer.NewChannel(channelOptions(opts.Config))
		p = s.channel
	}
	s.coord = coordinator.New(coordinator.Options{
		Content:  coordinator.ContentFunc(s.Content),
		Printer:  p,
		Target:   targetOf(opts.Config),
		Observer: opts.Observer,
		Archiver: opts.Archiver,
		Now:      s.clock.Now,
	})
	s.sched = scheduler.New(scheduler.Options{
		Dispatcher: s.coord,
		Observer:   opts.Observer,
		Clock:      s.clock,
		Interval:   opts.Config.PollInterval,
	})
	return s
}

// Start starts the trigger scheduler when AutoStart is set.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = s.clock.Now()
	cfg := s.cfg
	s.mu.Unlock()
	if !cfg.AutoStart {
		log.Printf("scheduler not started: AutoStart is off")
		return nil
	}
	return s.StartScheduler(ctx)
}

func (s *Service) StartScheduler(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]model.ScheduleEntry(nil), s.cfg.Schedule...)
	s.mu.Unlock()
	if err := s.sched.Start(ctx, entries); err != nil {
		return err
	}
	log.Printf("scheduler started: %s", config.FormatSchedule(entries))
	return nil
}

func (s *Service) StopScheduler() {
	s.sched.Stop()
}

// Close stops the scheduler, then drains the coordinator.
func (s *Service) Close() error {
	s.sched.Stop()
	return s.coord.Close()
}

// Reload applies a new configuration. The schedule is validated first; an
// invalid schedule leaves the service unchanged. Channel timeouts and the
// poll interval only change on restart.
func (s *Service) Reload(cfg config.Config) error {
	if err := config.ValidateSchedule(cfg.Schedule); err != nil {
		return err
	}
	if err := s.sched.Reload(cfg.Schedule); err != nil {
		return err
	}
	sources := s.buildSources(cfg)

	s.mu.Lock()
	s.cfg = cfg
	s.sources = sources
	s.mu.Unlock()

	s.coord.SetTarget(targetOf(cfg))
	log.Printf("configuration reloaded: schedule %s, printer %s", config.FormatSchedule(config.NormalizeSchedule(cfg.Schedule)), targetOf(cfg))
	return nil
}

// Content fetches the agenda and composes the receipt for reason.
func (s *Service) Content(ctx context.Context, reason model.Reason, now time.Time) ([]compose.Block, error) {
	s.mu.Lock()
	sources := s.sources
	cfg := s.cfg
	s.mu.Unlock()

	events, tasks, err := sources.Fetch(ctx, now)
	if err != nil {
		return nil, err
	}
	var overrides map[string]model.Priority
	if s.priorities != nil {
		ids := make([]string, 0, len(tasks))
		for _, t := range tasks {
			if t.ID != "" {
				ids = append(ids, t.ID)
			}
		}
		overrides, err = s.priorities.Priorities(ctx, ids)
		if err != nil {
			return nil, &agenda.ProviderError{Provider: "priorities", Err: err}
		}
	}
	return compose.Compose(compose.Input{
		Now:         now,
		Reason:      reason,
		Events:      events,
		Tasks:       tasks,
		Priorities:  overrides,
		Width:       cfg.PaperWidth,
		DefaultList: cfg.TaskListName,
	}), nil
}

// Preview composes the receipt a manual print would produce, as text.
func (s *Service) Preview(ctx context.Context) (string, error) {
	blocks, err := s.Content(ctx, model.Manual(), s.clock.Now())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	width := s.cfg.PaperWidth
	s.mu.Unlock()
	return compose.Text(blocks, width), nil
}

// PrintNow queues a manual print. With wait set it returns the finished job;
// otherwise the job is only requested.
func (s *Service) PrintNow(ctx context.Context, wait bool) (model.PrintJob, error) {
	t, err := s.coord.Submit(model.Manual())
	if err != nil {
		return model.PrintJob{}, err
	}
	return s.follow(ctx, t, model.Manual(), wait)
}

// TestPrinter queues a self-test page behind any pending job.
func (s *Service) TestPrinter(ctx context.Context, wait bool) (model.PrintJob, error) {
	t, err := s.coord.SubmitTest()
	if err != nil {
		return model.PrintJob{}, err
	}
	return s.follow(ctx, t, model.PrinterTest(), wait)
}

func (s *Service) follow(ctx context.Context, t *coordinator.Ticket, reason model.Reason, wait bool) (model.PrintJob, error) {
	if !wait {
		return model.PrintJob{ID: t.ID, Reason: reason, State: model.JobRequested}, nil
	}
	job, err := t.Wait(ctx)
	if err != nil {
		return model.PrintJob{ID: t.ID, Reason: reason, State: model.JobRequested}, err
	}
	return job, nil
}

func (s *Service) Status() Status {
	st := Status{
		Scheduler: s.sched.Status(),
		Target:    s.coord.Target().String(),
		Pending:   s.coord.Pending(),
		Recent:    s.coord.History(),
	}
	if s.channel != nil {
		_, st.Connected = s.channel.Connected()
	}
	if job, ok := s.coord.Current(); ok {
		st.Current = &job
	}
	s.mu.Lock()
	st.StartedAt = s.startedAt
	s.mu.Unlock()
	return st
}

// Config returns the active configuration.
func (s *Service) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) buildSources(cfg config.Config) Fetcher {
	if s.fixed != nil {
		return s.fixed
	}
	return agenda.NewSources(cfg.Calendars, cfg.TaskListName, s.tasks)
}

func channelOptions(cfg config.Config) printer.Options {
	return printer.Options{
		OpenTimeout:  cfg.PrinterOpenTimeout,
		WriteTimeout: cfg.PrinterWriteTimeout,
		Probe:        cfg.PrinterProbe,
		Width:        cfg.PaperWidth,
	}
}

func targetOf(cfg config.Config) printer.Target {
	return printer.Target{Port: cfg.PrinterPort, BaudRate: cfg.PrinterBaudRate}
}

// IsQueueClosed reports whether err came from a request after Close.
func IsQueueClosed(err error) bool {
	return errors.Is(err, coordinator.ErrClosed)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
