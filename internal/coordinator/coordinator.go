// Package coordinator turns print intents into finished print jobs. Intents
// from the scheduler and from manual requests share one FIFO queue drained by
// a single worker, so the printer never sees two transmissions at once.
package coordinator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"agendaprint/internal/activity"
	"agendaprint/internal/compose"
	"agendaprint/internal/model"
	"agendaprint/internal/printer"
)

var ErrClosed = errors.New("coordinator closed")

// maxAttempts is the first attempt plus one reconnect-and-retry.
const maxAttempts = 2

const historySize = 50

// ContentSource builds the receipt for a job. Any error is reported as a
// provider failure.
type ContentSource interface {
	Content(ctx context.Context, reason model.Reason, now time.Time) ([]compose.Block, error)
}

type ContentFunc func(ctx context.Context, reason model.Reason, now time.Time) ([]compose.Block, error)

func (f ContentFunc) Content(ctx context.Context, reason model.Reason, now time.Time) ([]compose.Block, error) {
	return f(ctx, reason, now)
}

// Printer is the part of *printer.Channel the coordinator drives.
type Printer interface {
	Connect(ctx context.Context, t printer.Target) error
	Transmit(ctx context.Context, blocks []compose.Block) (int, error)
	Test(ctx context.Context, t printer.Target, now time.Time) error
	Disconnect() error
}

// Archiver keeps a copy of every receipt that reached the printer.
type Archiver interface {
	Archive(job model.PrintJob, blocks []compose.Block) error
}

type Options struct {
	Content  ContentSource
	Printer  Printer
	Target   printer.Target
	Observer activity.Observer
	Archiver Archiver
	Now      func() time.Time
	NewID    func() string
}

type Coordinator struct {
	content  ContentSource
	printer  Printer
	observer activity.Observer
	archiver Archiver
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Ticket
	closed  bool
	target  printer.Target
	current *model.PrintJob
	history []model.PrintJob

	done chan struct{}
}

// Ticket follows one queued job to its outcome.
type Ticket struct {
	ID   string
	job  model.PrintJob
	test bool
	done chan struct{}
}

// Done is closed once the job reached a terminal outcome.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the job finished or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (model.PrintJob, error) {
	select {
	case <-t.done:
		return t.job, nil
	case <-ctx.Done():
		return model.PrintJob{}, ctx.Err()
	}
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		content:  opts.Content,
		printer:  opts.Printer,
		observer: opts.Observer,
		archiver: opts.Archiver,
		now:      opts.Now,
		newID:    opts.NewID,
		target:   opts.Target,
		done:     make(chan struct{}),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.observer == nil {
		c.observer = activity.Func(nil)
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c
}

// Submit queues a print intent.
func (c *Coordinator) Submit(reason model.Reason) (*Ticket, error) {
	return c.enqueue(reason, false)
}

// Dispatch queues a print intent without tracking it.
func (c *Coordinator) Dispatch(reason model.Reason) error {
	_, err := c.enqueue(reason, false)
	return err
}

// SubmitTest queues a printer self-test against the current target. It
// waits its turn like any print.
func (c *Coordinator) SubmitTest() (*Ticket, error) {
	return c.enqueue(model.PrinterTest(), true)
}

func (c *Coordinator) enqueue(reason model.Reason, test bool) (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	t := &Ticket{
		ID:   c.newID(),
		test: test,
		done: make(chan struct{}),
	}
	t.job = model.PrintJob{
		ID:          t.ID,
		Reason:      reason,
		State:       model.JobRequested,
		RequestedAt: c.now(),
	}
	c.queue = append(c.queue, t)
	c.cond.Signal()
	return t, nil
}

// SetTarget changes the printer used by jobs that start after the call.
func (c *Coordinator) SetTarget(t printer.Target) {
	c.mu.Lock()
	c.target = t
	c.mu.Unlock()
}

func (c *Coordinator) Target() printer.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Pending is the number of queued jobs, not counting the one in progress.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Coordinator) Current() (model.PrintJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.PrintJob{}, false
	}
	return *c.current, true
}

// History returns recently finished jobs, newest first.
func (c *Coordinator) History() []model.PrintJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.PrintJob, len(c.history))
	for i, job := range c.history {
		out[len(c.history)-1-i] = job
	}
	return out
}

// Close stops accepting intents, fails every queued job as canceled and
// waits for the job in progress. The printer connection is released.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	queued := c.queue
	c.queue = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	for _, t := range queued {
		c.finish(t, t.job, model.Failed(model.FailureCanceled, ErrClosed), nil)
	}
	<-c.done
	if c.printer != nil {
		return c.printer.Disconnect()
	}
	return nil
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		t, target, ok := c.next()
		if !ok {
			return
		}
		c.process(t, target)
	}
}

func (c *Coordinator) next() (*Ticket, printer.Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return nil, printer.Target{}, false
	}
	t := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	job := t.job
	c.current = &job
	return t, c.target, true
}

func (c *Coordinator) setState(job *model.PrintJob, state model.JobState) {
	job.State = state
	c.mu.Lock()
	if c.current != nil && c.current.ID == job.ID {
		*c.current = *job
	}
	c.mu.Unlock()
}

func (c *Coordinator) process(t *Ticket, target printer.Target) {
	ctx := context.Background()
	job := t.job

	if t.test {
		c.setState(&job, model.JobTransmitting)
		job.Attempts = 1
		err := c.printer.Test(ctx, target, c.now())
		if err != nil {
			log.Printf("printer test on %s failed: %v", target, err)
			c.finish(t, job, model.Failed(failureKind(err), err), nil)
			return
		}
		c.finish(t, job, model.Succeeded(), nil)
		return
	}

	c.setState(&job, model.JobComposing)
	blocks, err := c.content.Content(ctx, job.Reason, c.now())
	if err != nil {
		log.Printf("print job %s: agenda unavailable: %v", job.ID, err)
		c.finish(t, job, model.Failed(model.FailureProvider, err), nil)
		return
	}

	c.setState(&job, model.JobTransmitting)
	n, attempts, err := c.deliver(ctx, job.ID, target, blocks)
	job.Attempts = attempts
	job.Bytes = n
	if err != nil {
		c.finish(t, job, model.Failed(failureKind(err), err), nil)
		return
	}
	c.finish(t, job, model.Succeeded(), blocks)
}

// deliver connects and transmits, reconnecting once after a connection or
// transmit failure.
func (c *Coordinator) deliver(ctx context.Context, jobID string, target printer.Target, blocks []compose.Block) (n, attempts int, err error) {
	for attempts < maxAttempts {
		attempts++
		err = c.printer.Connect(ctx, target)
		if err == nil {
			n, err = c.printer.Transmit(ctx, blocks)
			if err == nil {
				return n, attempts, nil
			}
		}
		log.Printf("print job %s: attempt %d on %s failed: %v", jobID, attempts, target, err)
		if !printer.IsConnection(err) && !printer.IsTransmit(err) {
			return 0, attempts, err
		}
		_ = c.printer.Disconnect()
	}
	return 0, attempts, err
}

func failureKind(err error) model.FailureKind {
	switch {
	case printer.IsConnection(err):
		return model.FailureConnection
	case printer.IsTransmit(err):
		return model.FailureTransmit
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return model.FailureCanceled
	default:
		return model.FailureTransmit
	}
}

func (c *Coordinator) finish(t *Ticket, job model.PrintJob, outcome model.Outcome, blocks []compose.Block) {
	doneAt := c.now()
	job.State = model.JobDone
	job.Outcome = outcome
	job.DoneAt = &doneAt

	if outcome.Success && blocks != nil && c.archiver != nil {
		if err := c.archiver.Archive(job, blocks); err != nil {
			log.Printf("print job %s: archive failed: %v", job.ID, err)
		}
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == job.ID {
		c.current = nil
	}
	c.history = append(c.history, job)
	if len(c.history) > historySize {
		c.history = append([]model.PrintJob(nil), c.history[len(c.history)-historySize:]...)
	}
	c.mu.Unlock()

	recorded := job
	c.observer.Observe(model.Activity{
		Time:    doneAt,
		Kind:    model.ActivityJob,
		Reason:  job.Reason,
		JobID:   job.ID,
		Outcome: outcome,
		Job:     &recorded,
	})

	t.job = job
	close(t.done)
}
