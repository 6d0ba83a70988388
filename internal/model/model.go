package model

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleEntry is a wall-clock time of day (24h) at which a print fires.
type ScheduleEntry struct {
	Hour   int
	Minute int
}

func (e ScheduleEntry) String() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

// Minutes returns the entry as minutes since midnight.
func (e ScheduleEntry) Minutes() int {
	return e.Hour*60 + e.Minute
}

func (e ScheduleEntry) Valid() bool {
	return e.Hour >= 0 && e.Hour <= 23 && e.Minute >= 0 && e.Minute <= 59
}

// On returns the instant the entry falls on for the local date of day.
func (e ScheduleEntry) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, e.Hour, e.Minute, 0, 0, day.Location())
}

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityNormal Priority = "Normal"
	PriorityLow    Priority = "Low"
)

// ParsePriority accepts any casing of High, Normal or Low.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return PriorityHigh, true
	case "normal", "":
		return PriorityNormal, true
	case "low":
		return PriorityLow, true
	default:
		return PriorityNormal, false
	}
}

// Normalize maps unknown or empty priorities to Normal.
func (p Priority) Normalize() Priority {
	v, _ := ParsePriority(string(p))
	return v
}

// Rank orders priorities for printing: High, Normal, Low.
func (p Priority) Rank() int {
	switch p.Normalize() {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

type TaskItem struct {
	ID        string
	Title     string
	List      string
	Priority  Priority
	Completed bool
}

type CalendarEvent struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
}

type ReasonKind string

const (
	ReasonManual    ReasonKind = "manual"
	ReasonScheduled ReasonKind = "scheduled"
	ReasonTest      ReasonKind = "test"
)

// Reason says why a print job exists. Entry is set only for scheduled jobs.
type Reason struct {
	Kind  ReasonKind
	Entry ScheduleEntry
}

func Manual() Reason {
	return Reason{Kind: ReasonManual}
}

func Scheduled(entry ScheduleEntry) Reason {
	return Reason{Kind: ReasonScheduled, Entry: entry}
}

func PrinterTest() Reason {
	return Reason{Kind: ReasonTest}
}

func (r Reason) String() string {
	if r.Kind == ReasonScheduled {
		return "scheduled(" + r.Entry.String() + ")"
	}
	if r.Kind == "" {
		return string(ReasonManual)
	}
	return string(r.Kind)
}

type JobState string

const (
	JobRequested    JobState = "requested"
	JobComposing    JobState = "composing"
	JobTransmitting JobState = "transmitting"
	JobDone         JobState = "done"
)

type FailureKind string

const (
	FailureConnection FailureKind = "connection-error"
	FailureTransmit   FailureKind = "transmit-error"
	FailureProvider   FailureKind = "provider-error"
	FailureCanceled   FailureKind = "canceled"
)

// Outcome is the terminal result of a job. Kind is empty on success.
type Outcome struct {
	Success bool
	Kind    FailureKind
	Message string
}

func Succeeded() Outcome {
	return Outcome{Success: true}
}

func Failed(kind FailureKind, err error) Outcome {
	out := Outcome{Kind: kind}
	if err != nil {
		out.Message = err.Error()
	}
	return out
}

func (o Outcome) String() string {
	if o.Success {
		return "success"
	}
	return "failure(" + string(o.Kind) + ")"
}

// PrintJob is a single attempt to print. Retries after a terminal outcome
// create a new job with a new ID.
type PrintJob struct {
	ID          string
	Reason      Reason
	State       JobState
	Outcome     Outcome
	Attempts    int
	Bytes       int
	RequestedAt time.Time
	DoneAt      *time.Time
}

type ActivityKind string

const (
	ActivityJob            ActivityKind = "job"
	ActivitySchedulerStart ActivityKind = "scheduler-start"
	ActivitySchedulerStop  ActivityKind = "scheduler-stop"
)

// Activity is what the observer receives for every finished job and every
// scheduler transition.
type Activity struct {
	Time    time.Time
	Kind    ActivityKind
	Reason  Reason
	JobID   string
	Outcome Outcome
	Detail  string
	// Job is the finished job for job activities, nil otherwise.
	Job *PrintJob
}
