package server

import (
	"time"

	"agendaprint/internal/config"
	"agendaprint/internal/daemon"
	"agendaprint/internal/model"
	"agendaprint/internal/spool"
	"agendaprint/internal/store"
)

// JobView is the JSON form of a print job.
type JobView struct {
	ID          string     `json:"id"`
	Reason      string     `json:"reason"`
	State       string     `json:"state"`
	Outcome     string     `json:"outcome,omitempty"`
	Message     string     `json:"message,omitempty"`
	Attempts    int        `json:"attempts"`
	Bytes       int        `json:"bytes"`
	RequestedAt time.Time  `json:"requested_at"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
}

type StatusView struct {
	Running    bool      `json:"running"`
	Schedule   []string  `json:"schedule"`
	FiredToday []string  `json:"fired_today"`
	NextFire   string    `json:"next_fire,omitempty"`
	Printer    string    `json:"printer"`
	Connected  bool      `json:"connected"`
	Pending    int       `json:"pending"`
	Current    *JobView  `json:"current,omitempty"`
	Recent     []JobView `json:"recent"`
	StartedAt  time.Time `json:"started_at"`
}

type TaskView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	List      string `json:"list,omitempty"`
	Priority  string `json:"priority"`
	Completed bool   `json:"completed"`
}

// TaskRequest is the body of POST /tasks.
type TaskRequest struct {
	Title    string `json:"title"`
	List     string `json:"list"`
	Priority string `json:"priority"`
}

// PasswordRequest is the body of PUT /users/{name}/password.
type PasswordRequest struct {
	Password string `json:"password"`
}

type PriorityView struct {
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
}

type ActivityView struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Reason  string    `json:"reason,omitempty"`
	JobID   string    `json:"job_id,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}

type SpoolView struct {
	JobID string `json:"job_id"`
	Raw   string `json:"raw,omitempty"`
	Text  string `json:"text,omitempty"`
}

type ErrorView struct {
	Error string `json:"error"`
}

func jobView(job model.PrintJob) JobView {
	v := JobView{
		ID:          job.ID,
		Reason:      job.Reason.String(),
		State:       string(job.State),
		Message:     job.Outcome.Message,
		Attempts:    job.Attempts,
		Bytes:       job.Bytes,
		RequestedAt: job.RequestedAt,
		DoneAt:      job.DoneAt,
	}
	if job.State == model.JobDone {
		v.Outcome = job.Outcome.String()
	}
	return v
}

func jobViews(jobs []model.PrintJob) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobView(j))
	}
	return out
}

func statusView(st daemon.Status) StatusView {
	v := StatusView{
		Running:    st.Scheduler.Running,
		Schedule:   entryStrings(st.Scheduler.Entries),
		FiredToday: entryStrings(st.Scheduler.FiredToday),
		Printer:    st.Target,
		Connected:  st.Connected,
		Pending:    st.Pending,
		Recent:     jobViews(st.Recent),
		StartedAt:  st.StartedAt,
	}
	if !st.Scheduler.NextFire.IsZero() {
		v.NextFire = st.Scheduler.NextFire.Format(time.RFC3339)
	}
	if st.Current != nil {
		cur := jobView(*st.Current)
		v.Current = &cur
	}
	return v
}

func entryStrings(entries []model.ScheduleEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.String())
	}
	return out
}

func taskView(t model.TaskItem) TaskView {
	return TaskView{ID: t.ID, Title: t.Title, List: t.List, Priority: string(t.Priority.Normalize()), Completed: t.Completed}
}

func activityView(r store.ActivityRecord) ActivityView {
	return ActivityView{Time: r.Time, Kind: string(r.Kind), Reason: r.Reason, JobID: r.JobID, Outcome: r.Outcome, Detail: r.Detail}
}

func spoolView(e spool.Entry) SpoolView {
	return SpoolView{JobID: e.JobID, Raw: e.Raw, Text: e.Text}
}

// scheduleString is used in reload responses.
func scheduleString(cfg config.Config) string {
	return config.FormatSchedule(config.NormalizeSchedule(cfg.Schedule))
}
