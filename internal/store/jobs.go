package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"agendaprint/internal/model"
)

const observeTimeout = 5 * time.Second

// RecordJob inserts or replaces the history row of a job.
func (s *Store) RecordJob(ctx context.Context, job model.PrintJob) error {
	var done sql.NullTime
	if job.DoneAt != nil {
		done = sql.NullTime{Time: job.DoneAt.UTC(), Valid: true}
	}
	entry := ""
	if job.Reason.Kind == model.ReasonScheduled {
		entry = job.Reason.Entry.String()
	}
	success := 0
	if job.Outcome.Success {
		success = 1
	}
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO print_jobs (id, reason, entry, state, success, failure_kind, message, attempts, bytes, requested_at, done_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                state = excluded.state,
                success = excluded.success,
                failure_kind = excluded.failure_kind,
                message = excluded.message,
                attempts = excluded.attempts,
                bytes = excluded.bytes,
                done_at = excluded.done_at
        `, job.ID, string(job.Reason.Kind), entry, string(job.State), success, string(job.Outcome.Kind), job.Outcome.Message,
			job.Attempts, job.Bytes, job.RequestedAt.UTC(), done)
		return err
	})
}

// ListJobs returns up to limit jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]model.PrintJob, error) {
	if limit <= 0 {
		limit = 50
	}
	jobs := []model.PrintJob{}
	err := s.WithTx(ctx, true, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
            SELECT id, reason, entry, state, success, failure_kind, message, attempts, bytes, requested_at, done_at
            FROM print_jobs
            ORDER BY requested_at DESC, rowid DESC
            LIMIT ?
        `, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var job model.PrintJob
			var reason, entry, state, kind string
			var success int
			var done sql.NullTime
			if err := rows.Scan(&job.ID, &reason, &entry, &state, &success, &kind, &job.Outcome.Message, &job.Attempts, &job.Bytes, &job.RequestedAt, &done); err != nil {
				return err
			}
			job.Reason = model.Reason{Kind: model.ReasonKind(reason)}
			if job.Reason.Kind == model.ReasonScheduled {
				job.Reason.Entry = parseEntry(entry)
			}
			job.State = model.JobState(state)
			job.Outcome.Success = success != 0
			job.Outcome.Kind = model.FailureKind(kind)
			if done.Valid {
				job.DoneAt = &done.Time
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	return jobs, err
}

func (s *Store) RecordActivity(ctx context.Context, a model.Activity) error {
	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	reason := ""
	if a.Kind == model.ActivityJob {
		reason = a.Reason.String()
	}
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO activity (kind, reason, job_id, outcome, detail, created_at)
            VALUES (?, ?, ?, ?, ?, ?)
        `, string(a.Kind), reason, a.JobID, a.Outcome.String(), a.Detail, ts.UTC())
		return err
	})
}

// ActivityRecord is a stored activity row. Reason and Outcome are kept in
// their printed form.
type ActivityRecord struct {
	ID      int64
	Kind    model.ActivityKind
	Reason  string
	JobID   string
	Outcome string
	Detail  string
	Time    time.Time
}

func (s *Store) ListActivity(ctx context.Context, limit int) ([]ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []ActivityRecord{}
	err := s.WithTx(ctx, true, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
            SELECT id, kind, reason, job_id, outcome, detail, created_at
            FROM activity
            ORDER BY id DESC
            LIMIT ?
        `, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r ActivityRecord
			var kind string
			if err := rows.Scan(&r.ID, &kind, &r.Reason, &r.JobID, &r.Outcome, &r.Detail, &r.Time); err != nil {
				return err
			}
			r.Kind = model.ActivityKind(kind)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// Observe stores every activity, and the finished job for job activities.
// Failures are logged; observers cannot report errors.
func (s *Store) Observe(a model.Activity) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()
	if a.Job != nil {
		if err := s.RecordJob(ctx, *a.Job); err != nil {
			log.Printf("store: record job %s: %v", a.Job.ID, err)
		}
	}
	if err := s.RecordActivity(ctx, a); err != nil {
		log.Printf("store: record activity %s: %v", a.Kind, err)
	}
}

func parseEntry(value string) model.ScheduleEntry {
	var e model.ScheduleEntry
	if _, err := fmt.Sscanf(value, "%d:%d", &e.Hour, &e.Minute); err != nil {
		return model.ScheduleEntry{}
	}
	return e
}
