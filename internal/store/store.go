package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"agendaprint/internal/model"
)

type Store struct {
	db *sql.DB
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var ErrNotFound = errors.New("not found")

func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, readOnly bool, fn func(tx *sql.Tx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	opts := &sql.TxOptions{ReadOnly: readOnly}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// EnsureAdminUser creates the control API account from AGENDA_ADMIN_USER and
// AGENDA_ADMIN_PASS (admin/admin when unset) unless it already exists.
func (s *Store) EnsureAdminUser(ctx context.Context) error {
	user := os.Getenv("AGENDA_ADMIN_USER")
	pass := os.Getenv("AGENDA_ADMIN_PASS")
	if user == "" {
		user = "admin"
	}
	if pass == "" {
		pass = "admin"
	}
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		if _, err := s.GetUserByUsername(ctx, tx, user); err == nil {
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return s.CreateUser(ctx, tx, user, pass, true)
	})
}

func (s *Store) CreateUser(ctx context.Context, tx *sql.Tx, username, password string, admin bool) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	adminInt := 0
	if admin {
		adminInt = 1
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO users (username, password_hash, is_admin, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
    `, username, hash, adminInt, now, now)
	return err
}

func (s *Store) SetPassword(ctx context.Context, tx *sql.Tx, username, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE username = ?`, hash, time.Now().UTC(), username)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) GetUserByUsername(ctx context.Context, tx *sql.Tx, username string) (User, error) {
	var u User
	var isAdmin int
	err := tx.QueryRowContext(ctx, `
        SELECT id, username, password_hash, is_admin, created_at, updated_at
        FROM users
        WHERE username = ?
    `, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &isAdmin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.IsAdmin = isAdmin != 0
	return u, nil
}

func (s *Store) VerifyUser(ctx context.Context, tx *sql.Tx, username, password string) (User, error) {
	u, err := s.GetUserByUsername(ctx, tx, username)
	if err != nil {
		return User{}, err
	}
	if err := checkPassword(u.PasswordHash, password); err != nil {
		return User{}, err
	}
	return u, nil
}

// Priority returns the stored priority of a task. Tasks without a stored
// priority are Normal.
func (s *Store) Priority(ctx context.Context, taskID string) (model.Priority, error) {
	p := model.PriorityNormal
	err := s.WithTx(ctx, true, func(tx *sql.Tx) error {
		var v string
		err := tx.QueryRowContext(ctx, `SELECT priority FROM task_priorities WHERE task_id = ?`, taskID).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		p = model.Priority(v).Normalize()
		return nil
	})
	return p, err
}

func (s *Store) SetPriority(ctx context.Context, taskID string, p model.Priority) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return fmt.Errorf("empty task id")
	}
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		return setPriority(ctx, tx, taskID, p)
	})
}

func setPriority(ctx context.Context, tx *sql.Tx, taskID string, p model.Priority) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO task_priorities (task_id, priority, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(task_id) DO UPDATE SET priority = excluded.priority, updated_at = excluded.updated_at
    `, taskID, string(p.Normalize()), time.Now().UTC())
	return err
}

// Priorities returns the stored overrides for ids. A nil ids returns every
// stored override. Missing ids are absent from the map.
func (s *Store) Priorities(ctx context.Context, ids []string) (map[string]model.Priority, error) {
	out := map[string]model.Priority{}
	if ids != nil && len(ids) == 0 {
		return out, nil
	}
	query := `SELECT task_id, priority FROM task_priorities`
	var args []any
	if ids != nil {
		query += ` WHERE task_id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	err := s.WithTx(ctx, true, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id, v string
			if err := rows.Scan(&id, &v); err != nil {
				return err
			}
			out[id] = model.Priority(v).Normalize()
		}
		return rows.Err()
	})
	return out, err
}

// AddTask appends a task to the local list. A priority other than Normal is
// stored as the task's override.
func (s *Store) AddTask(ctx context.Context, title, list string, p model.Priority) (model.TaskItem, error) {
	task := model.TaskItem{
		ID:       uuid.NewString(),
		Title:    strings.TrimSpace(title),
		List:     strings.TrimSpace(list),
		Priority: p.Normalize(),
	}
	err := s.WithTx(ctx, false, func(tx *sql.Tx) error {
		var pos int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM tasks`).Scan(&pos); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO tasks (id, title, list_name, completed, position, created_at)
            VALUES (?, ?, ?, 0, ?, ?)
        `, task.ID, task.Title, task.List, pos+1, time.Now().UTC()); err != nil {
			return err
		}
		if task.Priority != model.PriorityNormal {
			return setPriority(ctx, tx, task.ID, task.Priority)
		}
		return nil
	})
	if err != nil {
		return model.TaskItem{}, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context, includeCompleted bool) ([]model.TaskItem, error) {
	query := `
        SELECT t.id, t.title, t.list_name, t.completed, COALESCE(p.priority, 'Normal')
        FROM tasks t
        LEFT JOIN task_priorities p ON p.task_id = t.id
    `
	if !includeCompleted {
		query += ` WHERE t.completed = 0`
	}
	query += ` ORDER BY t.position ASC`

	tasks := []model.TaskItem{}
	err := s.WithTx(ctx, true, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var task model.TaskItem
			var completed int
			var priority string
			if err := rows.Scan(&task.ID, &task.Title, &task.List, &completed, &priority); err != nil {
				return err
			}
			task.Completed = completed != 0
			task.Priority = model.Priority(priority).Normalize()
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	return tasks, err
}

func (s *Store) CompleteTask(ctx context.Context, id string) error {
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET completed = 1, completed_at = ? WHERE id = ?`, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return expectRow(res)
	})
}

// DeleteTask removes a local task and its priority override.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := expectRow(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM task_priorities WHERE task_id = ?`, id)
		return err
	})
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
