package store

import (
	"context"
	"database/sql"
	"strings"
)

func (s *Store) migrate(ctx context.Context) error {
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS users (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                username TEXT NOT NULL UNIQUE,
                password_hash TEXT NOT NULL,
                is_admin INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
            )`,
			`CREATE TABLE IF NOT EXISTS task_priorities (
                task_id TEXT PRIMARY KEY,
                priority TEXT NOT NULL DEFAULT 'Normal',
                updated_at DATETIME NOT NULL
            )`,
			`CREATE TABLE IF NOT EXISTS tasks (
                id TEXT PRIMARY KEY,
                title TEXT NOT NULL DEFAULT '',
                list_name TEXT NOT NULL DEFAULT '',
                completed INTEGER NOT NULL DEFAULT 0,
                position INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL,
                completed_at DATETIME
            )`,
			`CREATE TABLE IF NOT EXISTS print_jobs (
                id TEXT PRIMARY KEY,
                reason TEXT NOT NULL,
                entry TEXT NOT NULL DEFAULT '',
                state TEXT NOT NULL,
                success INTEGER NOT NULL DEFAULT 0,
                failure_kind TEXT NOT NULL DEFAULT '',
                message TEXT NOT NULL DEFAULT '',
                attempts INTEGER NOT NULL DEFAULT 0,
                bytes INTEGER NOT NULL DEFAULT 0,
                requested_at DATETIME NOT NULL,
                done_at DATETIME
            )`,
			`CREATE TABLE IF NOT EXISTS activity (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                kind TEXT NOT NULL,
                reason TEXT NOT NULL DEFAULT '',
                job_id TEXT NOT NULL DEFAULT '',
                outcome TEXT NOT NULL DEFAULT '',
                detail TEXT NOT NULL DEFAULT '',
                created_at DATETIME NOT NULL
            )`,
			`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed)`,
			`CREATE INDEX IF NOT EXISTS idx_print_jobs_requested_at ON print_jobs(requested_at)`,
			`CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity(created_at)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if err := ensureColumn(ctx, tx, "tasks", "position", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
		return nil
	})
}

func ensureColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+definition)
	return err
}
