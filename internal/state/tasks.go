package state

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/openworkhq/openwork/pkg/models"
)

// pathSeparator joins authorized paths into one column. Authorized
// paths are absolute, so a newline can never appear inside one.
const pathSeparator = "\n"

// SaveTask upserts the task record and replaces its tool log in one
// transaction.
func (db *DB) SaveTask(task *models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var startedAt, completedAt any
		if task.StartedAt != nil {
			startedAt = formatTime(*task.StartedAt)
		}
		if task.CompletedAt != nil {
			completedAt = formatTime(*task.CompletedAt)
		}

		_, err := tx.Exec(`
			INSERT INTO tasks (id, description, authorized_paths, status, output, error, created_at, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				output = excluded.output,
				error = excluded.error,
				started_at = excluded.started_at,
				completed_at = excluded.completed_at
		`, task.ID, task.Description, strings.Join(task.AuthorizedPaths, pathSeparator),
			string(task.Status), task.Output, task.Error,
			formatTime(task.CreatedAt), startedAt, completedAt)
		if err != nil {
			return fmt.Errorf("save task %s: %w", task.ID, err)
		}

		if _, err := tx.Exec("DELETE FROM tool_log WHERE task_id = ?", task.ID); err != nil {
			return fmt.Errorf("clear tool log for %s: %w", task.ID, err)
		}
		for _, inv := range task.ToolLog {
			_, err := tx.Exec(`
				INSERT INTO tool_log (task_id, seq, tool, args, success, output, error, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, task.ID, inv.Seq, inv.Tool, inv.Args, boolToInt(inv.Success),
				inv.Output, inv.Error, formatTime(inv.Timestamp))
			if err != nil {
				return fmt.Errorf("save tool log entry %d for %s: %w", inv.Seq, task.ID, err)
			}
		}

		return nil
	})
}

// GetTask loads one task and its tool log.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, description, authorized_paths, status, output, error, created_at, started_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %s not found", id)
		}
		return nil, err
	}

	if err := db.loadToolLog(task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks loads all task records ordered by creation time, newest
// first, without their tool logs.
func (db *DB) ListTasks() ([]*models.Task, error) {
	rows, err := db.Query(`
		SELECT id, description, authorized_paths, status, output, error, created_at, started_at, completed_at
		FROM tasks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var task models.Task
	var paths, status string
	var output, errMsg sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString

	if err := s.Scan(&task.ID, &task.Description, &paths, &status,
		&output, &errMsg, &createdAt, &startedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if paths != "" {
		task.AuthorizedPaths = strings.Split(paths, pathSeparator)
	}
	task.Status = models.TaskStatus(status)
	task.Output = output.String
	task.Error = errMsg.String

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", task.ID, err)
	}
	task.CreatedAt = created
	task.StartedAt = parseNullableTime(startedAt)
	task.CompletedAt = parseNullableTime(completedAt)

	return &task, nil
}

func (db *DB) loadToolLog(task *models.Task) error {
	rows, err := db.Query(`
		SELECT seq, tool, args, success, output, error, timestamp
		FROM tool_log WHERE task_id = ? ORDER BY seq
	`, task.ID)
	if err != nil {
		return fmt.Errorf("load tool log for %s: %w", task.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var inv models.ToolInvocation
		var success int
		var output, errMsg sql.NullString
		var ts string
		if err := rows.Scan(&inv.Seq, &inv.Tool, &inv.Args, &success, &output, &errMsg, &ts); err != nil {
			return fmt.Errorf("scan tool log for %s: %w", task.ID, err)
		}
		inv.Success = success != 0
		inv.Output = output.String
		inv.Error = errMsg.String
		parsed, err := parseTime(ts)
		if err != nil {
			return fmt.Errorf("parse tool log timestamp for %s: %w", task.ID, err)
		}
		inv.Timestamp = parsed
		task.ToolLog = append(task.ToolLog, inv)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
