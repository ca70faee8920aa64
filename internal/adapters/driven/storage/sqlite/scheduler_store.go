package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*schedulerStore)(nil)

// schedulerStore persists the sync task and its run history.
type schedulerStore struct {
	store *Store
}

const (
	selectTask = `SELECT id, name, interval_seconds, last_run, next_run, last_error, last_success, enabled
		FROM scheduled_tasks`

	upsertTask = `INSERT INTO scheduled_tasks
			(id, name, interval_seconds, last_run, next_run, last_error, last_success, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_seconds = excluded.interval_seconds,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_error = excluded.last_error,
			last_success = excluded.last_success,
			enabled = excluded.enabled`

	insertResult = `INSERT INTO task_results
			(run_id, task_id, started_at, ended_at, success, error, items_processed, items_failed, cursor_advanced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectHistory = `SELECT run_id, task_id, started_at, ended_at, success, error,
			items_processed, items_failed, cursor_advanced
		FROM task_results
		WHERE task_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`

	// Window function keeps the newest rows per task.
	pruneResults = `DELETE FROM task_results WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY task_id ORDER BY started_at DESC, id DESC
				) AS rn
				FROM task_results
			) WHERE rn <= ?
		)`
)

// GetTask retrieves a task by ID.
// Returns nil and no error if the task does not exist.
func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	task, err := scanTask(s.store.db.QueryRowContext(ctx, selectTask+" WHERE id = ?", taskID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return task, nil
}

// ListTasks returns every scheduled task ordered by ID.
func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, selectTask+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collect(rows, scanTask)
}

// SaveTask creates or replaces a task keyed by its ID.
func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.ErrInvalidInput
	}
	if _, err := s.store.db.ExecContext(ctx, upsertTask,
		task.ID,
		task.Name,
		int64(task.Interval/time.Second),
		formatTime(task.LastRun),
		formatTime(task.NextRun),
		nullString(task.LastError),
		formatTime(task.LastSuccess),
		boolToInt(task.Enabled),
	); err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes a task. Deleting an unknown ID is not an error.
func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM scheduled_tasks WHERE id = ?", taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// RecordResult appends one run to the task history.
func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	if _, err := s.store.db.ExecContext(ctx, insertResult,
		nullString(result.ID),
		result.TaskID,
		formatTime(result.StartedAt),
		formatTime(result.EndedAt),
		boolToInt(result.Success),
		nullString(result.Error),
		result.ItemsProcessed,
		result.ItemsFailed,
		boolToInt(result.CursorAdvanced),
	); err != nil {
		return fmt.Errorf("record result for %s: %w", result.TaskID, err)
	}
	return nil
}

// GetTaskHistory returns up to limit results for a task, newest first.
func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	rows, err := s.store.db.QueryContext(ctx, selectHistory, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("task history %s: %w", taskID, err)
	}
	return collect(rows, scanResult)
}

// PruneHistory deletes all but the newest keep results of each task.
func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if _, err := s.store.db.ExecContext(ctx, pruneResults, keep); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// collect scans every row with scan and closes rows.
func collect[T any](rows *sql.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanTask scans a scheduled_tasks row. sql.ErrNoRows is passed through
// unwrapped so GetTask can detect a missing task.
func scanTask(row scanner) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var seconds int64
	var lastRun, nextRun, lastErr, lastOK sql.NullString
	var enabled int
	err := row.Scan(&task.ID, &task.Name, &seconds, &lastRun, &nextRun, &lastErr, &lastOK, &enabled)
	if err != nil {
		return nil, err
	}

	task.Interval = time.Duration(seconds) * time.Second
	task.LastRun = parseTime(lastRun)
	task.NextRun = parseTime(nextRun)
	task.LastError = lastErr.String
	task.LastSuccess = parseTime(lastOK)
	task.Enabled = enabled == 1
	return &task, nil
}

// scanResult scans a task_results row.
func scanResult(row scanner) (*domain.TaskResult, error) {
	var res domain.TaskResult
	var runID, started, ended, msg sql.NullString
	var success, advanced int
	err := row.Scan(&runID, &res.TaskID, &started, &ended, &success, &msg,
		&res.ItemsProcessed, &res.ItemsFailed, &advanced)
	if err != nil {
		return nil, fmt.Errorf("scan task result: %w", err)
	}

	res.ID = runID.String
	res.StartedAt = parseTime(started)
	res.EndedAt = parseTime(ended)
	res.Success = success == 1
	res.Error = msg.String
	res.CursorAdvanced = advanced == 1
	return &res, nil
}
