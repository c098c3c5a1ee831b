// Package postgres implements the store interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/logger"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// taskColumns is the select list shared by every task query.
const taskColumns = `task_id, name, description, process_id, status_id, execution_mode_id, movement_id, schedule, created_at, updated_at`

// TaskStore implements store.TaskStore using PostgreSQL. Every status
// transition updates the task row and appends a task_logs row inside a
// single transaction, which is what keeps the "current status equals
// newest log" invariant intact under concurrent workers.
type TaskStore struct {
	db      *sql.DB
	lookups *Lookups
}

// Ensure TaskStore implements the store interface
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a new TaskStore over the given connection pool
// and primed lookup cache.
func NewTaskStore(db *sql.DB, lookups *Lookups) *TaskStore {
	return &TaskStore{
		db:      db,
		lookups: lookups,
	}
}

// CreateTask inserts a pending task plus its initial log entry atomically.
func (s *TaskStore) CreateTask(ctx context.Context, params store.CreateTaskParams) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	processID, err := s.lookups.ProcessID(params.Process)
	if err != nil {
		return nil, err
	}
	modeID, err := s.lookups.ModeID(params.ExecutionMode)
	if err != nil {
		return nil, err
	}
	statusID := s.lookups.StatusID(ctx, domain.TaskStatusPending)

	now := time.Now().UTC()
	task := &domain.Task{
		Name:          params.Name,
		Description:   params.Description,
		Process:       params.Process,
		Status:        domain.TaskStatusPending,
		ExecutionMode: params.ExecutionMode,
		MovementID:    params.MovementID,
		Schedule:      params.Schedule,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	initialMessage := "task created"
	if params.Schedule != nil {
		initialMessage = fmt.Sprintf("task scheduled for %s", params.Schedule.UTC().Format(time.RFC3339))
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		insertTask := `
			INSERT INTO tasks (name, description, process_id, status_id, execution_mode_id, movement_id, schedule, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING task_id
		`
		err := tx.QueryRowContext(ctx, insertTask,
			params.Name,
			params.Description,
			processID,
			statusID,
			modeID,
			params.MovementID,
			nullableTime(params.Schedule),
			now,
			now,
		).Scan(&task.ID)
		if err != nil {
			return store.NewStoreError("task", "create", "failed to insert task", err)
		}

		return insertTaskLog(ctx, tx, task.ID, statusID, initialMessage, now)
	})
	if err != nil {
		log.Error("failed to create task",
			"process", string(params.Process),
			"movement_id", params.MovementID,
			"error", err)
		return nil, err
	}

	return task, nil
}

// TransitionStatus updates the task status and appends a log entry atomically.
func (s *TaskStore) TransitionStatus(
	ctx context.Context,
	taskID int64,
	status domain.TaskStatus,
	message string,
) (*domain.Task, error) {
	statusID := s.lookups.StatusID(ctx, status)
	now := time.Now().UTC()

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status_id = $1, updated_at = $2 WHERE task_id = $3`,
			statusID, now, taskID,
		)
		if err != nil {
			return store.NewStoreError("task", "transition", "failed to update task status", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return store.NewStoreError("task", "transition", "failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			return store.ErrTaskNotFound
		}

		return insertTaskLog(ctx, tx, taskID, statusID, message, now)
	})
	if err != nil {
		return nil, err
	}

	return s.getTask(ctx, s.db, taskID)
}

// ClaimTask performs the conditional transition that guarantees
// at-most-once dispatch when a queue consumer and the sweeper race on
// the same task. The update only applies while the task is still at the
// expected status; the log row rides in the same transaction.
func (s *TaskStore) ClaimTask(
	ctx context.Context,
	taskID int64,
	expected domain.TaskStatus,
	next domain.TaskStatus,
	message string,
) error {
	expectedID := s.lookups.StatusID(ctx, expected)
	nextID := s.lookups.StatusID(ctx, next)
	now := time.Now().UTC()

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status_id = $1, updated_at = $2 WHERE task_id = $3 AND status_id = $4`,
			nextID, now, taskID, expectedID,
		)
		if err != nil {
			return store.NewStoreError("task", "claim", "failed to claim task", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return store.NewStoreError("task", "claim", "failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM tasks WHERE task_id = $1)`, taskID,
			).Scan(&exists)
			if err != nil {
				return store.NewStoreError("task", "claim", "failed to check task existence", err)
			}
			if !exists {
				return store.ErrTaskNotFound
			}
			return store.ErrTaskAlreadyClaimed
		}

		return insertTaskLog(ctx, tx, taskID, nextID, message, now)
	})
}

// FindDueTasks returns tasks at the given status whose schedule has
// elapsed as of asOf, oldest-due first. The comparison is inclusive and
// tasks without a schedule are due immediately.
func (s *TaskStore) FindDueTasks(
	ctx context.Context,
	status domain.TaskStatus,
	asOf time.Time,
) ([]*domain.Task, error) {
	statusID := s.lookups.StatusID(ctx, status)

	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE status_id = $1 AND (schedule IS NULL OR schedule <= $2)
		ORDER BY schedule ASC NULLS FIRST, task_id ASC
	`, taskColumns)

	rows, err := s.db.QueryContext(ctx, query, statusID, asOf.UTC())
	if err != nil {
		return nil, store.NewStoreError("task", "find_due", "failed to query due tasks", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "find_due", "error iterating task rows", err)
	}

	return tasks, nil
}

// GetTaskWithHistory returns the task and its full log history, newest
// log first.
func (s *TaskStore) GetTaskWithHistory(ctx context.Context, taskID int64) (*store.TaskWithHistory, error) {
	task, err := s.getTask(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_log_id, task_id, status_id, message, created_at
		FROM task_logs
		WHERE task_id = $1
		ORDER BY created_at DESC, task_log_id DESC
	`, taskID)
	if err != nil {
		return nil, store.NewStoreError("task_log", "list", "failed to query task logs", err)
	}
	defer rows.Close()

	result := &store.TaskWithHistory{Task: *task}
	for rows.Next() {
		var entry domain.TaskLog
		var statusID int64
		if err := rows.Scan(&entry.ID, &entry.TaskID, &statusID, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, store.NewStoreError("task_log", "list", "failed to scan task log row", err)
		}
		entry.Status = s.lookups.StatusName(statusID)
		result.Logs = append(result.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task_log", "list", "error iterating task log rows", err)
	}

	return result, nil
}

// FindFailedTasks returns all failed tasks, each with its single most
// recent log entry carrying the root-cause message.
func (s *TaskStore) FindFailedTasks(ctx context.Context) ([]*store.FailedTask, error) {
	failedID := s.lookups.StatusID(ctx, domain.TaskStatusFailed)

	query := `
		SELECT t.task_id, t.name, t.description, t.process_id, t.status_id, t.execution_mode_id,
		       t.movement_id, t.schedule, t.created_at, t.updated_at,
		       l.task_log_id, l.status_id, l.message, l.created_at
		FROM tasks t
		JOIN LATERAL (
			SELECT task_log_id, status_id, message, created_at
			FROM task_logs
			WHERE task_id = t.task_id
			ORDER BY created_at DESC, task_log_id DESC
			LIMIT 1
		) l ON true
		WHERE t.status_id = $1
		ORDER BY t.updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, failedID)
	if err != nil {
		return nil, store.NewStoreError("task", "find_failed", "failed to query failed tasks", err)
	}
	defer rows.Close()

	var failed []*store.FailedTask
	for rows.Next() {
		var (
			task        domain.Task
			processID   int64
			statusID    int64
			modeID      int64
			schedule    sql.NullTime
			logStatusID int64
			lastLog     domain.TaskLog
		)
		err := rows.Scan(
			&task.ID, &task.Name, &task.Description, &processID, &statusID, &modeID,
			&task.MovementID, &schedule, &task.CreatedAt, &task.UpdatedAt,
			&lastLog.ID, &logStatusID, &lastLog.Message, &lastLog.CreatedAt,
		)
		if err != nil {
			return nil, store.NewStoreError("task", "find_failed", "failed to scan failed task row", err)
		}

		task.Process = s.lookups.ProcessName(processID)
		task.Status = s.lookups.StatusName(statusID)
		task.ExecutionMode = s.lookups.ModeName(modeID)
		if schedule.Valid {
			t := schedule.Time
			task.Schedule = &t
		}
		lastLog.TaskID = task.ID
		lastLog.Status = s.lookups.StatusName(logStatusID)

		failed = append(failed, &store.FailedTask{Task: task, LastLog: lastLog})
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "find_failed", "error iterating failed task rows", err)
	}

	return failed, nil
}

// getTask loads one task by id.
func (s *TaskStore) getTask(ctx context.Context, db store.DBTX, taskID int64) (*domain.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE task_id = $1`, taskColumns)
	task, err := s.scanTask(db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask maps one task row onto the domain entity, resolving lookup
// ids back to their names.
func (s *TaskStore) scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task      domain.Task
		processID int64
		statusID  int64
		modeID    int64
		schedule  sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.Name, &task.Description, &processID, &statusID, &modeID,
		&task.MovementID, &schedule, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, store.NewStoreError("task", "scan", "failed to scan task row", err)
	}

	task.Process = s.lookups.ProcessName(processID)
	task.Status = s.lookups.StatusName(statusID)
	task.ExecutionMode = s.lookups.ModeName(modeID)
	if schedule.Valid {
		t := schedule.Time
		task.Schedule = &t
	}
	return &task, nil
}

// insertTaskLog appends one immutable history row. Always called inside
// the transaction that mutates the owning task.
func insertTaskLog(ctx context.Context, tx *sql.Tx, taskID, statusID int64, message string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO task_logs (task_id, status_id, message, created_at) VALUES ($1, $2, $3, $4)`,
		taskID, statusID, message, at,
	)
	if err != nil {
		return store.NewStoreError("task_log", "create", "failed to insert task log", err)
	}
	return nil
}

// nullableTime converts an optional time into its sql representation.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
