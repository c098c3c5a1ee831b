package store

import (
	"context"
	"time"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
)

// CreateTaskParams carries everything needed to create a pending task.
type CreateTaskParams struct {
	Name          string
	Description   string
	Process       domain.ProcessKind
	ExecutionMode domain.ExecutionMode
	MovementID    int64
	// Schedule is the earliest time the task should be processed.
	// Nil means "as soon as possible".
	Schedule *time.Time
}

// TaskWithHistory is a task together with its full status history.
// Logs are ordered newest-first; audit replay reverses the slice.
type TaskWithHistory struct {
	Task domain.Task
	Logs []domain.TaskLog
}

// FailedTask is a failed task with only its most recent log entry,
// which carries the root-cause message for the operator retry dashboard.
type FailedTask struct {
	Task    domain.Task
	LastLog domain.TaskLog
}

// TaskStore defines the persistence contract for tasks and their status
// history. Implementations must keep the task row and its log entries
// consistent: every transition updates the task and appends exactly one
// log row in the same transaction.
type TaskStore interface {
	// CreateTask inserts a pending task plus its initial log entry
	// atomically. Returns ErrProcessNotFound if the process name is
	// missing from the lookup table.
	CreateTask(ctx context.Context, params CreateTaskParams) (*domain.Task, error)

	// TransitionStatus updates the task status and appends a log entry
	// atomically. An unknown status name degrades to pending with a
	// warning rather than failing, so in-flight work is never lost to a
	// misconfigured lookup table.
	TransitionStatus(
		ctx context.Context,
		taskID int64,
		status domain.TaskStatus,
		message string,
	) (*domain.Task, error)

	// ClaimTask performs a conditional transition: the update only
	// applies while the task is still at the expected status. Returns
	// ErrTaskAlreadyClaimed when another worker got there first. This is
	// the at-most-once dispatch guard shared by queue consumers and the
	// scheduled sweeper.
	ClaimTask(
		ctx context.Context,
		taskID int64,
		expected domain.TaskStatus,
		next domain.TaskStatus,
		message string,
	) error

	// FindDueTasks returns tasks at the given status whose schedule has
	// elapsed as of asOf (inclusive), oldest-due first. Tasks without a
	// schedule are due immediately. The read does not mutate anything.
	FindDueTasks(ctx context.Context, status domain.TaskStatus, asOf time.Time) ([]*domain.Task, error)

	// GetTaskWithHistory returns the task and its full log history.
	// Returns ErrTaskNotFound if no task exists with the given ID.
	GetTaskWithHistory(ctx context.Context, taskID int64) (*TaskWithHistory, error)

	// FindFailedTasks returns all failed tasks, each with its single
	// most recent log entry.
	FindFailedTasks(ctx context.Context) ([]*FailedTask, error)
}

// UserStore defines the persistence contract for operator accounts.
type UserStore interface {
	// GetUserByUsername returns the user with the given username, or
	// ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}
