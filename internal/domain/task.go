package domain

import (
	"errors"
	"time"
)

// TaskStatus represents the processing state of an asynchronous task.
// Statuses are stored as a lookup table; these names are the stable
// business identifiers, the numeric ids are environment seed data.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ExecutionMode determines whether the scheduled sweeper may process a
// task automatically or whether it requires an operator action.
type ExecutionMode string

// Possible execution modes
const (
	ExecutionModeAutomatic ExecutionMode = "automatic"
	ExecutionModeManual    ExecutionMode = "manual"
)

// ProcessKind identifies the logical process a task belongs to.
// Process names are a business-level contract: creating a task for an
// unknown process is a hard failure, validated at startup.
type ProcessKind string

// Known process kinds
const (
	ProcessBoletoGeneration ProcessKind = "Boleto Generation"
	ProcessNFSeGeneration   ProcessKind = "NFSe Generation"
)

// Common validation errors for Task
var (
	ErrEmptyTaskName        = errors.New("task name cannot be empty")
	ErrEmptyTaskProcess     = errors.New("task process cannot be empty")
	ErrInvalidTaskStatus    = errors.New("invalid task status")
	ErrInvalidExecutionMode = errors.New("invalid execution mode")
	ErrInvalidMovementID    = errors.New("movement ID must be positive")
)

// Task represents one durable unit of deferred work: a boleto or NFSe
// generation that will be carried out by an external webhook call.
// The task row is the single source of truth for the work's state; queue
// messages only point back at it.
type Task struct {
	ID            int64         `json:"task_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Process       ProcessKind   `json:"process"`
	Status        TaskStatus    `json:"status"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	// MovementID is the business reference carried as a first-class
	// column, never parsed back out of the description text.
	MovementID int64 `json:"movement_id"`
	// Schedule is the earliest time the task should be processed.
	// Nil means "as soon as possible".
	Schedule  *time.Time `json:"schedule,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TaskLog is one immutable entry in a task's status history. Every
// status transition appends exactly one log row in the same transaction
// as the task update.
type TaskLog struct {
	ID        int64      `json:"task_log_id"`
	TaskID    int64      `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks that the task fields satisfy the domain invariants.
// Returns a validation error if any check fails.
func (t *Task) Validate() error {
	if t.Name == "" {
		return ErrEmptyTaskName
	}
	if t.Process == "" {
		return ErrEmptyTaskProcess
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if !t.ExecutionMode.IsValid() {
		return ErrInvalidExecutionMode
	}
	if t.MovementID <= 0 {
		return ErrInvalidMovementID
	}
	return nil
}

// IsValid reports whether the status is one of the known values.
// Custom status names may exist in the lookup table, but tasks created
// and transitioned by this application only use the known set.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the task's lifecycle.
// Recovery from failed is by publishing a fresh task, never by
// resurrecting the failed record.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsValid reports whether the execution mode is a known value.
func (m ExecutionMode) IsValid() bool {
	return m == ExecutionModeAutomatic || m == ExecutionModeManual
}
