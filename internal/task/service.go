package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rediscache"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// ErrTaskNotRetryable is returned when retry is requested for a task
// that is not in the failed state.
var ErrTaskNotRetryable = errors.New("task is not in a retryable state")

// Service is the query and control surface the API layer uses: status
// polling, the failed-task dashboard, and manual retry.
type Service struct {
	tasks    store.TaskStore
	producer *Producer
	cache    *rediscache.Cache
	logger   *slog.Logger
}

// NewService creates a task service.
func NewService(tasks store.TaskStore, producer *Producer, cache *rediscache.Cache, logger *slog.Logger) *Service {
	return &Service{
		tasks:    tasks,
		producer: producer,
		cache:    cache,
		logger:   logger.With("component", "task_service"),
	}
}

// GetTaskStatus returns the task with its full history. Reads go through
// the cache: clients poll this endpoint while a generation task is in
// flight, and the dispatcher evicts the entry on every transition so a
// terminal status is never served stale.
func (s *Service) GetTaskStatus(ctx context.Context, taskID int64) (*store.TaskWithHistory, error) {
	if taskID <= 0 {
		return nil, domain.ErrInvalidID
	}

	var cached store.TaskWithHistory
	if err := s.cache.GetTask(ctx, taskID, &cached); err == nil {
		return &cached, nil
	}

	found, err := s.tasks.GetTaskWithHistory(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.cache.SetTask(ctx, taskID, found)
	return found, nil
}

// ListFailed returns every failed task with its most recent log message.
func (s *Service) ListFailed(ctx context.Context) ([]*store.FailedTask, error) {
	return s.tasks.FindFailedTasks(ctx)
}

// Retry resubmits a failed task as a fresh one, due immediately. The
// failed task itself is left untouched: failed is a terminal state and
// the audit trail of the original attempt stays intact. Returns
// ErrTaskNotRetryable when the task is in any other state.
func (s *Service) Retry(ctx context.Context, taskID int64) (*domain.Task, error) {
	if taskID <= 0 {
		return nil, domain.ErrInvalidID
	}

	found, err := s.tasks.GetTaskWithHistory(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if found.Task.Status != domain.TaskStatusFailed {
		return nil, fmt.Errorf("%w: task %d is %s", ErrTaskNotRetryable, taskID, found.Task.Status)
	}

	fresh, err := s.producer.Resubmit(ctx, &found.Task)
	if err != nil {
		return nil, err
	}

	s.logger.Info("failed task resubmitted",
		"failed_task_id", taskID,
		"new_task_id", fresh.ID,
		"process", string(fresh.Process),
		"movement_id", fresh.MovementID)
	return fresh, nil
}
