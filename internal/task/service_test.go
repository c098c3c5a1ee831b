package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

func newService(tasks *mockTaskStore, publisher *mockPublisher) *Service {
	producer := NewProducer(tasks, publisher, 2*time.Hour, testLogger())
	return NewService(tasks, producer, disabledCache(), testLogger())
}

func TestGetTaskStatusReturnsTaskWithHistory(t *testing.T) {
	t.Parallel()

	stored := pendingTask(10, 731, domain.ProcessBoletoGeneration)
	tasks := &mockTaskStore{
		getTaskWithHistoryFn: func(_ context.Context, taskID int64) (*store.TaskWithHistory, error) {
			require.EqualValues(t, 10, taskID)
			return &store.TaskWithHistory{
				Task: *stored,
				Logs: []domain.TaskLog{{TaskID: 10, Status: domain.TaskStatusPending, Message: "task created"}},
			}, nil
		},
	}
	s := newService(tasks, &mockPublisher{})

	got, err := s.GetTaskStatus(context.Background(), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got.Task.ID)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, "task created", got.Logs[0].Message)
}

func TestGetTaskStatusRejectsInvalidID(t *testing.T) {
	t.Parallel()

	s := newService(&mockTaskStore{}, &mockPublisher{})

	_, err := s.GetTaskStatus(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestGetTaskStatusPropagatesNotFound(t *testing.T) {
	t.Parallel()

	tasks := &mockTaskStore{
		getTaskWithHistoryFn: func(context.Context, int64) (*store.TaskWithHistory, error) {
			return nil, store.ErrTaskNotFound
		},
	}
	s := newService(tasks, &mockPublisher{})

	_, err := s.GetTaskStatus(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestListFailedDelegatesToStore(t *testing.T) {
	t.Parallel()

	tasks := &mockTaskStore{
		findFailedTasksFn: func(context.Context) ([]*store.FailedTask, error) {
			failed := pendingTask(10, 731, domain.ProcessBoletoGeneration)
			failed.Status = domain.TaskStatusFailed
			return []*store.FailedTask{{
				Task:    *failed,
				LastLog: domain.TaskLog{TaskID: 10, Status: domain.TaskStatusFailed, Message: "webhook returned status 500"},
			}}, nil
		},
	}
	s := newService(tasks, &mockPublisher{})

	got, err := s.ListFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "webhook returned status 500", got[0].LastLog.Message)
}

func TestRetryResubmitsFailedTask(t *testing.T) {
	t.Parallel()

	failed := pendingTask(10, 731, domain.ProcessNFSeGeneration)
	failed.Status = domain.TaskStatusFailed

	var created *store.CreateTaskParams
	tasks := &mockTaskStore{
		getTaskWithHistoryFn: func(context.Context, int64) (*store.TaskWithHistory, error) {
			return &store.TaskWithHistory{Task: *failed}, nil
		},
		createTaskFn: func(_ context.Context, params store.CreateTaskParams) (*domain.Task, error) {
			created = &params
			fresh := pendingTask(42, params.MovementID, params.Process)
			fresh.Schedule = params.Schedule
			return fresh, nil
		},
	}
	publisher := &mockPublisher{}
	s := newService(tasks, publisher)

	fresh, err := s.Retry(context.Background(), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 42, fresh.ID)

	require.NotNil(t, created)
	assert.Equal(t, domain.ProcessNFSeGeneration, created.Process)
	assert.EqualValues(t, 731, created.MovementID)
	require.Len(t, publisher.published, 1)
}

func TestRetryRejectsNonFailedTask(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.TaskStatus{
		domain.TaskStatusPending,
		domain.TaskStatusInProgress,
		domain.TaskStatusCompleted,
	} {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			stored := pendingTask(10, 731, domain.ProcessBoletoGeneration)
			stored.Status = status
			tasks := &mockTaskStore{
				getTaskWithHistoryFn: func(context.Context, int64) (*store.TaskWithHistory, error) {
					return &store.TaskWithHistory{Task: *stored}, nil
				},
			}
			s := newService(tasks, &mockPublisher{})

			_, err := s.Retry(context.Background(), 10)
			assert.ErrorIs(t, err, ErrTaskNotRetryable)
		})
	}
}

func TestRetryRejectsInvalidID(t *testing.T) {
	t.Parallel()

	s := newService(&mockTaskStore{}, &mockPublisher{})
	_, err := s.Retry(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
