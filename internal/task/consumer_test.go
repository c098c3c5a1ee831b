package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rabbitmq"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// mockSubscriber records queue subscriptions.
type mockSubscriber struct {
	handlers map[string]rabbitmq.Handler
	err      error
}

func (m *mockSubscriber) Consume(_ context.Context, queue string, handler rabbitmq.Handler) error {
	if m.err != nil {
		return m.err
	}
	if m.handlers == nil {
		m.handlers = make(map[string]rabbitmq.Handler)
	}
	m.handlers[queue] = handler
	return nil
}

func TestStartSubscribesBothGenerationQueues(t *testing.T) {
	t.Parallel()

	queues := &mockSubscriber{}
	c := NewConsumer(&mockTaskStore{}, nil, queues, testLogger())

	require.NoError(t, c.Start(context.Background()))
	assert.Contains(t, queues.handlers, rabbitmq.BoletoQueue)
	assert.Contains(t, queues.handlers, rabbitmq.NFSeQueue)
}

func TestStartPropagatesSubscribeFailure(t *testing.T) {
	t.Parallel()

	queues := &mockSubscriber{err: errors.New("channel closed")}
	c := NewConsumer(&mockTaskStore{}, nil, queues, testLogger())

	assert.Error(t, c.Start(context.Background()))
}

func TestHandleReloadsTaskAndDispatches(t *testing.T) {
	t.Parallel()

	// The stored row carries a different status than anything the
	// message could know; the dispatcher must see the stored row.
	stored := pendingTask(10, 731, domain.ProcessBoletoGeneration)

	tasks := &mockTaskStore{
		getTaskWithHistoryFn: func(_ context.Context, taskID int64) (*store.TaskWithHistory, error) {
			assert.EqualValues(t, 10, taskID)
			return &store.TaskWithHistory{Task: *stored}, nil
		},
		claimTaskFn: func(context.Context, int64, domain.TaskStatus, domain.TaskStatus, string) error {
			return nil
		},
		transitionStatusFn: func(_ context.Context, taskID int64, _ domain.TaskStatus, _ string) (*domain.Task, error) {
			return stored, nil
		},
	}
	webhooks := &mockWebhooks{}
	dispatcher := NewDispatcher(tasks, webhooks, disabledCache(), testLogger())
	c := NewConsumer(tasks, dispatcher, &mockSubscriber{}, testLogger())

	err := c.handle(context.Background(), rabbitmq.Message{TaskID: 10, MovementID: 731})
	require.NoError(t, err)
	assert.Equal(t, []int64{731}, webhooks.boletoCalls)
}

func TestHandleDiscardsMessageForUnknownTask(t *testing.T) {
	t.Parallel()

	tasks := &mockTaskStore{
		getTaskWithHistoryFn: func(context.Context, int64) (*store.TaskWithHistory, error) {
			return nil, store.ErrTaskNotFound
		},
	}
	c := NewConsumer(tasks, nil, &mockSubscriber{}, testLogger())

	// nil means ack: a message without a task has nothing to retry.
	err := c.handle(context.Background(), rabbitmq.Message{TaskID: 404})
	assert.NoError(t, err)
}

func TestHandlePropagatesStoreFault(t *testing.T) {
	t.Parallel()

	storeDown := errors.New("connection refused")
	tasks := &mockTaskStore{
		getTaskWithHistoryFn: func(context.Context, int64) (*store.TaskWithHistory, error) {
			return nil, storeDown
		},
	}
	c := NewConsumer(tasks, nil, &mockSubscriber{}, testLogger())

	err := c.handle(context.Background(), rabbitmq.Message{TaskID: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, storeDown)
}
