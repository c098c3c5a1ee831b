package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderleymp/finance-api-sub002/internal/platform/rabbitmq"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// subscriber is the slice of the queue client the consumer needs.
type subscriber interface {
	Consume(ctx context.Context, queue string, handler rabbitmq.Handler) error
}

// Consumer binds the generation queues to the dispatcher. Messages are
// pointers: the consumer reloads the task from the store and hands the
// fresh row to Dispatch, so a message delayed for hours still acts on
// current state.
type Consumer struct {
	tasks      store.TaskStore
	dispatcher *Dispatcher
	queues     subscriber
	logger     *slog.Logger
}

// NewConsumer creates a consumer.
func NewConsumer(tasks store.TaskStore, dispatcher *Dispatcher, queues subscriber, logger *slog.Logger) *Consumer {
	return &Consumer{
		tasks:      tasks,
		dispatcher: dispatcher,
		queues:     queues,
		logger:     logger.With("component", "task_consumer"),
	}
}

// Start subscribes to both generation queues.
func (c *Consumer) Start(ctx context.Context) error {
	for _, queue := range []string{rabbitmq.BoletoQueue, rabbitmq.NFSeQueue} {
		if err := c.queues.Consume(ctx, queue, c.handle); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", queue, err)
		}
	}
	return nil
}

// handle processes one delivered message. Returning nil acknowledges it;
// returning an error hands it to the queue retry machinery.
func (c *Consumer) handle(ctx context.Context, msg rabbitmq.Message) error {
	found, err := c.tasks.GetTaskWithHistory(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			// The message outlived its task. Nothing to retry.
			c.logger.Warn("discarding message for unknown task",
				"task_id", msg.TaskID,
				"movement_id", msg.MovementID)
			return nil
		}
		return fmt.Errorf("failed to load task %d: %w", msg.TaskID, err)
	}

	return c.dispatcher.Dispatch(ctx, &found.Task)
}
