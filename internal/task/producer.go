package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rabbitmq"
	"github.com/wanderleymp/finance-api-sub002/internal/redact"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// Producer creates generation tasks and enqueues them. Task creation and
// queue publication are deliberately decoupled: the task row commits
// first, then publication is attempted best-effort. A lost message is
// not a lost task, the sweeper picks up anything still pending past its
// schedule.
type Producer struct {
	tasks        store.TaskStore
	publisher    rabbitmq.Publisher
	defaultDelay time.Duration
	logger       *slog.Logger
}

// NewProducer creates a producer. defaultDelay is applied when the
// caller gives no schedule; it exists so that a boleto requested during
// invoice editing is not emitted before the operator finishes.
func NewProducer(tasks store.TaskStore, publisher rabbitmq.Publisher, defaultDelay time.Duration, logger *slog.Logger) *Producer {
	return &Producer{
		tasks:        tasks,
		publisher:    publisher,
		defaultDelay: defaultDelay,
		logger:       logger.With("component", "task_producer"),
	}
}

// queueFor maps a process to the queue its tasks are published on.
func queueFor(process domain.ProcessKind) (string, error) {
	switch process {
	case domain.ProcessBoletoGeneration:
		return rabbitmq.BoletoQueue, nil
	case domain.ProcessNFSeGeneration:
		return rabbitmq.NFSeQueue, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownProcess, process)
	}
}

// EnqueueBoleto creates and enqueues a boleto generation task for the
// movement.
func (p *Producer) EnqueueBoleto(ctx context.Context, movementID int64, schedule *time.Time) (*domain.Task, error) {
	return p.enqueue(ctx, domain.ProcessBoletoGeneration, movementID, schedule)
}

// EnqueueNFSe creates and enqueues an NFSe generation task for the
// movement.
func (p *Producer) EnqueueNFSe(ctx context.Context, movementID int64, schedule *time.Time) (*domain.Task, error) {
	return p.enqueue(ctx, domain.ProcessNFSeGeneration, movementID, schedule)
}

// Resubmit creates a fresh task for the same process and movement as a
// failed one, due immediately. Failed tasks are immutable history; retry
// means a new attempt with its own audit trail.
func (p *Producer) Resubmit(ctx context.Context, failed *domain.Task) (*domain.Task, error) {
	now := time.Now().UTC()
	return p.enqueue(ctx, failed.Process, failed.MovementID, &now)
}

func (p *Producer) enqueue(ctx context.Context, process domain.ProcessKind, movementID int64, schedule *time.Time) (*domain.Task, error) {
	if movementID <= 0 {
		return nil, domain.ErrInvalidMovementID
	}

	queue, err := queueFor(process)
	if err != nil {
		return nil, err
	}

	if schedule == nil {
		due := time.Now().UTC().Add(p.defaultDelay)
		schedule = &due
	}

	created, err := p.tasks.CreateTask(ctx, store.CreateTaskParams{
		Name:          fmt.Sprintf("%s for movement %d", process, movementID),
		Description:   fmt.Sprintf("automatic %s requested for movement %d", process, movementID),
		Process:       process,
		ExecutionMode: domain.ExecutionModeAutomatic,
		MovementID:    movementID,
		Schedule:      schedule,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s task: %w", process, err)
	}

	msg := rabbitmq.Message{
		TaskID:     created.ID,
		MovementID: movementID,
	}
	if created.Schedule != nil {
		msg.ScheduledFor = created.Schedule.UTC().Format(time.RFC3339)
	}

	if err := p.publisher.Publish(ctx, queue, msg); err != nil {
		// The task is committed; the sweeper will run it once due.
		p.logger.Warn("task created but queue publish failed, deferring to sweeper",
			"task_id", created.ID,
			"queue", queue,
			"error", redact.Error(err))
		return created, nil
	}

	p.logger.Info("task created and enqueued",
		"task_id", created.ID,
		"process", string(process),
		"movement_id", movementID,
		"queue", queue)
	return created, nil
}
