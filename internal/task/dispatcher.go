package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/n8n"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rediscache"
	"github.com/wanderleymp/finance-api-sub002/internal/redact"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// Dispatcher executes a single task end to end: claim, webhook call,
// terminal transition. Both the queue consumers and the sweeper funnel
// through Dispatch, so the claim guard is the only arbiter when the two
// paths race for the same task.
type Dispatcher struct {
	tasks    store.TaskStore
	webhooks n8n.Caller
	cache    *rediscache.Cache
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(tasks store.TaskStore, webhooks n8n.Caller, cache *rediscache.Cache, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tasks:    tasks,
		webhooks: webhooks,
		cache:    cache,
		logger:   logger.With("component", "task_dispatcher"),
	}
}

// Dispatch runs the task. The error contract mirrors the fault taxonomy:
//
//   - nil: the task reached a terminal state (completed, or failed on a
//     webhook rejection) or was already claimed elsewhere. The caller
//     should acknowledge the triggering message.
//   - non-nil: an infrastructure fault (store unavailable, claim could
//     not be recorded). The task's state is unknown or still pending;
//     the caller should let the retry machinery have it.
//
// A webhook rejection is a business outcome, not an infrastructure
// fault: the task transitions to failed with the verbatim error message
// and Dispatch reports success. Retrying the same call would fail the
// same way; recovery goes through the explicit retry operation, which
// creates a fresh task.
func (d *Dispatcher) Dispatch(ctx context.Context, t *domain.Task) error {
	log := d.logger.With(
		"task_id", t.ID,
		"process", string(t.Process),
		"movement_id", t.MovementID,
	)

	err := d.tasks.ClaimTask(ctx, t.ID, domain.TaskStatusPending, domain.TaskStatusInProgress, "starting processing")
	if err != nil {
		if errors.Is(err, store.ErrTaskAlreadyClaimed) {
			log.Info("task already claimed by another worker, skipping")
			return nil
		}
		return fmt.Errorf("failed to claim task %d: %w", t.ID, err)
	}
	d.cache.DeleteTask(ctx, t.ID)

	log.Info("task claimed, calling emission webhook")

	webhookErr := d.callWebhook(ctx, t)
	if webhookErr != nil {
		log.Warn("emission webhook rejected task",
			"error", redact.Error(webhookErr))

		// The webhook's own words go into the audit trail so an
		// operator reading the task history sees the real cause.
		if _, err := d.tasks.TransitionStatus(ctx, t.ID, domain.TaskStatusFailed, webhookErr.Error()); err != nil {
			return fmt.Errorf("failed to record task %d failure: %w", t.ID, err)
		}
		d.cache.DeleteTask(ctx, t.ID)
		return nil
	}

	if _, err := d.tasks.TransitionStatus(ctx, t.ID, domain.TaskStatusCompleted, "processing completed successfully"); err != nil {
		return fmt.Errorf("failed to record task %d completion: %w", t.ID, err)
	}
	d.cache.DeleteTask(ctx, t.ID)

	log.Info("task completed")
	return nil
}

func (d *Dispatcher) callWebhook(ctx context.Context, t *domain.Task) error {
	switch t.Process {
	case domain.ProcessBoletoGeneration:
		return d.webhooks.EmitBoleto(ctx, t.MovementID)
	case domain.ProcessNFSeGeneration:
		return d.webhooks.EmitNFSe(ctx, t.MovementID)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownProcess, t.Process)
	}
}
