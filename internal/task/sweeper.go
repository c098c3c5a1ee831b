package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/redact"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// Sweeper periodically scans for pending tasks whose schedule has
// elapsed and dispatches them. It is the delivery guarantee of the
// pipeline: a task whose queue message was lost, whose publish failed,
// or whose consumer crashed mid-flight before claiming it, still runs.
//
// Tasks in manual execution mode are surfaced in the scan but never
// dispatched; they wait for an operator.
type Sweeper struct {
	tasks      store.TaskStore
	dispatcher *Dispatcher
	spec       string
	logger     *slog.Logger

	cron *cron.Cron
}

// NewSweeper creates a sweeper that runs on the given cron spec
// (e.g. "@every 1m").
func NewSweeper(tasks store.TaskStore, dispatcher *Dispatcher, spec string, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		tasks:      tasks,
		dispatcher: dispatcher,
		spec:       spec,
		logger:     logger.With("component", "task_sweeper"),
	}
}

// Start schedules the sweep. Returns an error only for an invalid spec.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.runSweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", "spec", s.spec)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) runSweep() {
	ctx := context.Background()
	if err := s.Sweep(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("sweep failed", "error", redact.Error(err))
	}
}

// Sweep dispatches every automatic pending task due as of asOf. A
// failure on one task never blocks the rest; per-task errors are logged
// and the sweep continues. The returned error covers only the due-task
// query itself.
func (s *Sweeper) Sweep(ctx context.Context, asOf time.Time) error {
	due, err := s.tasks.FindDueTasks(ctx, domain.TaskStatusPending, asOf)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("sweeping due tasks", "count", len(due))

	for _, t := range due {
		if t.ExecutionMode == domain.ExecutionModeManual {
			s.logger.Debug("skipping manual-mode task",
				"task_id", t.ID,
				"process", string(t.Process))
			continue
		}

		if err := s.dispatcher.Dispatch(ctx, t); err != nil {
			// Infrastructure fault; the task is still pending and the
			// next sweep will retry it.
			s.logger.Error("failed to dispatch due task",
				"task_id", t.ID,
				"process", string(t.Process),
				"error", redact.Error(err))
		}
	}
	return nil
}
