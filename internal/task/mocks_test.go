package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rabbitmq"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/rediscache"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func disabledCache() *rediscache.Cache {
	return rediscache.New(rediscache.Config{}, testLogger())
}

// mockTaskStore is a function-field fake for store.TaskStore. Only the
// fields a test sets are expected to be called.
type mockTaskStore struct {
	createTaskFn         func(ctx context.Context, params store.CreateTaskParams) (*domain.Task, error)
	transitionStatusFn   func(ctx context.Context, taskID int64, status domain.TaskStatus, message string) (*domain.Task, error)
	claimTaskFn          func(ctx context.Context, taskID int64, expected, next domain.TaskStatus, message string) error
	findDueTasksFn       func(ctx context.Context, status domain.TaskStatus, asOf time.Time) ([]*domain.Task, error)
	getTaskWithHistoryFn func(ctx context.Context, taskID int64) (*store.TaskWithHistory, error)
	findFailedTasksFn    func(ctx context.Context) ([]*store.FailedTask, error)
}

var _ store.TaskStore = (*mockTaskStore)(nil)

func (m *mockTaskStore) CreateTask(ctx context.Context, params store.CreateTaskParams) (*domain.Task, error) {
	return m.createTaskFn(ctx, params)
}

func (m *mockTaskStore) TransitionStatus(ctx context.Context, taskID int64, status domain.TaskStatus, message string) (*domain.Task, error) {
	return m.transitionStatusFn(ctx, taskID, status, message)
}

func (m *mockTaskStore) ClaimTask(ctx context.Context, taskID int64, expected, next domain.TaskStatus, message string) error {
	return m.claimTaskFn(ctx, taskID, expected, next, message)
}

func (m *mockTaskStore) FindDueTasks(ctx context.Context, status domain.TaskStatus, asOf time.Time) ([]*domain.Task, error) {
	return m.findDueTasksFn(ctx, status, asOf)
}

func (m *mockTaskStore) GetTaskWithHistory(ctx context.Context, taskID int64) (*store.TaskWithHistory, error) {
	return m.getTaskWithHistoryFn(ctx, taskID)
}

func (m *mockTaskStore) FindFailedTasks(ctx context.Context) ([]*store.FailedTask, error) {
	return m.findFailedTasksFn(ctx)
}

// mockPublisher records published messages.
type mockPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	queue string
	msg   rabbitmq.Message
}

func (m *mockPublisher) Publish(_ context.Context, queue string, msg rabbitmq.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedMessage{queue: queue, msg: msg})
	return nil
}

// mockWebhooks records emission calls and returns configured errors.
type mockWebhooks struct {
	boletoErr   error
	nfseErr     error
	boletoCalls []int64
	nfseCalls   []int64
}

func (m *mockWebhooks) EmitBoleto(_ context.Context, movementID int64) error {
	m.boletoCalls = append(m.boletoCalls, movementID)
	return m.boletoErr
}

func (m *mockWebhooks) EmitNFSe(_ context.Context, movementID int64) error {
	m.nfseCalls = append(m.nfseCalls, movementID)
	return m.nfseErr
}

// transitionRecord captures one TransitionStatus call.
type transitionRecord struct {
	taskID  int64
	status  domain.TaskStatus
	message string
}

func pendingTask(id, movementID int64, process domain.ProcessKind) *domain.Task {
	now := time.Now().UTC()
	return &domain.Task{
		ID:            id,
		Name:          "test task",
		Process:       process,
		Status:        domain.TaskStatusPending,
		ExecutionMode: domain.ExecutionModeAutomatic,
		MovementID:    movementID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
