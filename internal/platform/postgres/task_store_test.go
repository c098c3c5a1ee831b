package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// testSchemaStatements mirrors the migrations: lookup tables with their
// seed rows, then tasks and task_logs. Statements run one by one because
// the driver uses the extended protocol.
var testSchemaStatements = []string{
	`CREATE TABLE processes (
		process_id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE tasks_status (
		status_id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE tasks_execution_mode (
		execution_mode_id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`INSERT INTO processes (name) VALUES ('Boleto Generation'), ('NFSe Generation')`,
	`INSERT INTO tasks_status (name) VALUES ('pending'), ('in_progress'), ('completed'), ('failed')`,
	`INSERT INTO tasks_execution_mode (name) VALUES ('automatic'), ('manual')`,
	`CREATE TABLE tasks (
		task_id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		process_id BIGINT NOT NULL REFERENCES processes (process_id),
		status_id BIGINT NOT NULL REFERENCES tasks_status (status_id),
		execution_mode_id BIGINT NOT NULL REFERENCES tasks_execution_mode (execution_mode_id),
		movement_id BIGINT NOT NULL,
		schedule TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE task_logs (
		task_log_id BIGSERIAL PRIMARY KEY,
		task_id BIGINT NOT NULL REFERENCES tasks (task_id) ON DELETE CASCADE,
		status_id BIGINT NOT NULL REFERENCES tasks_status (status_id),
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// newTestStore provisions a throwaway schema on the database named by
// DATABASE_URL and returns a TaskStore over it. The pool is pinned to a
// single connection so the search_path set here holds for every query.
// Skips when no database is configured.
func newTestStore(t *testing.T) *TaskStore {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping database integration test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf("task_store_test_%d", time.Now().UnixNano())
	_, err = db.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		_ = db.Close()
	})

	_, err = db.Exec(fmt.Sprintf("SET search_path TO %s", schema))
	require.NoError(t, err)

	for _, stmt := range testSchemaStatements {
		_, err = db.Exec(stmt)
		require.NoError(t, err, "schema statement failed: %s", stmt)
	}

	lookups, err := LoadLookups(context.Background(), db)
	require.NoError(t, err)

	return NewTaskStore(db, lookups)
}

func boletoParams(movementID int64, schedule *time.Time) store.CreateTaskParams {
	return store.CreateTaskParams{
		Name:          fmt.Sprintf("Boleto Generation for movement %d", movementID),
		Description:   "integration test task",
		Process:       domain.ProcessBoletoGeneration,
		ExecutionMode: domain.ExecutionModeAutomatic,
		MovementID:    movementID,
		Schedule:      schedule,
	}
}

func TestCreateTaskWritesInitialLogEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, boletoParams(731, nil))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, domain.TaskStatusPending, created.Status)

	found, err := s.GetTaskWithHistory(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, found.Task.Status)
	assert.EqualValues(t, 731, found.Task.MovementID)
	require.Len(t, found.Logs, 1)
	assert.Equal(t, domain.TaskStatusPending, found.Logs[0].Status)
	assert.Equal(t, "task created", found.Logs[0].Message)
}

func TestCreateTaskRecordsScheduleInInitialLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	schedule := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	created, err := s.CreateTask(ctx, boletoParams(731, &schedule))
	require.NoError(t, err)
	require.NotNil(t, created.Schedule)

	found, err := s.GetTaskWithHistory(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Task.Schedule)
	assert.True(t, found.Task.Schedule.Equal(schedule))
	require.Len(t, found.Logs, 1)
	assert.Equal(t, "task scheduled for 2026-09-01T08:00:00Z", found.Logs[0].Message)
}

func TestTransitionsKeepStatusEqualToNewestLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, boletoParams(731, nil))
	require.NoError(t, err)

	updated, err := s.TransitionStatus(ctx, created.ID, domain.TaskStatusInProgress, "starting processing")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, updated.Status)

	updated, err = s.TransitionStatus(ctx, created.ID, domain.TaskStatusCompleted, "processing completed successfully")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, updated.Status)

	// Two transitions after creation: three log rows, newest first, and
	// the task's status equals the newest log's status.
	found, err := s.GetTaskWithHistory(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, found.Logs, 3)
	assert.Equal(t, found.Task.Status, found.Logs[0].Status)
	assert.Equal(t, "processing completed successfully", found.Logs[0].Message)
	assert.Equal(t, domain.TaskStatusInProgress, found.Logs[1].Status)
	assert.Equal(t, domain.TaskStatusPending, found.Logs[2].Status)
}

func TestTransitionStatusUnknownTask(t *testing.T) {
	s := newTestStore(t)

	_, err := s.TransitionStatus(context.Background(), 999999, domain.TaskStatusFailed, "nope")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestClaimTaskIsConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, boletoParams(731, nil))
	require.NoError(t, err)

	err = s.ClaimTask(ctx, created.ID, domain.TaskStatusPending, domain.TaskStatusInProgress, "starting processing")
	require.NoError(t, err)

	// The losing side of the race sees the claim conflict, not a
	// spurious not-found.
	err = s.ClaimTask(ctx, created.ID, domain.TaskStatusPending, domain.TaskStatusInProgress, "starting processing")
	assert.ErrorIs(t, err, store.ErrTaskAlreadyClaimed)

	err = s.ClaimTask(ctx, 999999, domain.TaskStatusPending, domain.TaskStatusInProgress, "starting processing")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	// The successful claim left exactly one extra log row.
	found, err := s.GetTaskWithHistory(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, found.Task.Status)
	require.Len(t, found.Logs, 2)
	assert.Equal(t, "starting processing", found.Logs[0].Message)
}

func TestFindDueTasksScheduleBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	asOf := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	past := asOf.Add(-1 * time.Hour)
	future := asOf.Add(1 * time.Hour)

	// movement_id marks which fixture each returned row came from.
	_, err := s.CreateTask(ctx, boletoParams(1, nil))
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, boletoParams(2, &past))
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, boletoParams(3, &asOf))
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, boletoParams(4, &future))
	require.NoError(t, err)

	due, err := s.FindDueTasks(ctx, domain.TaskStatusPending, asOf)
	require.NoError(t, err)

	// Null schedule is due immediately and a schedule exactly at asOf is
	// due (inclusive comparison); only the future task is excluded.
	// Order: null schedule first, then oldest due.
	require.Len(t, due, 3)
	assert.EqualValues(t, 1, due[0].MovementID)
	assert.EqualValues(t, 2, due[1].MovementID)
	assert.EqualValues(t, 3, due[2].MovementID)

	// A claimed task drops out of the due set.
	err = s.ClaimTask(ctx, due[1].ID, domain.TaskStatusPending, domain.TaskStatusInProgress, "starting processing")
	require.NoError(t, err)

	due, err = s.FindDueTasks(ctx, domain.TaskStatusPending, asOf)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.EqualValues(t, 1, due[0].MovementID)
	assert.EqualValues(t, 3, due[1].MovementID)
}

func TestFindFailedTasksCarriesLastLogMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	failed, err := s.CreateTask(ctx, boletoParams(731, nil))
	require.NoError(t, err)
	healthy, err := s.CreateTask(ctx, boletoParams(732, nil))
	require.NoError(t, err)

	_, err = s.TransitionStatus(ctx, failed.ID, domain.TaskStatusInProgress, "starting processing")
	require.NoError(t, err)
	_, err = s.TransitionStatus(ctx, failed.ID, domain.TaskStatusFailed, "webhook returned status 422: movement has no billing items")
	require.NoError(t, err)
	_, err = s.TransitionStatus(ctx, healthy.ID, domain.TaskStatusCompleted, "processing completed successfully")
	require.NoError(t, err)

	rows, err := s.FindFailedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, failed.ID, rows[0].Task.ID)
	assert.Equal(t, domain.TaskStatusFailed, rows[0].Task.Status)
	assert.Equal(t, "webhook returned status 422: movement has no billing items", rows[0].LastLog.Message)
}
