package postgres

import (
	"context"
	"fmt"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/logger"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// Lookups caches the name-to-id mappings for the tasks_status,
// tasks_execution_mode and processes tables. The numeric ids are
// environment-specific seed data; the names are the stable contract.
//
// Process names are validated once at load time so a misconfigured
// environment fails at startup instead of on the first task creation.
// Status lookups keep the degrade-to-default policy: an unknown status
// name resolves to pending with a warning, because losing track of
// in-flight work is worse than a mislabeled status.
type Lookups struct {
	statusIDs       map[domain.TaskStatus]int64
	statusNames     map[int64]domain.TaskStatus
	processIDs      map[domain.ProcessKind]int64
	modeIDs         map[domain.ExecutionMode]int64
	defaultStatusID int64
}

// requiredProcesses are the process names this application publishes
// tasks for. All of them must exist in the lookup table.
var requiredProcesses = []domain.ProcessKind{
	domain.ProcessBoletoGeneration,
	domain.ProcessNFSeGeneration,
}

// LoadLookups reads the three lookup tables and validates that every
// required name is present. Returns a hard error on any missing process
// or on a missing pending status, since neither can be worked around.
func LoadLookups(ctx context.Context, db store.DBTX) (*Lookups, error) {
	l := &Lookups{
		statusIDs:   make(map[domain.TaskStatus]int64),
		statusNames: make(map[int64]domain.TaskStatus),
		processIDs:  make(map[domain.ProcessKind]int64),
		modeIDs:     make(map[domain.ExecutionMode]int64),
	}

	rows, err := db.QueryContext(ctx, `SELECT status_id, name FROM tasks_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to load task statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan task status row: %w", err)
		}
		l.statusIDs[domain.TaskStatus(name)] = id
		l.statusNames[id] = domain.TaskStatus(name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task status rows: %w", err)
	}

	pendingID, ok := l.statusIDs[domain.TaskStatusPending]
	if !ok {
		return nil, fmt.Errorf("tasks_status table is missing the %q status", domain.TaskStatusPending)
	}
	l.defaultStatusID = pendingID

	modeRows, err := db.QueryContext(ctx, `SELECT execution_mode_id, name FROM tasks_execution_mode`)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution modes: %w", err)
	}
	defer modeRows.Close()
	for modeRows.Next() {
		var id int64
		var name string
		if err := modeRows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan execution mode row: %w", err)
		}
		l.modeIDs[domain.ExecutionMode(name)] = id
	}
	if err := modeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution mode rows: %w", err)
	}

	processRows, err := db.QueryContext(ctx, `SELECT process_id, name FROM processes`)
	if err != nil {
		return nil, fmt.Errorf("failed to load processes: %w", err)
	}
	defer processRows.Close()
	for processRows.Next() {
		var id int64
		var name string
		if err := processRows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan process row: %w", err)
		}
		l.processIDs[domain.ProcessKind(name)] = id
	}
	if err := processRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating process rows: %w", err)
	}

	for _, p := range requiredProcesses {
		if _, ok := l.processIDs[p]; !ok {
			return nil, fmt.Errorf("%w: %q missing from processes table", store.ErrProcessNotFound, p)
		}
	}

	return l, nil
}

// StatusID resolves a status name to its id, falling back to the pending
// id with a warning when the name is unknown.
func (l *Lookups) StatusID(ctx context.Context, status domain.TaskStatus) int64 {
	if id, ok := l.statusIDs[status]; ok {
		return id
	}

	logger.FromContext(ctx).Warn("unknown task status name, falling back to pending",
		"status", string(status),
		"fallback_status_id", l.defaultStatusID)
	return l.defaultStatusID
}

// StatusName resolves a status id back to its name. Unknown ids map to
// pending, mirroring the StatusID fallback.
func (l *Lookups) StatusName(id int64) domain.TaskStatus {
	if name, ok := l.statusNames[id]; ok {
		return name
	}
	return domain.TaskStatusPending
}

// ProcessID resolves a process name to its id. Unknown names are a hard
// failure: tasks must never be created against a nonexistent process.
func (l *Lookups) ProcessID(process domain.ProcessKind) (int64, error) {
	id, ok := l.processIDs[process]
	if !ok {
		return 0, fmt.Errorf("%w: %q", store.ErrProcessNotFound, process)
	}
	return id, nil
}

// ProcessName resolves a process id back to its name.
func (l *Lookups) ProcessName(id int64) domain.ProcessKind {
	for name, pid := range l.processIDs {
		if pid == id {
			return name
		}
	}
	return ""
}

// ModeID resolves an execution mode name to its id.
func (l *Lookups) ModeID(mode domain.ExecutionMode) (int64, error) {
	id, ok := l.modeIDs[mode]
	if !ok {
		return 0, fmt.Errorf("execution mode %q missing from lookup table", mode)
	}
	return id, nil
}

// ModeName resolves an execution mode id back to its name.
func (l *Lookups) ModeName(id int64) domain.ExecutionMode {
	for name, mid := range l.modeIDs {
		if mid == id {
			return name
		}
	}
	return domain.ExecutionModeAutomatic
}
