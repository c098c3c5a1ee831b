// Package api implements the HTTP boundary of the billing task service:
// authentication, generation-task submission for movements, task status
// polling and the failed-task retry surface.
package api

import (
	"time"

	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
)

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the token refresh payload.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse carries an issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// GenerateRequest is the optional body of a generation request. An
// absent body or absent schedule means "use the default delay".
type GenerateRequest struct {
	// Schedule is the earliest emission time, RFC3339.
	Schedule *time.Time `json:"schedule,omitempty"`
}

// TaskResponse is the API shape of a task.
type TaskResponse struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Process       string     `json:"process"`
	Status        string     `json:"status"`
	ExecutionMode string     `json:"execution_mode"`
	MovementID    int64      `json:"movement_id"`
	Schedule      *time.Time `json:"schedule,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TaskLogResponse is one audit trail entry.
type TaskLogResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStatusResponse is a task with its full history, newest first.
type TaskStatusResponse struct {
	Task TaskResponse      `json:"task"`
	Logs []TaskLogResponse `json:"logs"`
}

// FailedTaskResponse is one row of the failed-task dashboard.
type FailedTaskResponse struct {
	Task   TaskResponse `json:"task"`
	Reason string       `json:"reason"`
}

func toTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		Process:       string(t.Process),
		Status:        string(t.Status),
		ExecutionMode: string(t.ExecutionMode),
		MovementID:    t.MovementID,
		Schedule:      t.Schedule,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toTaskStatusResponse(found *store.TaskWithHistory) TaskStatusResponse {
	logs := make([]TaskLogResponse, 0, len(found.Logs))
	for _, l := range found.Logs {
		logs = append(logs, TaskLogResponse{
			Status:    string(l.Status),
			Message:   l.Message,
			CreatedAt: l.CreatedAt,
		})
	}
	return TaskStatusResponse{
		Task: toTaskResponse(&found.Task),
		Logs: logs,
	}
}

func toFailedTaskResponses(failed []*store.FailedTask) []FailedTaskResponse {
	out := make([]FailedTaskResponse, 0, len(failed))
	for _, f := range failed {
		out = append(out, FailedTaskResponse{
			Task:   toTaskResponse(&f.Task),
			Reason: f.LastLog.Message,
		})
	}
	return out
}
