package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wanderleymp/finance-api-sub002/internal/api/shared"
	"github.com/wanderleymp/finance-api-sub002/internal/task"
)

// TaskHandler serves task status polling and the failed-task retry
// surface.
type TaskHandler struct {
	tasks *task.Service
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *task.Service) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func taskIDParam(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GetStatus handles GET /api/tasks/{taskID}.
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDParam(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	found, err := h.tasks.GetTaskStatus(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toTaskStatusResponse(found))
}

// ListFailed handles GET /api/tasks/failed.
func (h *TaskHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := h.tasks.ListFailed(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toFailedTaskResponses(failed))
}

// Retry handles POST /api/tasks/{taskID}/retry. A successful retry
// returns the fresh task, not the failed one.
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDParam(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	fresh, err := h.tasks.Retry(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, toTaskResponse(fresh))
}
