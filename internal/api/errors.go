package api

import (
	"errors"
	"net/http"

	"github.com/wanderleymp/finance-api-sub002/internal/api/shared"
	"github.com/wanderleymp/finance-api-sub002/internal/domain"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/logger"
	"github.com/wanderleymp/finance-api-sub002/internal/redact"
	"github.com/wanderleymp/finance-api-sub002/internal/service/auth"
	"github.com/wanderleymp/finance-api-sub002/internal/store"
	"github.com/wanderleymp/finance-api-sub002/internal/task"
)

// respondWithDomainError maps service-layer errors to HTTP statuses with
// sanitized messages. Unrecognized errors become a generic 500; the real
// error is logged server-side with the trace ID, never leaked to the
// client.
func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrExpiredToken):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, task.ErrTaskNotRetryable):
		shared.RespondWithError(w, r, http.StatusConflict, "Task is not in a retryable state")
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidMovementID):
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid identifier")
	case errors.Is(err, domain.ErrUnknownProcess), errors.Is(err, store.ErrProcessNotFound):
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown process")
	case errors.Is(err, domain.ErrValidation):
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation failed")
	default:
		logger.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"method", r.Method,
			"error", redact.Error(err))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "An internal error occurred")
	}
}
