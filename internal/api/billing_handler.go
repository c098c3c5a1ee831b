package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wanderleymp/finance-api-sub002/internal/api/shared"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/logger"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/n8n"
	"github.com/wanderleymp/finance-api-sub002/internal/redact"
	"github.com/wanderleymp/finance-api-sub002/internal/task"
)

// BillingHandler serves the generation entry points: queue a boleto or
// NFSe for a movement, and cancel an emitted boleto.
type BillingHandler struct {
	producer *task.Producer
	webhooks *n8n.Client
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(producer *task.Producer, webhooks *n8n.Client) *BillingHandler {
	return &BillingHandler{
		producer: producer,
		webhooks: webhooks,
	}
}

func movementIDParam(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "movementID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeGenerateRequest tolerates an empty body: generation requests
// usually carry no payload at all.
func decodeGenerateRequest(r *http.Request) (*GenerateRequest, error) {
	var req GenerateRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &GenerateRequest{}, nil
		}
		return nil, err
	}
	return &req, nil
}

// GenerateBoleto handles POST /api/billing/movements/{movementID}/boleto.
// The response is 202: the task is queued, not done.
func (h *BillingHandler) GenerateBoleto(w http.ResponseWriter, r *http.Request) {
	id, ok := movementIDParam(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid movement ID")
		return
	}

	req, err := decodeGenerateRequest(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.producer.EnqueueBoleto(r.Context(), id, req.Schedule)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, toTaskResponse(created))
}

// GenerateNFSe handles POST /api/billing/movements/{movementID}/nfse.
func (h *BillingHandler) GenerateNFSe(w http.ResponseWriter, r *http.Request) {
	id, ok := movementIDParam(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid movement ID")
		return
	}

	req, err := decodeGenerateRequest(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.producer.EnqueueNFSe(r.Context(), id, req.Schedule)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, toTaskResponse(created))
}

// CancelBoleto handles POST /api/billing/boletos/{externalID}/cancel.
// Cancellation is synchronous: the webhook is called inline and the
// result reported directly, no task is created.
func (h *BillingHandler) CancelBoleto(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	if externalID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "External boleto ID is required")
		return
	}

	if err := h.webhooks.CancelBoleto(r.Context(), externalID); err != nil {
		logger.FromContext(r.Context()).Warn("boleto cancellation rejected",
			"external_boleto_id", externalID,
			"error", redact.Error(err))
		shared.RespondWithError(w, r, http.StatusBadGateway, "Boleto cancellation was rejected by the issuer")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"external_boleto_id": externalID,
		"status":             "cancelled",
	})
}
