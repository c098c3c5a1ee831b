package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/wanderleymp/finance-api-sub002/internal/api/shared"
	"github.com/wanderleymp/finance-api-sub002/internal/service/auth"
)

// AuthHandler serves login and token refresh.
type AuthHandler struct {
	authService *auth.Service
	validator   *validator.Validate
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator.New(),
	}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Username and password are required")
		return
	}

	pair, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Refresh token is required")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}
