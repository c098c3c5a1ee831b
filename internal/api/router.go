package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/wanderleymp/finance-api-sub002/internal/api/middleware"
	"github.com/wanderleymp/finance-api-sub002/internal/api/shared"
)

// NewRouter assembles the full route tree. Everything under /api except
// the auth endpoints requires a valid access token.
func NewRouter(
	authHandler *AuthHandler,
	taskHandler *TaskHandler,
	billingHandler *BillingHandler,
	authMiddleware *middleware.AuthMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/billing", func(r chi.Router) {
				r.Post("/movements/{movementID}/boleto", billingHandler.GenerateBoleto)
				r.Post("/movements/{movementID}/nfse", billingHandler.GenerateNFSe)
				r.Post("/boletos/{externalID}/cancel", billingHandler.CancelBoleto)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/failed", taskHandler.ListFailed)
				r.Get("/{taskID}", taskHandler.GetStatus)
				r.Post("/{taskID}/retry", taskHandler.Retry)
			})
		})
	})

	return r
}
