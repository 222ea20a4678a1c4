// internal/app/features/pairs/routes.go
package pairs

import (
	"github.com/dalemusser/interviewhub/internal/app/system/auth"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for /api/pairs.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/{id}", h.ServeGet)
	r.Post("/{id}/propose", h.ServePropose)
	r.Post("/{id}/vote", h.ServeVote)
	r.Post("/{id}/reject", h.ServeReject)
	r.Get("/{id}/feedback", h.ServeGetFeedback)
	r.Post("/{id}/feedback", h.ServeSubmitFeedback)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(models.UserRoleAdmin, models.UserRoleCoordinator))
		r.Post("/{id}/abandon", h.ServeAbandon)
		r.Get("/{id}/history", h.ServeHistory)
	})

	return r
}

// MountEventRoutes adds the event-scoped pair endpoints to an events router
// that already requires a signed-in user.
func MountEventRoutes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	r.Get("/{id}/pairs", h.ServeListForEvent)
	r.With(sm.RequireRole(models.UserRoleAdmin, models.UserRoleCoordinator)).
		Post("/{id}/pairs/generate", h.ServeGenerate)
}
