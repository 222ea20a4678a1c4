// internal/app/features/events/routes.go
package events

import (
	"github.com/dalemusser/interviewhub/internal/app/features/pairs"
	"github.com/dalemusser/interviewhub/internal/app/system/auth"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for /api/events, including the event-scoped
// pair endpoints served by ph.
func Routes(h *Handler, ph *pairs.Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Get("/{id}", h.ServeGet)
	r.Get("/{id}/participants", h.ServeParticipants)
	r.Post("/{id}/join", h.ServeJoin)
	r.Post("/{id}/leave", h.ServeLeave)
	r.Put("/{id}/profile", h.ServeUpdateProfile)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(models.UserRoleAdmin, models.UserRoleCoordinator))
		r.Post("/", h.ServeCreate)
		r.Delete("/{id}", h.ServeDelete)
		r.Put("/{id}/join-control", h.ServeJoinControl)
		r.Get("/{id}/stats", h.ServeStats)
	})

	pairs.MountEventRoutes(r, ph, sm)
	return r
}
