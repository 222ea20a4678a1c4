// internal/app/features/events/handler.go
package events

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/roster"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/app/system/ratelimit"
	"github.com/dalemusser/interviewhub/internal/app/system/respond"
	"github.com/dalemusser/interviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves event and roster endpoints. Joins may be nil to disable
// join throttling.
type Handler struct {
	Roster *roster.Roster
	Joins  *ratelimit.JoinLimiter
	Log    *zap.Logger
}

// NewHandler creates an events Handler.
func NewHandler(rs *roster.Roster, joins *ratelimit.JoinLimiter, logger *zap.Logger) *Handler {
	return &Handler{Roster: rs, Joins: joins, Log: logger}
}

// ServeCreate handles POST /api/events.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in roster.NewEvent
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	ev, err := h.Roster.CreateEvent(ctx, caller, in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, ev)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ServeList handles GET /api/events. An optional limit query parameter
// caps the result, newest event first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	limit := int64(defaultListLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 || n > maxListLimit {
			respond.Error(w, r, h.Log, apperr.InvalidInput("limit must be between 1 and "+strconv.Itoa(maxListLimit)))
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	evs, err := h.Roster.ListEvents(ctx, limit)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if evs == nil {
		evs = []models.Event{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"events": evs})
}

// ServeGet handles GET /api/events/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	_, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	ev, err := h.Roster.GetEvent(ctx, eventID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, ev)
}

// ServeDelete handles DELETE /api/events/{id}.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	if err := h.Roster.DeleteEvent(ctx, caller, eventID); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeJoin handles POST /api/events/{id}/join.
func (h *Handler) ServeJoin(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	if h.Joins != nil {
		if ok, reason := h.Joins.Check(r, caller.UserID.Hex(), eventID.Hex()); !ok {
			respond.Error(w, r, h.Log, apperr.New(apperr.CodeRateLimited, reason))
			return
		}
	}

	var in roster.JoinInput
	if r.ContentLength != 0 {
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, h.Log, err)
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	p, err := h.Roster.Join(ctx, eventID, caller, in)
	if err != nil {
		var ae *apperr.Error
		if h.Joins != nil && errors.As(err, &ae) {
			err = ae.With("attempts_remaining", strconv.Itoa(h.Joins.Remaining(caller.UserID.Hex(), eventID.Hex())))
		}
		respond.Error(w, r, h.Log, err)
		return
	}
	if h.Joins != nil {
		h.Joins.Succeeded(caller.UserID.Hex(), eventID.Hex())
	}
	respond.JSON(w, http.StatusCreated, p)
}

// ServeLeave handles POST /api/events/{id}/leave.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	if err := h.Roster.Leave(ctx, eventID, caller.UserID); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeUpdateProfile handles PUT /api/events/{id}/profile.
func (h *Handler) ServeUpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	var in roster.ProfileInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	p, err := h.Roster.UpdateProfile(ctx, eventID, caller.UserID, in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// ServeJoinControl handles PUT /api/events/{id}/join-control.
func (h *Handler) ServeJoinControl(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	var in roster.JoinControlsInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	ev, err := h.Roster.UpdateJoinControls(ctx, caller, eventID, in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, ev)
}

// ServeParticipants handles GET /api/events/{id}/participants. Emails are
// shown to operators and to each participant for their own row.
func (h *Handler) ServeParticipants(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	ps, err := h.Roster.List(ctx, eventID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []models.Participant{}
	}
	if !caller.IsOperator() {
		for i := range ps {
			if ps[i].UserID != caller.UserID {
				ps[i].Email = ""
			}
		}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"participants": ps})
}

// ServeStats handles GET /api/events/{id}/stats.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndEvent(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	counts, err := h.Roster.Stats(ctx, caller, eventID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, counts)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (authz.Caller, bool) {
	caller, ok := authz.CallerFrom(r)
	if !ok {
		respond.Error(w, r, h.Log, apperr.NotAuthorized("sign in required"))
	}
	return caller, ok
}

func (h *Handler) callerAndEvent(w http.ResponseWriter, r *http.Request) (authz.Caller, primitive.ObjectID, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return authz.Caller{}, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, apperr.NotFound("event not found"))
		return authz.Caller{}, primitive.NilObjectID, false
	}
	return caller, id, true
}
