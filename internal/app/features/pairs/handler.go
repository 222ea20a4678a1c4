// internal/app/features/pairs/handler.go
package pairs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/feedbackgate"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/app/system/respond"
	"github.com/dalemusser/interviewhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the pair lifecycle API.
type Handler struct {
	Engine *lifecycle.Engine
	Log    *zap.Logger
}

// NewHandler creates a pairs Handler.
func NewHandler(engine *lifecycle.Engine, logger *zap.Logger) *Handler {
	return &Handler{Engine: engine, Log: logger}
}

type generateResponse struct {
	EventID  primitive.ObjectID   `json:"event_id"`
	RoundID  string               `json:"round_id,omitempty"`
	Created  int                  `json:"created"`
	Pairs    []lifecycle.PairView `json:"pairs"`
	Unpaired *primitive.ObjectID  `json:"unpaired,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

type proposeRequest struct {
	Slots []time.Time `json:"slots"`
}

type voteRequest struct {
	Slot time.Time `json:"slot"`
}

type abandonRequest struct {
	Reason string `json:"reason"`
}

// ServeGenerate handles POST /api/events/{id}/pairs/generate.
//
// A roster too small to pair answers 200 with created 0 and the reason,
// since nothing went wrong.
func (h *Handler) ServeGenerate(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndID(w, r, "event not found")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "generate pairs")
	defer cancel()
	res, err := h.Engine.GeneratePairs(ctx, caller, eventID)
	out := generateResponse{
		EventID:  res.EventID,
		RoundID:  res.RoundID,
		Created:  len(res.Pairs),
		Pairs:    make([]lifecycle.PairView, 0, len(res.Pairs)),
		Unpaired: res.Unpaired,
	}
	if errors.Is(err, apperr.ErrRosterInsufficient) {
		out.Reason = string(apperr.CodeRosterInsufficient)
		respond.JSON(w, http.StatusOK, out)
		return
	}
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	for _, p := range res.Pairs {
		v, err := h.Engine.GetPair(ctx, caller, p.ID)
		if err != nil {
			respond.Error(w, r, h.Log, err)
			return
		}
		out.Pairs = append(out.Pairs, v)
	}
	respond.JSON(w, http.StatusCreated, out)
}

// ServeListForEvent handles GET /api/events/{id}/pairs.
func (h *Handler) ServeListForEvent(w http.ResponseWriter, r *http.Request) {
	caller, eventID, ok := h.callerAndID(w, r, "event not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	views, err := h.Engine.ListPairsForEvent(ctx, caller, eventID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"pairs": views})
}

// ServeGet handles GET /api/pairs/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	v, err := h.Engine.GetPair(ctx, caller, pairID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// ServePropose handles POST /api/pairs/{id}/propose.
func (h *Handler) ServePropose(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	var req proposeRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	v, err := h.Engine.ProposeSlots(ctx, caller, pairID, req.Slots)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// ServeVote handles POST /api/pairs/{id}/vote.
func (h *Handler) ServeVote(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	var req voteRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if req.Slot.IsZero() {
		respond.Error(w, r, h.Log, apperr.InvalidSlot("slot is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	v, err := h.Engine.VoteSlot(ctx, caller, pairID, req.Slot)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// ServeReject handles POST /api/pairs/{id}/reject.
func (h *Handler) ServeReject(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	v, err := h.Engine.RejectProposal(ctx, caller, pairID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// ServeSubmitFeedback handles POST /api/pairs/{id}/feedback.
func (h *Handler) ServeSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	var in feedbackgate.Input
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	f, err := h.Engine.SubmitFeedback(ctx, caller, pairID, in)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, f)
}

// ServeGetFeedback handles GET /api/pairs/{id}/feedback.
func (h *Handler) ServeGetFeedback(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	f, err := h.Engine.GetFeedback(ctx, caller, pairID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, f)
}

type historyEntry struct {
	Type          string              `json:"type"`
	At            time.Time           `json:"at"`
	ActorID       *primitive.ObjectID `json:"actor_id,omitempty"`
	UserID        *primitive.ObjectID `json:"user_id,omitempty"`
	Success       bool                `json:"success"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Details       map[string]string   `json:"details,omitempty"`
}

// ServeHistory handles GET /api/pairs/{id}/history.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	events, total, err := h.Engine.PairHistory(ctx, caller, pairID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	entries := make([]historyEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, historyEntry{
			Type:          ev.EventType,
			At:            ev.Timestamp,
			ActorID:       ev.ActorID,
			UserID:        ev.UserID,
			Success:       ev.Success,
			FailureReason: ev.FailureReason,
			Details:       ev.Details,
		})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"history": entries, "total": total})
}

// ServeAbandon handles POST /api/pairs/{id}/abandon. The body is optional.
func (h *Handler) ServeAbandon(w http.ResponseWriter, r *http.Request) {
	caller, pairID, ok := h.callerAndID(w, r, "pair not found")
	if !ok {
		return
	}
	var req abandonRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(w, r, &req); err != nil {
			respond.Error(w, r, h.Log, err)
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	p, err := h.Engine.AbandonPair(ctx, caller, pairID, req.Reason)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	v, err := h.Engine.GetPair(ctx, caller, p.ID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// callerAndID resolves the signed-in caller and the {id} URL parameter.
// A malformed id answers NOT_FOUND with notFound as the message.
func (h *Handler) callerAndID(w http.ResponseWriter, r *http.Request, notFound string) (authz.Caller, primitive.ObjectID, bool) {
	caller, ok := authz.CallerFrom(r)
	if !ok {
		respond.Error(w, r, h.Log, apperr.NotAuthorized("sign in required"))
		return authz.Caller{}, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.Log, apperr.NotFound(notFound))
		return authz.Caller{}, primitive.NilObjectID, false
	}
	return caller, id, true
}
