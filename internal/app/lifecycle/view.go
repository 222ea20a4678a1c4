package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PairView is a pair as callers see it. MeetingLink stays nil until the
// lead time before the meeting, and only members and operators ever see
// it. LinkVisibleAt says when it will appear.
type PairView struct {
	ID             primitive.ObjectID   `json:"id"`
	EventID        primitive.ObjectID   `json:"event_id"`
	RoundID        string               `json:"round_id"`
	InterviewerID  primitive.ObjectID   `json:"interviewer_id"`
	IntervieweeID  primitive.ObjectID   `json:"interviewee_id"`
	Status         models.PairStatus    `json:"status"`
	ProposedSlots  []time.Time          `json:"proposed_slots"`
	Votes          map[string]time.Time `json:"votes,omitempty"`
	ProposedAt     *time.Time           `json:"proposed_at,omitempty"`
	RejectionCount int                  `json:"rejection_count"`
	ScheduledAt    *time.Time           `json:"scheduled_at,omitempty"`
	MeetingLink    *string              `json:"meeting_link"`
	LinkVisibleAt  *time.Time           `json:"link_visible_at,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	AbandonedAt    *time.Time           `json:"abandoned_at,omitempty"`
	AbandonReason  string               `json:"abandon_reason,omitempty"`
	Version        int64                `json:"version"`
	CreatedAt      time.Time            `json:"created_at"`
}

func (e *Engine) view(p models.Pair, viewer authz.Caller) PairView {
	return newView(p, viewer, e.now(), e.cfg.MeetingLinkLead)
}

func newView(p models.Pair, viewer authz.Caller, now time.Time, lead time.Duration) PairView {
	v := PairView{
		ID:             p.ID,
		EventID:        p.EventID,
		RoundID:        p.RoundID,
		InterviewerID:  p.InterviewerID,
		IntervieweeID:  p.IntervieweeID,
		Status:         p.Status,
		ProposedSlots:  append([]time.Time{}, p.ProposedSlots...),
		ProposedAt:     p.ProposedAt,
		RejectionCount: p.RejectionCount,
		ScheduledAt:    p.ScheduledAt,
		CompletedAt:    p.CompletedAt,
		AbandonedAt:    p.AbandonedAt,
		AbandonReason:  p.AbandonReason,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
	}
	if len(p.Votes) > 0 {
		v.Votes = make(map[string]time.Time, len(p.Votes))
		for k, t := range p.Votes {
			v.Votes[k] = t
		}
	}

	if p.ScheduledAt != nil {
		visible := p.ScheduledAt.Add(-lead)
		v.LinkVisibleAt = &visible
		entitled := p.HasMember(viewer.UserID) || viewer.IsOperator()
		if entitled && p.MeetingLink != nil && !now.Before(visible) {
			link := *p.MeetingLink
			v.MeetingLink = &link
		}
	}
	return v
}

// GetPair returns one pair as viewer sees it.
func (e *Engine) GetPair(ctx context.Context, viewer authz.Caller, pairID primitive.ObjectID) (PairView, error) {
	p, err := e.load(ctx, pairID)
	if err != nil {
		return PairView{}, err
	}
	return e.view(p, viewer), nil
}

// ListPairsForEvent returns the event's pairs in creation order.
func (e *Engine) ListPairsForEvent(ctx context.Context, viewer authz.Caller, eventID primitive.ObjectID) ([]PairView, error) {
	if _, err := e.roster.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	pairs, err := e.pairs.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	now := e.now()
	out := make([]PairView, len(pairs))
	for i, p := range pairs {
		out[i] = newView(p, viewer, now, e.cfg.MeetingLinkLead)
	}
	return out, nil
}
