package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/negotiation"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProposeSlots moves a pending pair to proposed with the interviewer's
// candidate slots.
func (e *Engine) ProposeSlots(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID, slots []time.Time) (v PairView, err error) {
	ctx, span := e.start(ctx, "lifecycle.ProposeSlots",
		attribute.String("pair.id", pairID.Hex()),
		attribute.Int("slots", len(slots)))
	defer func() { endSpan(span, err) }()

	if err := e.authenticate(ctx, caller); err != nil {
		return PairView{}, err
	}
	cur, err := e.load(ctx, pairID)
	if err != nil {
		return PairView{}, err
	}
	if caller.UserID != cur.InterviewerID {
		return PairView{}, apperr.NotAuthorized("only the interviewer may propose slots")
	}
	ev, err := e.roster.GetEvent(ctx, cur.EventID)
	if err != nil {
		return PairView{}, err
	}

	now := e.now()
	p, err := e.mutate(ctx, pairID, func(p models.Pair) (models.Pair, error) {
		return negotiation.Propose(p, caller.UserID, slots, ev, now, e.cfg.MaxProposedSlots)
	})
	if err != nil {
		return PairView{}, err
	}

	e.audit.SlotsProposed(ctx, caller.UserID, p.EventID, p.ID, len(p.ProposedSlots))
	return e.view(p, caller), nil
}

// VoteSlot records the caller's choice among the proposed slots. When both
// members agree the pair is scheduled in the same write and a meeting link
// is requested.
func (e *Engine) VoteSlot(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID, slot time.Time) (v PairView, err error) {
	ctx, span := e.start(ctx, "lifecycle.VoteSlot", attribute.String("pair.id", pairID.Hex()))
	defer func() { endSpan(span, err) }()

	if err := e.authenticate(ctx, caller); err != nil {
		return PairView{}, err
	}

	now := e.now()
	var converged bool
	p, err := e.mutate(ctx, pairID, func(p models.Pair) (models.Pair, error) {
		next, ok, err := negotiation.Vote(p, caller.UserID, slot, now)
		converged = ok
		return next, err
	})
	if err != nil {
		return PairView{}, err
	}

	e.audit.SlotVoted(ctx, caller.UserID, p.EventID, p.ID, negotiation.Normalize(slot))
	if converged {
		span.SetAttributes(attribute.Bool("pair.scheduled", true))
		e.audit.PairScheduled(ctx, p.EventID, p.ID, *p.ScheduledAt)
		e.log.Info("pair scheduled",
			zap.String("pair_id", p.ID.Hex()),
			zap.Time("scheduled_at", *p.ScheduledAt))
		e.requestLink(p.ID)
	}
	return e.view(p, caller), nil
}

// RejectProposal sends a proposed pair back to pending and counts the
// rejection. There is no limit on the count.
func (e *Engine) RejectProposal(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID) (v PairView, err error) {
	ctx, span := e.start(ctx, "lifecycle.RejectProposal", attribute.String("pair.id", pairID.Hex()))
	defer func() { endSpan(span, err) }()

	if err := e.authenticate(ctx, caller); err != nil {
		return PairView{}, err
	}
	p, err := e.mutate(ctx, pairID, func(p models.Pair) (models.Pair, error) {
		return negotiation.Reject(p, caller.UserID)
	})
	if err != nil {
		return PairView{}, err
	}

	span.SetAttributes(attribute.Int("pair.rejection_count", p.RejectionCount))
	e.audit.ProposalRejected(ctx, caller.UserID, p.EventID, p.ID, p.RejectionCount)
	return e.view(p, caller), nil
}

// ExpireStaleProposals returns proposals older than the negotiation timeout
// to pending, counting each as a rejection. It reports how many moved.
func (e *Engine) ExpireStaleProposals(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.NegotiationTimeout)
	ids, err := e.pairs.StaleProposals(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale proposals: %w", err)
	}

	n := 0
	for _, id := range ids {
		p, err := e.mutate(ctx, id, func(p models.Pair) (models.Pair, error) {
			if p.ProposedAt == nil || p.ProposedAt.After(cutoff) {
				return p, apperr.InvalidState("proposal was renewed")
			}
			return negotiation.Expire(p)
		})
		if apperr.IsDomain(err) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		e.audit.ProposalExpired(ctx, p.EventID, p.ID, p.RejectionCount)
	}
	return n, nil
}

// AbandonEndedEvents abandons pending and proposed pairs of events whose
// window has closed. Scheduled pairs wait FeedbackGrace past the event end
// for feedback and are abandoned after that.
func (e *Engine) AbandonEndedEvents(ctx context.Context) (int, error) {
	now := e.now()
	ended, err := e.events.EndedBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find ended events: %w", err)
	}
	open, err := e.pairs.OpenInEvents(ctx, ended)
	if err != nil {
		return 0, fmt.Errorf("find open pairs: %w", err)
	}
	n, err := e.abandonEnded(ctx, open, now, models.PairPending, models.PairProposed)
	if err != nil {
		return n, err
	}

	lapsed, err := e.events.EndedBefore(ctx, now.Add(-e.cfg.FeedbackGrace))
	if err != nil {
		return n, fmt.Errorf("find lapsed events: %w", err)
	}
	scheduled, err := e.pairs.ScheduledInEvents(ctx, lapsed)
	if err != nil {
		return n, fmt.Errorf("find scheduled pairs: %w", err)
	}
	m, err := e.abandonEnded(ctx, scheduled, now, models.PairScheduled)
	return n + m, err
}

func (e *Engine) abandonEnded(ctx context.Context, ids []primitive.ObjectID, now time.Time, from ...models.PairStatus) (int, error) {
	n := 0
	for _, id := range ids {
		p, err := e.mutate(ctx, id, func(p models.Pair) (models.Pair, error) {
			if !slices.Contains(from, p.Status) {
				return p, apperr.InvalidState("pair is " + string(p.Status))
			}
			return negotiation.Abandon(p, negotiation.ReasonEventEnded, now)
		})
		if apperr.IsDomain(err) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		e.audit.PairAbandoned(ctx, nil, p.EventID, p.ID, negotiation.ReasonEventEnded)
	}
	return n, nil
}
