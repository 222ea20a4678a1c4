package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/feedbackgate"
	feedbackstore "github.com/dalemusser/interviewhub/internal/app/store/feedback"
	pairstore "github.com/dalemusser/interviewhub/internal/app/store/pairs"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/app/system/txn"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmitFeedback accepts the interviewer's one evaluation of the pair and
// completes it. Under concurrent attempts exactly one succeeds; the rest
// get AlreadySubmitted.
func (e *Engine) SubmitFeedback(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID, in feedbackgate.Input) (f models.Feedback, err error) {
	ctx, span := e.start(ctx, "lifecycle.SubmitFeedback", attribute.String("pair.id", pairID.Hex()))
	defer func() {
		if apperr.IsDomain(err) {
			e.audit.FeedbackRejected(ctx, caller.UserID, pairID, string(apperr.CodeOf(err)))
		}
		endSpan(span, err)
	}()

	if err := e.authenticate(ctx, caller); err != nil {
		return models.Feedback{}, err
	}

	retries := e.cfg.PairWriteRetries
	if retries <= 0 {
		retries = pairstore.DefaultWriteRetries
	}
	for attempt := 0; attempt < retries; attempt++ {
		f, err = e.submitOnce(ctx, caller, pairID, in)
		if !errors.Is(err, pairstore.ErrVersionConflict) {
			break
		}
		if ctx.Err() != nil {
			return models.Feedback{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Feedback{}, e.pairErr(err)
	}

	span.SetAttributes(attribute.Int("feedback.total", f.Total))
	e.audit.FeedbackSubmitted(ctx, f.RaterID, f.RateeID, f.EventID, f.PairID, f.Total)
	e.log.Info("feedback submitted",
		zap.String("pair_id", f.PairID.Hex()),
		zap.Int("total", f.Total))
	return f, nil
}

// submitOnce checks the current pair and commits the status claim and the
// feedback record together. The pair write is version-checked, so of two
// racing submissions only one passes it; the unique index on pair_id is the
// second guard. Without transactions a failed insert puts the pair back.
func (e *Engine) submitOnce(ctx context.Context, caller authz.Caller, pairID primitive.ObjectID, in feedbackgate.Input) (models.Feedback, error) {
	cur, err := e.pairs.GetByID(ctx, pairID)
	if err != nil {
		return models.Feedback{}, err
	}
	exists := false
	if caller.UserID == cur.InterviewerID {
		if exists, err = e.feedback.ExistsForPair(ctx, pairID); err != nil {
			return models.Feedback{}, fmt.Errorf("check feedback: %w", err)
		}
	}

	now := e.now()
	f, err := feedbackgate.Check(cur, caller.UserID, in, exists, now)
	if err != nil {
		return models.Feedback{}, err
	}

	err = txn.Run(ctx, e.db, e.log, func(ctx context.Context) error {
		claimed, err := e.pairs.Replace(ctx, feedbackgate.Complete(cur.Clone(), now), cur.Version)
		if err != nil {
			return err
		}
		if _, err := e.feedback.Insert(ctx, f); err != nil {
			if _, undoErr := e.pairs.Replace(ctx, cur, claimed.Version); undoErr != nil {
				e.log.Warn("could not restore pair after failed feedback insert",
					zap.String("pair_id", pairID.Hex()),
					zap.Error(undoErr))
			}
			if errors.Is(err, feedbackstore.ErrAlreadySubmitted) {
				return apperr.AlreadySubmitted("feedback already submitted for this pair")
			}
			return fmt.Errorf("insert feedback: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Feedback{}, err
	}
	return f, nil
}

// GetFeedback returns the pair's feedback to its members and operators.
func (e *Engine) GetFeedback(ctx context.Context, viewer authz.Caller, pairID primitive.ObjectID) (models.Feedback, error) {
	p, err := e.load(ctx, pairID)
	if err != nil {
		return models.Feedback{}, err
	}
	if !p.HasMember(viewer.UserID) && !viewer.IsOperator() {
		return models.Feedback{}, apperr.NotAuthorized("feedback is visible to the pair and operators only")
	}
	f, err := e.feedback.GetByPair(ctx, pairID)
	if errors.Is(err, feedbackstore.ErrNotFound) {
		return models.Feedback{}, apperr.NotFound("no feedback for this pair")
	}
	if err != nil {
		return models.Feedback{}, fmt.Errorf("load feedback: %w", err)
	}
	return f, nil
}
