// Package feedbackgate decides whether a feedback submission is accepted
// and builds the record to persist.
package feedbackgate

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxCommentRunes bounds the optional comment after sanitizing.
const MaxCommentRunes = 2000

// Input is one submission: five scores in models.ScoreCriteria order and
// an optional comment.
type Input struct {
	Scores  []int  `json:"scores"`
	Comment string `json:"comment,omitempty"`
}

// Check applies the acceptance rules in order: rater identity, prior
// submission, score ranges, then pair state. exists reports whether a
// feedback record for the pair is already stored.
func Check(p models.Pair, raterID primitive.ObjectID, in Input, exists bool, now time.Time) (models.Feedback, error) {
	if raterID != p.InterviewerID {
		return models.Feedback{}, apperr.NotAuthorized("only the interviewer may submit feedback")
	}
	if exists || p.Status == models.PairCompleted {
		return models.Feedback{}, apperr.AlreadySubmitted("feedback already submitted for this pair")
	}

	scores, comment, err := validate(in)
	if err != nil {
		return models.Feedback{}, err
	}

	switch p.Status {
	case models.PairPending, models.PairProposed:
		return models.Feedback{}, apperr.PairNotReady("pair has no scheduled meeting yet")
	case models.PairAbandoned:
		return models.Feedback{}, apperr.InvalidState("pair was abandoned")
	}

	total := 0
	for _, v := range scores.Values() {
		total += v
	}
	return models.Feedback{
		ID:          primitive.NewObjectID(),
		PairID:      p.ID,
		EventID:     p.EventID,
		RaterID:     p.InterviewerID,
		RateeID:     p.IntervieweeID,
		Scores:      scores,
		Total:       total,
		Comment:     comment,
		SubmittedAt: now.UTC(),
	}, nil
}

func validate(in Input) (models.Scores, string, error) {
	if len(in.Scores) != len(models.ScoreCriteria) {
		return models.Scores{}, "", apperr.OutOfRange(fmt.Sprintf("expected %d scores, got %d", len(models.ScoreCriteria), len(in.Scores)))
	}
	for i, v := range in.Scores {
		if v < models.ScoreMin || v > models.ScoreMax {
			return models.Scores{}, "", apperr.OutOfRange(fmt.Sprintf("%s score %d is outside [%d,%d]",
				models.ScoreCriteria[i], v, models.ScoreMin, models.ScoreMax)).
				With("criterion", models.ScoreCriteria[i])
		}
	}

	comment := htmlsanitize.PlainText(in.Comment)
	if utf8.RuneCountInString(comment) > MaxCommentRunes {
		return models.Scores{}, "", apperr.OutOfRange(fmt.Sprintf("comment exceeds %d characters", MaxCommentRunes))
	}
	return models.ScoresFrom(in.Scores), comment, nil
}

// Complete marks a scheduled pair completed.
func Complete(p models.Pair, now time.Time) models.Pair {
	at := now.UTC()
	p.Status = models.PairCompleted
	p.CompletedAt = &at
	return p
}
