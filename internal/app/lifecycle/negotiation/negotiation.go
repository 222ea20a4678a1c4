// Package negotiation holds the pair scheduling state machine. Every
// function takes the current pair by value and returns the next state or a
// domain error; nothing here touches storage.
package negotiation

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultMaxSlots caps the number of distinct slots in one proposal.
const DefaultMaxSlots = 10

// Abandon reasons recorded on the pair.
const (
	ReasonOperator   = "operator"
	ReasonEventEnded = "event_ended"
	ReasonMemberLeft = "member_left"
)

// MaxReasonRunes bounds an operator's abandon reason after sanitizing.
const MaxReasonRunes = 200

// CleanReason strips markup from an operator-supplied abandon reason.
// An empty result falls back to ReasonOperator.
func CleanReason(reason string) (string, error) {
	reason = htmlsanitize.PlainText(reason)
	if reason == "" {
		return ReasonOperator, nil
	}
	if utf8.RuneCountInString(reason) > MaxReasonRunes {
		return "", apperr.InvalidInput(fmt.Sprintf("reason exceeds %d characters", MaxReasonRunes))
	}
	return reason, nil
}

// Normalize truncates t to whole seconds in UTC. Slots are stored and
// compared in this form only.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Propose moves a pending pair to proposed with the interviewer's candidate
// slots. Slots are normalized and deduplicated keeping first occurrence.
func Propose(p models.Pair, callerID primitive.ObjectID, slots []time.Time, ev models.Event, now time.Time, maxSlots int) (models.Pair, error) {
	if callerID != p.InterviewerID {
		return p, apperr.NotAuthorized("only the interviewer may propose slots")
	}
	if p.Status != models.PairPending {
		return p, apperr.InvalidState("pair is " + string(p.Status) + "; slots can only be proposed while pending")
	}
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}

	clean, err := cleanSlots(slots, ev, now, maxSlots)
	if err != nil {
		return p, err
	}

	at := now.UTC()
	p.Status = models.PairProposed
	p.ProposedSlots = clean
	p.Votes = map[string]time.Time{}
	p.ProposedAt = &at
	return p, nil
}

func cleanSlots(slots []time.Time, ev models.Event, now time.Time, maxSlots int) ([]time.Time, error) {
	if len(slots) == 0 {
		return nil, apperr.InvalidSlot("at least one slot is required")
	}

	start := Normalize(ev.StartsAt)
	end := Normalize(ev.EndsAt)
	cutoff := Normalize(now)

	seen := make(map[int64]bool, len(slots))
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		if s.IsZero() {
			return nil, apperr.InvalidSlot("slot is missing a time")
		}
		n := Normalize(s)
		if seen[n.Unix()] {
			continue
		}
		seen[n.Unix()] = true
		if !n.After(cutoff) {
			return nil, apperr.InvalidSlot("slot " + n.Format(time.RFC3339) + " is not in the future").
				With("slot", n.Format(time.RFC3339))
		}
		if n.Before(start) || n.After(end) {
			return nil, apperr.InvalidSlot("slot " + n.Format(time.RFC3339) + " is outside the event window").
				With("slot", n.Format(time.RFC3339))
		}
		out = append(out, n)
	}
	if len(out) > maxSlots {
		return nil, apperr.InvalidSlot("too many slots proposed")
	}
	return out, nil
}

// Vote records the caller's choice of one proposed slot. When both members
// have voted for the same slot the pair becomes scheduled and converged is
// true. A member may change their vote until then.
func Vote(p models.Pair, callerID primitive.ObjectID, slot time.Time, now time.Time) (next models.Pair, converged bool, err error) {
	if !p.HasMember(callerID) {
		return p, false, apperr.NotAuthorized("not your session to vote on")
	}
	switch p.Status {
	case models.PairProposed:
	case models.PairScheduled, models.PairCompleted:
		return p, false, apperr.AlreadyScheduled("pair already scheduled")
	default:
		return p, false, apperr.InvalidState("pair is " + string(p.Status) + "; there is no proposal to vote on")
	}

	n := Normalize(slot)
	if !containsSlot(p.ProposedSlots, n) {
		return p, false, apperr.InvalidSlot("slot is not among the proposed slots").
			With("slot", n.Format(time.RFC3339))
	}
	if !n.After(Normalize(now)) {
		return p, false, apperr.InvalidSlot("slot has already passed").
			With("slot", n.Format(time.RFC3339))
	}

	if p.Votes == nil {
		p.Votes = map[string]time.Time{}
	}
	p.Votes[callerID.Hex()] = n

	a, okA := p.Votes[p.InterviewerID.Hex()]
	b, okB := p.Votes[p.IntervieweeID.Hex()]
	if okA && okB && a.Equal(b) {
		at := a
		p.Status = models.PairScheduled
		p.ScheduledAt = &at
		return p, true, nil
	}
	return p, false, nil
}

// Reject returns a proposed pair to pending and counts the rejection.
func Reject(p models.Pair, callerID primitive.ObjectID) (models.Pair, error) {
	if !p.HasMember(callerID) {
		return p, apperr.NotAuthorized("not your session to reject")
	}
	if p.Status != models.PairProposed {
		return p, apperr.InvalidState("pair is " + string(p.Status) + "; only a proposal can be rejected")
	}
	return reset(p), nil
}

// Expire treats a proposal that never converged like a rejection.
func Expire(p models.Pair) (models.Pair, error) {
	if p.Status != models.PairProposed {
		return p, apperr.InvalidState("pair is " + string(p.Status) + "; nothing to expire")
	}
	return reset(p), nil
}

func reset(p models.Pair) models.Pair {
	p.Status = models.PairPending
	p.ProposedSlots = nil
	p.Votes = nil
	p.ProposedAt = nil
	p.RejectionCount++
	return p
}

// Abandon ends a pair that has not completed.
func Abandon(p models.Pair, reason string, now time.Time) (models.Pair, error) {
	switch p.Status {
	case models.PairCompleted:
		return p, apperr.InvalidState("pair already completed")
	case models.PairAbandoned:
		return p, apperr.InvalidState("pair already abandoned")
	}
	at := now.UTC()
	p.Status = models.PairAbandoned
	p.AbandonedAt = &at
	p.AbandonReason = reason
	return p, nil
}

func containsSlot(slots []time.Time, t time.Time) bool {
	for _, s := range slots {
		if Normalize(s).Equal(t) {
			return true
		}
	}
	return false
}
