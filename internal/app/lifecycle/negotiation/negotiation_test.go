package negotiation_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/negotiation"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	ev  = models.Event{
		StartsAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
	}
	t1 = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 4, 3, 15, 0, 0, 0, time.UTC)
)

func newPair() models.Pair {
	return models.Pair{
		ID:            primitive.NewObjectID(),
		InterviewerID: primitive.NewObjectID(),
		IntervieweeID: primitive.NewObjectID(),
		Status:        models.PairPending,
	}
}

func proposed(t *testing.T) models.Pair {
	t.Helper()
	p := newPair()
	p, err := negotiation.Propose(p, p.InterviewerID, []time.Time{t1, t2}, ev, now, 0)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	return p
}

func wantCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Errorf("got code %s, want %s (err=%v)", got, code, err)
	}
}

func TestPropose(t *testing.T) {
	p := newPair()
	withNanos := t1.Add(400 * time.Millisecond)

	got, err := negotiation.Propose(p, p.InterviewerID, []time.Time{withNanos, t2, t1}, ev, now, 0)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if got.Status != models.PairProposed {
		t.Errorf("status = %s, want proposed", got.Status)
	}
	if len(got.ProposedSlots) != 2 {
		t.Fatalf("got %d slots, want 2 after dedupe", len(got.ProposedSlots))
	}
	if !got.ProposedSlots[0].Equal(t1) || !got.ProposedSlots[1].Equal(t2) {
		t.Errorf("slots = %v, want [%v %v]", got.ProposedSlots, t1, t2)
	}
	if got.ProposedAt == nil || !got.ProposedAt.Equal(now) {
		t.Errorf("ProposedAt = %v, want %v", got.ProposedAt, now)
	}
}

func TestPropose_Errors(t *testing.T) {
	p := newPair()
	tests := []struct {
		name   string
		pair   func() models.Pair
		caller primitive.ObjectID
		slots  []time.Time
		max    int
		code   apperr.Code
	}{
		{"interviewee cannot propose", newPairCopy(p), p.IntervieweeID, []time.Time{t1}, 0, apperr.CodeNotAuthorized},
		{"stranger cannot propose", newPairCopy(p), primitive.NewObjectID(), []time.Time{t1}, 0, apperr.CodeNotAuthorized},
		{"not pending", withStatus(p, models.PairScheduled), p.InterviewerID, []time.Time{t1}, 0, apperr.CodeInvalidState},
		{"empty slots", newPairCopy(p), p.InterviewerID, nil, 0, apperr.CodeInvalidSlot},
		{"past slot", newPairCopy(p), p.InterviewerID, []time.Time{now.Add(-time.Hour)}, 0, apperr.CodeInvalidSlot},
		{"now is not future", newPairCopy(p), p.InterviewerID, []time.Time{now}, 0, apperr.CodeInvalidSlot},
		{"after event end", newPairCopy(p), p.InterviewerID, []time.Time{ev.EndsAt.Add(time.Second)}, 0, apperr.CodeInvalidSlot},
		{"too many", newPairCopy(p), p.InterviewerID, []time.Time{t1, t2}, 1, apperr.CodeInvalidSlot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := negotiation.Propose(tt.pair(), tt.caller, tt.slots, ev, now, tt.max)
			wantCode(t, err, tt.code)
		})
	}
}

func newPairCopy(p models.Pair) func() models.Pair {
	return func() models.Pair { return p.Clone() }
}

func withStatus(p models.Pair, s models.PairStatus) func() models.Pair {
	return func() models.Pair {
		c := p.Clone()
		c.Status = s
		return c
	}
}

func TestVote_ConvergesOnlyOnSameSlot(t *testing.T) {
	p := proposed(t)

	p, converged, err := negotiation.Vote(p, p.InterviewerID, t1, now)
	if err != nil || converged {
		t.Fatalf("first vote: converged=%v err=%v", converged, err)
	}

	p, converged, err = negotiation.Vote(p, p.IntervieweeID, t2, now)
	if err != nil || converged {
		t.Fatalf("different slot: converged=%v err=%v", converged, err)
	}
	if p.Status != models.PairProposed {
		t.Fatalf("status = %s, want proposed", p.Status)
	}

	// Interviewee changes their mind.
	p, converged, err = negotiation.Vote(p, p.IntervieweeID, t1.Add(300*time.Millisecond), now)
	if err != nil {
		t.Fatalf("revote failed: %v", err)
	}
	if !converged {
		t.Fatal("expected convergence on identical slot")
	}
	if p.Status != models.PairScheduled {
		t.Errorf("status = %s, want scheduled", p.Status)
	}
	if p.ScheduledAt == nil || !p.ScheduledAt.Equal(t1) {
		t.Errorf("ScheduledAt = %v, want %v", p.ScheduledAt, t1)
	}

	_, _, err = negotiation.Vote(p, p.InterviewerID, t2, now)
	wantCode(t, err, apperr.CodeAlreadyScheduled)
}

func TestVote_Errors(t *testing.T) {
	p := proposed(t)

	_, _, err := negotiation.Vote(p, primitive.NewObjectID(), t1, now)
	wantCode(t, err, apperr.CodeNotAuthorized)

	_, _, err = negotiation.Vote(p, p.InterviewerID, t1.Add(time.Second), now)
	wantCode(t, err, apperr.CodeInvalidSlot)

	_, _, err = negotiation.Vote(p, p.InterviewerID, t1, t1.Add(time.Minute))
	wantCode(t, err, apperr.CodeInvalidSlot)

	pending := newPair()
	_, _, err = negotiation.Vote(pending, pending.InterviewerID, t1, now)
	wantCode(t, err, apperr.CodeInvalidState)

	completed := newPair()
	completed.Status = models.PairCompleted
	_, _, err = negotiation.Vote(completed, completed.IntervieweeID, t1, now)
	wantCode(t, err, apperr.CodeAlreadyScheduled)
}

func TestVote_StrangerRejectedInEveryState(t *testing.T) {
	stranger := primitive.NewObjectID()
	for _, s := range []models.PairStatus{models.PairPending, models.PairProposed, models.PairScheduled, models.PairCompleted, models.PairAbandoned} {
		t.Run(string(s), func(t *testing.T) {
			p := proposed(t)
			p.Status = s
			_, _, err := negotiation.Vote(p, stranger, t1, now)
			wantCode(t, err, apperr.CodeNotAuthorized)
			_, err = negotiation.Reject(p, stranger)
			wantCode(t, err, apperr.CodeNotAuthorized)
		})
	}
}

func TestReject(t *testing.T) {
	p := proposed(t)
	p, _, _ = negotiation.Vote(p, p.InterviewerID, t1, now)

	got, err := negotiation.Reject(p, p.IntervieweeID)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if got.Status != models.PairPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.RejectionCount != 1 {
		t.Errorf("RejectionCount = %d, want 1", got.RejectionCount)
	}
	if len(got.ProposedSlots) != 0 || len(got.Votes) != 0 {
		t.Errorf("slots/votes not cleared: %v %v", got.ProposedSlots, got.Votes)
	}

	_, err = negotiation.Reject(got, got.InterviewerID)
	wantCode(t, err, apperr.CodeInvalidState)
}

func TestReject_CountIsUnbounded(t *testing.T) {
	p := newPair()
	for i := 0; i < 25; i++ {
		var err error
		p, err = negotiation.Propose(p, p.InterviewerID, []time.Time{t1}, ev, now, 0)
		if err != nil {
			t.Fatalf("round %d Propose: %v", i, err)
		}
		p, err = negotiation.Reject(p, p.InterviewerID)
		if err != nil {
			t.Fatalf("round %d Reject: %v", i, err)
		}
	}
	if p.RejectionCount != 25 {
		t.Errorf("RejectionCount = %d, want 25", p.RejectionCount)
	}
}

func TestExpire(t *testing.T) {
	got, err := negotiation.Expire(proposed(t))
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if got.Status != models.PairPending || got.RejectionCount != 1 {
		t.Errorf("got status %s count %d", got.Status, got.RejectionCount)
	}

	_, err = negotiation.Expire(newPair())
	wantCode(t, err, apperr.CodeInvalidState)
}

func TestAbandon(t *testing.T) {
	for _, s := range []models.PairStatus{models.PairPending, models.PairProposed, models.PairScheduled} {
		p := newPair()
		p.Status = s
		got, err := negotiation.Abandon(p, negotiation.ReasonOperator, now)
		if err != nil {
			t.Fatalf("Abandon from %s failed: %v", s, err)
		}
		if got.Status != models.PairAbandoned || got.AbandonReason != negotiation.ReasonOperator {
			t.Errorf("from %s: got %s/%q", s, got.Status, got.AbandonReason)
		}
	}

	done := newPair()
	done.Status = models.PairCompleted
	_, err := negotiation.Abandon(done, negotiation.ReasonOperator, now)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("got %v, want InvalidState", err)
	}
}

func TestCleanReason(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", negotiation.ReasonOperator},
		{"markup only", "<b></b>", negotiation.ReasonOperator},
		{"script stripped", `no-show <script>alert(1)</script>`, "no-show"},
		{"plain", "duplicate pairing", "duplicate pairing"},
		{"at limit", strings.Repeat("é", negotiation.MaxReasonRunes), strings.Repeat("é", negotiation.MaxReasonRunes)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := negotiation.CleanReason(tt.in)
			if err != nil {
				t.Fatalf("CleanReason: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	_, err := negotiation.CleanReason(strings.Repeat("x", negotiation.MaxReasonRunes+1))
	wantCode(t, err, apperr.CodeInvalidInput)
}
