package roster_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/lifecycle/negotiation"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/roster"
	eventstore "github.com/dalemusser/interviewhub/internal/app/store/events"
	pairstore "github.com/dalemusser/interviewhub/internal/app/store/pairs"
	participantstore "github.com/dalemusser/interviewhub/internal/app/store/participants"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/dalemusser/interviewhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newRoster(t *testing.T) (*roster.Roster, *mongo.Database, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := pairstore.New(db).EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes(pairs): %v", err)
	}
	if err := participantstore.New(db).EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes(participants): %v", err)
	}
	r := roster.New(db, nil, zap.NewNop(), roster.Config{})
	return r, db, testutil.NewFixtures(t, db)
}

func student() authz.Caller {
	return authz.Caller{UserID: primitive.NewObjectID(), Role: models.UserRoleStudent, Name: "Ada Lovelace"}
}

func TestCreateEvent(t *testing.T) {
	r, _, _ := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	valid := roster.NewEvent{
		Title:    "Fall Mock Drive",
		StartsAt: now,
		EndsAt:   now.Add(48 * time.Hour),
		Capacity: 10,
		JoinCode: "open-sesame",
	}

	if _, err := r.CreateEvent(ctx, student(), valid); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("student create: got %v, want NOT_AUTHORIZED", err)
	}

	bad := []struct {
		name string
		edit func(*roster.NewEvent)
	}{
		{"empty title", func(e *roster.NewEvent) { e.Title = "  " }},
		{"markup only title", func(e *roster.NewEvent) { e.Title = "<b></b>" }},
		{"ends before starts", func(e *roster.NewEvent) { e.EndsAt = e.StartsAt.Add(-time.Minute) }},
		{"ends at start", func(e *roster.NewEvent) { e.EndsAt = e.StartsAt }},
		{"negative capacity", func(e *roster.NewEvent) { e.Capacity = -1 }},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.edit(&in)
			if _, err := r.CreateEvent(ctx, testutil.Operator(), in); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("got %v, want INVALID_INPUT", err)
			}
		})
	}

	ev, err := r.CreateEvent(ctx, testutil.Operator(), valid)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if !ev.RequiresJoinCode() {
		t.Error("expected join code to be stored")
	}
	if ev.JoinCodeHash == valid.JoinCode {
		t.Error("join code stored in the clear")
	}
}

func TestJoin(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Winter Drive", 1)
	c := student()

	p, err := r.Join(ctx, ev.ID, c, roster.JoinInput{DisplayName: "Ada", Email: "Ada@Example.com"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if p.Email != "ada@example.com" {
		t.Errorf("email: got %q", p.Email)
	}

	if _, err := r.Join(ctx, ev.ID, c, roster.JoinInput{DisplayName: "Ada"}); !errors.Is(err, apperr.ErrAlreadyJoined) {
		t.Errorf("second join: got %v, want ALREADY_JOINED", err)
	}

	if _, err := r.Join(ctx, ev.ID, student(), roster.JoinInput{DisplayName: "Grace"}); !errors.Is(err, apperr.ErrCapacityReached) {
		t.Errorf("full event: got %v, want CAPACITY_REACHED", err)
	}

	if _, err := r.Join(ctx, primitive.NewObjectID(), student(), roster.JoinInput{DisplayName: "Grace"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing event: got %v, want NOT_FOUND", err)
	}

	if _, err := r.Join(ctx, ev.ID, student(), roster.JoinInput{DisplayName: "Grace", Email: "not-an-email"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad email: got %v, want INVALID_INPUT", err)
	}
}

func TestJoin_ClosedAndCode(t *testing.T) {
	r, _, _ := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	op := testutil.Operator()
	now := time.Now().UTC()
	ev, err := r.CreateEvent(ctx, op, roster.NewEvent{
		Title:    "Coded Drive",
		StartsAt: now,
		EndsAt:   now.Add(24 * time.Hour),
		JoinCode: "letmein",
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if _, err := r.Join(ctx, ev.ID, student(), roster.JoinInput{DisplayName: "Eve", JoinCode: "wrong"}); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("wrong code: got %v, want NOT_AUTHORIZED", err)
	}
	if _, err := r.Join(ctx, ev.ID, student(), roster.JoinInput{DisplayName: "Bob", JoinCode: " letmein "}); err != nil {
		t.Errorf("right code: %v", err)
	}

	disabled := true
	if _, err := r.UpdateJoinControls(ctx, op, ev.ID, roster.JoinControlsInput{JoinDisabled: &disabled}); err != nil {
		t.Fatalf("UpdateJoinControls: %v", err)
	}
	if _, err := r.Join(ctx, ev.ID, student(), roster.JoinInput{DisplayName: "Cy", JoinCode: "letmein"}); !errors.Is(err, apperr.ErrJoinClosed) {
		t.Errorf("disabled: got %v, want JOIN_CLOSED", err)
	}
}

func TestUpdateJoinControls(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Controls", 0)
	op := testutil.Operator()

	if _, err := r.UpdateJoinControls(ctx, student(), ev.ID, roster.JoinControlsInput{}); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("student: got %v, want NOT_AUTHORIZED", err)
	}
	if _, err := r.UpdateJoinControls(ctx, op, ev.ID, roster.JoinControlsInput{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty: got %v, want INVALID_INPUT", err)
	}
	neg := -3
	if _, err := r.UpdateJoinControls(ctx, op, ev.ID, roster.JoinControlsInput{Capacity: &neg}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative capacity: got %v, want INVALID_INPUT", err)
	}

	closes := time.Now().UTC().Add(-time.Minute)
	got, err := r.UpdateJoinControls(ctx, op, ev.ID, roster.JoinControlsInput{JoinClosesAt: &closes})
	if err != nil {
		t.Fatalf("UpdateJoinControls: %v", err)
	}
	if got.JoinOpen(time.Now()) {
		t.Error("event should be closed after auto-close instant passed")
	}
	if _, err := r.Join(ctx, ev.ID, student(), roster.JoinInput{DisplayName: "Late"}); !errors.Is(err, apperr.ErrJoinClosed) {
		t.Errorf("after auto-close: got %v, want JOIN_CLOSED", err)
	}

	got, err = r.UpdateJoinControls(ctx, op, ev.ID, roster.JoinControlsInput{ClearAutoClose: true})
	if err != nil {
		t.Fatalf("clear auto close: %v", err)
	}
	if !got.JoinOpen(time.Now()) {
		t.Error("event should reopen once auto-close is cleared")
	}
}

func TestLeave_PendingPairAbandoned(t *testing.T) {
	r, db, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Leave Drive", 0)
	a := fx.CreateParticipant(ctx, ev.ID, "A")
	b := fx.CreateParticipant(ctx, ev.ID, "B")
	pair := fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID})

	if err := r.Leave(ctx, ev.ID, a.UserID); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	got, err := pairstore.New(db).GetByID(ctx, pair.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.PairAbandoned || got.AbandonReason != negotiation.ReasonMemberLeft {
		t.Errorf("pair: status %q reason %q", got.Status, got.AbandonReason)
	}

	partner, err := participantstore.New(db).Get(ctx, ev.ID, b.UserID)
	if err != nil {
		t.Fatalf("Get partner: %v", err)
	}
	if !partner.CarryOver {
		t.Error("partner should be carried over")
	}
	if _, err := participantstore.New(db).Get(ctx, ev.ID, a.UserID); !errors.Is(err, participantstore.ErrNotFound) {
		t.Errorf("leaver still enrolled: %v", err)
	}

	evAfter, err := eventstore.New(db).GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID event: %v", err)
	}
	if evAfter.ParticipantCount != 1 {
		t.Errorf("participant_count: got %d, want 1", evAfter.ParticipantCount)
	}

	if err := r.Leave(ctx, ev.ID, a.UserID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second leave: got %v, want NOT_FOUND", err)
	}
}

func TestLeave_LockedOnceNegotiating(t *testing.T) {
	for _, status := range []models.PairStatus{models.PairProposed, models.PairScheduled, models.PairCompleted} {
		t.Run(string(status), func(t *testing.T) {
			r, _, fx := newRoster(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			ev := fx.CreateEvent(ctx, "Locked Drive", 0)
			a := fx.CreateParticipant(ctx, ev.ID, "A")
			b := fx.CreateParticipant(ctx, ev.ID, "B")
			fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID, Status: status})

			if err := r.Leave(ctx, ev.ID, b.UserID); !errors.Is(err, apperr.ErrParticipantLocked) {
				t.Errorf("Leave: got %v, want PARTICIPANT_LOCKED", err)
			}
			if _, err := r.UpdateProfile(ctx, ev.ID, b.UserID, roster.ProfileInput{DisplayName: "Bee"}); !errors.Is(err, apperr.ErrParticipantLocked) {
				t.Errorf("UpdateProfile: got %v, want PARTICIPANT_LOCKED", err)
			}
		})
	}
}

func TestLeave_ConflictsWithGeneration(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Busy Drive", 0)
	a := fx.CreateParticipant(ctx, ev.ID, "A")

	ok, err := r.AcquireLease(ctx, ev.ID, "generator")
	if err != nil || !ok {
		t.Fatalf("AcquireLease: ok=%v err=%v", ok, err)
	}
	if err := r.Leave(ctx, ev.ID, a.UserID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Leave during generation: got %v, want CONFLICT", err)
	}
	if err := r.ReleaseLease(ctx, ev.ID, "generator"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	if err := r.Leave(ctx, ev.ID, a.UserID); err != nil {
		t.Errorf("Leave after release: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Profile Drive", 0)
	a := fx.CreateParticipant(ctx, ev.ID, "A")

	p, err := r.UpdateProfile(ctx, ev.ID, a.UserID, roster.ProfileInput{DisplayName: "<i>Ada</i> L", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.DisplayName != "Ada L" {
		t.Errorf("DisplayName: got %q, want %q", p.DisplayName, "Ada L")
	}

	if _, err := r.UpdateProfile(ctx, ev.ID, primitive.NewObjectID(), roster.ProfileInput{DisplayName: "Who"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stranger: got %v, want NOT_FOUND", err)
	}
}

func TestUpdateProfile_HoldsEventLease(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Leased Drive", 0)
	a := fx.CreateParticipant(ctx, ev.ID, "A")
	b := fx.CreateParticipant(ctx, ev.ID, "B")

	ok, err := r.AcquireLease(ctx, ev.ID, "generator")
	if err != nil || !ok {
		t.Fatalf("AcquireLease: ok=%v err=%v", ok, err)
	}
	if _, err := r.UpdateProfile(ctx, ev.ID, a.UserID, roster.ProfileInput{DisplayName: "Ada"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("during generation: got %v, want CONFLICT", err)
	}
	if err := r.ReleaseLease(ctx, ev.ID, "generator"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}

	fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID, Status: models.PairProposed})
	if _, err := r.UpdateProfile(ctx, ev.ID, a.UserID, roster.ProfileInput{DisplayName: "Ada"}); !errors.Is(err, apperr.ErrParticipantLocked) {
		t.Errorf("negotiating member: got %v, want PARTICIPANT_LOCKED", err)
	}
	if _, err := r.UpdateProfile(ctx, primitive.NewObjectID(), a.UserID, roster.ProfileInput{DisplayName: "Ada"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing event: got %v, want NOT_FOUND", err)
	}
}

func TestListEvents(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	older := fx.CreateEventWindow(ctx, "Older", now.Add(-48*time.Hour), now.Add(time.Hour), 0)
	newer := fx.CreateEventWindow(ctx, "Newer", now, now.Add(time.Hour), 0)

	got, err := r.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("order: got %v, want newest first", got)
	}

	got, err = r.ListEvents(ctx, 1)
	if err != nil {
		t.Fatalf("ListEvents(1): %v", err)
	}
	if len(got) != 1 || got[0].ID != newer.ID {
		t.Errorf("limit: got %d events", len(got))
	}
}

func TestEligible_ExcludesActiveMembers(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := fx.CreateEvent(ctx, "Eligible Drive", 0)
	a := fx.CreateParticipant(ctx, ev.ID, "A")
	b := fx.CreateParticipant(ctx, ev.ID, "B")
	c := fx.CreateParticipant(ctx, ev.ID, "C")
	d := fx.CreateParticipant(ctx, ev.ID, "D")
	fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID, Status: models.PairScheduled})
	fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: c.UserID, IntervieweeID: d.UserID, Status: models.PairCompleted})

	got, err := r.Eligible(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	ids := map[primitive.ObjectID]bool{}
	for _, p := range got {
		ids[p.UserID] = true
	}
	if len(ids) != 2 || !ids[c.UserID] || !ids[d.UserID] {
		t.Errorf("eligible: got %v, want C and D", ids)
	}
}

func TestDeleteEvent(t *testing.T) {
	r, _, fx := newRoster(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	op := testutil.Operator()
	empty := fx.CreateEvent(ctx, "Empty", 0)
	fx.CreateParticipant(ctx, empty.ID, "A")

	if err := r.DeleteEvent(ctx, student(), empty.ID); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("student: got %v, want NOT_AUTHORIZED", err)
	}
	if err := r.DeleteEvent(ctx, op, empty.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if _, err := r.GetEvent(ctx, empty.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("after delete: got %v, want NOT_FOUND", err)
	}

	paired := fx.CreateEvent(ctx, "Paired", 0)
	a := fx.CreateParticipant(ctx, paired.ID, "A")
	b := fx.CreateParticipant(ctx, paired.ID, "B")
	fx.CreatePair(ctx, models.Pair{EventID: paired.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID, Status: models.PairAbandoned})
	if err := r.DeleteEvent(ctx, op, paired.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("event with pairs: got %v, want INVALID_STATE", err)
	}
	if err := r.DeleteEvent(ctx, op, primitive.NewObjectID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing event: got %v, want NOT_FOUND", err)
	}

	busy := fx.CreateEvent(ctx, "Busy", 0)
	ok, err := r.AcquireLease(ctx, busy.ID, "generator")
	if err != nil || !ok {
		t.Fatalf("AcquireLease: ok=%v err=%v", ok, err)
	}
	if err := r.DeleteEvent(ctx, op, busy.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("during generation: got %v, want CONFLICT", err)
	}
}
