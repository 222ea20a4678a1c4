package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/store/sessions"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, _ := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateEvent inserts an open event running from an hour ago to three days
// from now. capacity 0 means unlimited.
func (f *Fixtures) CreateEvent(ctx context.Context, title string, capacity int) models.Event {
	f.t.Helper()

	now := time.Now().UTC()
	return f.CreateEventWindow(ctx, title, now.Add(-time.Hour), now.Add(72*time.Hour), capacity)
}

// CreateEventWindow inserts an event with an explicit window.
func (f *Fixtures) CreateEventWindow(ctx context.Context, title string, startsAt, endsAt time.Time, capacity int) models.Event {
	f.t.Helper()

	now := time.Now().UTC()
	ev := models.Event{
		ID:        primitive.NewObjectID(),
		Title:     title,
		TitleCI:   text.Fold(title),
		StartsAt:  startsAt.UTC(),
		EndsAt:    endsAt.UTC(),
		Capacity:  capacity,
		CreatedBy: primitive.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("events").InsertOne(ctx, ev); err != nil {
		f.t.Fatalf("failed to create test event: %v", err)
	}
	return ev
}

// CreateParticipant enrolls a fresh user in the event and bumps its
// participant count. It returns the enrollment.
func (f *Fixtures) CreateParticipant(ctx context.Context, eventID primitive.ObjectID, name string) models.Participant {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Participant{
		ID:            primitive.NewObjectID(),
		EventID:       eventID,
		UserID:        primitive.NewObjectID(),
		DisplayName:   name,
		DisplayNameCI: text.Fold(name),
		JoinedAt:      now,
		UpdatedAt:     now,
	}

	if _, err := f.db.Collection("event_participants").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test participant: %v", err)
	}
	_, err := f.db.Collection("events").UpdateByID(ctx, eventID,
		map[string]any{"$inc": map[string]any{"participant_count": 1}})
	if err != nil {
		f.t.Fatalf("failed to bump participant count: %v", err)
	}
	return p
}

// CreatePair inserts a pair directly, bypassing generation. Active and
// MemberIDs follow the status.
func (f *Fixtures) CreatePair(ctx context.Context, p models.Pair) models.Pair {
	f.t.Helper()

	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Status == "" {
		p.Status = models.PairPending
	}
	if p.RoundID == "" {
		p.RoundID = "test-round"
	}
	p.MemberIDs = []primitive.ObjectID{p.InterviewerID, p.IntervieweeID}
	p.Active = !p.Status.Terminal()
	if p.Version == 0 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if _, err := f.db.Collection("pairs").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test pair: %v", err)
	}
	return p
}

// CreateScheduledPair inserts a scheduled pair at the given instant.
func (f *Fixtures) CreateScheduledPair(ctx context.Context, eventID, interviewerID, intervieweeID primitive.ObjectID, at time.Time) models.Pair {
	f.t.Helper()

	at = at.UTC().Truncate(time.Second)
	return f.CreatePair(ctx, models.Pair{
		EventID:       eventID,
		InterviewerID: interviewerID,
		IntervieweeID: intervieweeID,
		Status:        models.PairScheduled,
		ProposedSlots: []time.Time{at},
		ScheduledAt:   &at,
	})
}

// CreateSession inserts an open login session for userID, the way the
// identity service records a sign-in.
func (f *Fixtures) CreateSession(ctx context.Context, userID primitive.ObjectID) sessions.Session {
	f.t.Helper()

	now := time.Now().UTC()
	sess := sessions.Session{
		ID:           primitive.NewObjectID(),
		UserID:       userID,
		LoginAt:      now,
		LastActiveAt: now,
		IP:           "127.0.0.1",
		UserAgent:    "test",
	}
	if _, err := f.db.Collection("sessions").InsertOne(ctx, sess); err != nil {
		f.t.Fatalf("failed to create test session: %v", err)
	}
	return sess
}

// CloseSession marks a session signed out.
func (f *Fixtures) CloseSession(ctx context.Context, sessionID primitive.ObjectID) {
	f.t.Helper()

	_, err := f.db.Collection("sessions").UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"logout_at": time.Now().UTC(), "end_reason": "logout"}})
	if err != nil {
		f.t.Fatalf("failed to close test session: %v", err)
	}
}

// GetSession reads a session back.
func (f *Fixtures) GetSession(ctx context.Context, sessionID primitive.ObjectID) sessions.Session {
	f.t.Helper()

	var sess sessions.Session
	if err := f.db.Collection("sessions").FindOne(ctx, bson.M{"_id": sessionID}).Decode(&sess); err != nil {
		f.t.Fatalf("failed to load test session: %v", err)
	}
	return sess
}

// Caller returns a caller for a participant.
func Caller(p models.Participant) authz.Caller {
	return authz.Caller{UserID: p.UserID, Role: models.UserRoleStudent, Name: p.DisplayName}
}

// Operator returns a coordinator caller with a fresh ID.
func Operator() authz.Caller {
	return authz.Caller{UserID: primitive.NewObjectID(), Role: models.UserRoleCoordinator, Name: "Test Coordinator"}
}
