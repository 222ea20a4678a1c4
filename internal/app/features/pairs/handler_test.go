package pairs_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/features/pairs"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle"
	"github.com/dalemusser/interviewhub/internal/app/lifecycle/roster"
	"github.com/dalemusser/interviewhub/internal/app/store/audit"
	"github.com/dalemusser/interviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/interviewhub/internal/app/system/auth"
	"github.com/dalemusser/interviewhub/internal/app/system/indexes"
	"github.com/dalemusser/interviewhub/internal/app/system/timeouts"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"github.com/dalemusser/interviewhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type testEnv struct {
	fx     *testutil.Fixtures
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db, logger); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	sm, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", 24*time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	rs := roster.New(db, nil, logger, roster.Config{})
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Pairs: "db", Roster: "off"})
	engine := lifecycle.New(lifecycle.Deps{DB: db, Roster: rs, Audit: auditLog, Log: logger}, lifecycle.Config{})
	h := pairs.NewHandler(engine, logger)

	r := chi.NewRouter()
	r.Mount("/api/pairs", pairs.Routes(h, sm))
	r.Route("/api/events", func(er chi.Router) {
		er.Use(sm.RequireSignedIn)
		pairs.MountEventRoutes(er, h, sm)
	})
	return &testEnv{fx: testutil.NewFixtures(t, db), router: r}
}

func (e *testEnv) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func userFor(p models.Participant) testutil.TestUser {
	return testutil.StudentUser(p.UserID, p.DisplayName)
}

func TestPairFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Fall Drive", 0)
	a := env.fx.CreateParticipant(ctx, ev.ID, "Ada")
	b := env.fx.CreateParticipant(ctx, ev.ID, "Grace")
	byUser := map[primitive.ObjectID]models.Participant{a.UserID: a, b.UserID: b}

	rec := env.do(testutil.NewAuthenticatedRequest(http.MethodPost,
		"/api/events/"+ev.ID.Hex()+"/pairs/generate", testutil.CoordinatorUser()))
	rec.AssertStatus(t, http.StatusCreated)

	var gen struct {
		Created int                  `json:"created"`
		Pairs   []lifecycle.PairView `json:"pairs"`
	}
	rec.DecodeJSON(t, &gen)
	if gen.Created != 1 || len(gen.Pairs) != 1 {
		t.Fatalf("created: got %d (%d pairs), want 1", gen.Created, len(gen.Pairs))
	}
	pair := gen.Pairs[0]
	interviewer := userFor(byUser[pair.InterviewerID])
	interviewee := userFor(byUser[pair.IntervieweeID])
	base := "/api/pairs/" + pair.ID.Hex()

	slot := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, base+"/propose",
		map[string]any{"slots": []time.Time{slot, slot.Add(time.Hour)}}), interviewer)
	rec = env.do(req)
	rec.AssertStatus(t, http.StatusOK)

	for _, u := range []testutil.TestUser{interviewer, interviewee} {
		req = testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, base+"/vote",
			map[string]any{"slot": slot}), u)
		env.do(req).AssertStatus(t, http.StatusOK)
	}

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, base, interviewee))
	rec.AssertStatus(t, http.StatusOK)
	var view lifecycle.PairView
	rec.DecodeJSON(t, &view)
	if view.Status != models.PairScheduled {
		t.Fatalf("status: got %q, want scheduled", view.Status)
	}
	if view.ScheduledAt == nil || !view.ScheduledAt.Equal(slot) {
		t.Errorf("scheduled_at: got %v, want %v", view.ScheduledAt, slot)
	}

	fb := map[string]any{"scores": []int{4, 5, 3, 4, 5}, "comment": "clear thinking"}
	rec = env.do(testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, base+"/feedback", fb), interviewer))
	rec.AssertStatus(t, http.StatusCreated)
	var saved models.Feedback
	rec.DecodeJSON(t, &saved)
	if saved.Total != 21 {
		t.Errorf("total: got %d, want 21", saved.Total)
	}

	rec = env.do(testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, base+"/feedback", fb), interviewer))
	rec.AssertStatus(t, http.StatusConflict)
	if code := rec.ErrorCode(); code != "ALREADY_SUBMITTED" {
		t.Errorf("code: got %q, want ALREADY_SUBMITTED", code)
	}

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, base+"/feedback", interviewee))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "clear thinking")

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/api/events/"+ev.ID.Hex()+"/pairs", interviewee))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, pair.ID.Hex())
}

func TestGenerate_RosterInsufficientIsNotAFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Tiny Drive", 0)
	env.fx.CreateParticipant(ctx, ev.ID, "Solo")

	rec := env.do(testutil.NewAuthenticatedRequest(http.MethodPost,
		"/api/events/"+ev.ID.Hex()+"/pairs/generate", testutil.AdminUser()))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Created int    `json:"created"`
		Reason  string `json:"reason"`
	}
	rec.DecodeJSON(t, &body)
	if body.Created != 0 || body.Reason != "ROSTER_INSUFFICIENT" {
		t.Errorf("got %+v, want created 0 with ROSTER_INSUFFICIENT", body)
	}
}

func TestAccessControl(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Drive", 0)
	a := env.fx.CreateParticipant(ctx, ev.ID, "Ada")
	b := env.fx.CreateParticipant(ctx, ev.ID, "Grace")
	p := env.fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID})
	outsider := testutil.StudentUser(primitive.NewObjectID(), "Mallory")

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{
			name:   "signed out",
			req:    testutil.NewRequest(http.MethodGet, "/api/pairs/"+p.ID.Hex()),
			status: http.StatusUnauthorized,
			code:   "NOT_AUTHORIZED",
		},
		{
			name:   "student cannot generate",
			req:    testutil.NewAuthenticatedRequest(http.MethodPost, "/api/events/"+ev.ID.Hex()+"/pairs/generate", userFor(a)),
			status: http.StatusForbidden,
			code:   "NOT_AUTHORIZED",
		},
		{
			name:   "student cannot abandon",
			req:    testutil.NewAuthenticatedRequest(http.MethodPost, "/api/pairs/"+p.ID.Hex()+"/abandon", userFor(a)),
			status: http.StatusForbidden,
			code:   "NOT_AUTHORIZED",
		},
		{
			name: "outsider cannot propose",
			req: testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+p.ID.Hex()+"/propose",
				map[string]any{"slots": []time.Time{time.Now().Add(24 * time.Hour)}}), outsider),
			status: http.StatusForbidden,
			code:   "NOT_AUTHORIZED",
		},
		{
			name:   "outsider cannot reject",
			req:    testutil.NewAuthenticatedRequest(http.MethodPost, "/api/pairs/"+p.ID.Hex()+"/reject", outsider),
			status: http.StatusForbidden,
			code:   "NOT_AUTHORIZED",
		},
		{
			name:   "malformed pair id",
			req:    testutil.NewAuthenticatedRequest(http.MethodGet, "/api/pairs/not-an-id", userFor(a)),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "unknown pair",
			req:    testutil.NewAuthenticatedRequest(http.MethodGet, "/api/pairs/"+primitive.NewObjectID().Hex(), userFor(a)),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(tc.req)
			rec.AssertStatus(t, tc.status)
			if code := rec.ErrorCode(); code != tc.code {
				t.Errorf("code: got %q, want %q", code, tc.code)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Drive", 0)
	a := env.fx.CreateParticipant(ctx, ev.ID, "Ada")
	b := env.fx.CreateParticipant(ctx, ev.ID, "Grace")
	pending := env.fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID})

	c := env.fx.CreateParticipant(ctx, ev.ID, "Linus")
	d := env.fx.CreateParticipant(ctx, ev.ID, "Ken")
	scheduled := env.fx.CreateScheduledPair(ctx, ev.ID, c.UserID, d.UserID, time.Now().Add(-time.Hour))

	t.Run("unknown field", func(t *testing.T) {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+pending.ID.Hex()+"/propose",
			map[string]any{"slotz": []string{"tomorrow"}}), userFor(a))
		rec := env.do(req)
		rec.AssertStatus(t, http.StatusUnprocessableEntity)
		if code := rec.ErrorCode(); code != "INVALID_INPUT" {
			t.Errorf("code: got %q, want INVALID_INPUT", code)
		}
	})

	t.Run("slot outside window", func(t *testing.T) {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+pending.ID.Hex()+"/propose",
			map[string]any{"slots": []time.Time{ev.EndsAt.Add(24 * time.Hour)}}), userFor(a))
		rec := env.do(req)
		rec.AssertStatus(t, http.StatusUnprocessableEntity)
		if code := rec.ErrorCode(); code != "INVALID_SLOT" {
			t.Errorf("code: got %q, want INVALID_SLOT", code)
		}
	})

	t.Run("missing vote slot", func(t *testing.T) {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+pending.ID.Hex()+"/vote",
			map[string]any{}), userFor(b))
		rec := env.do(req)
		rec.AssertStatus(t, http.StatusUnprocessableEntity)
		if code := rec.ErrorCode(); code != "INVALID_SLOT" {
			t.Errorf("code: got %q, want INVALID_SLOT", code)
		}
	})

	t.Run("score out of range", func(t *testing.T) {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+scheduled.ID.Hex()+"/feedback",
			map[string]any{"scores": []int{5, 5, 6, 5, 5}}), userFor(c))
		rec := env.do(req)
		rec.AssertStatus(t, http.StatusUnprocessableEntity)
		if code := rec.ErrorCode(); code != "OUT_OF_RANGE" {
			t.Errorf("code: got %q, want OUT_OF_RANGE", code)
		}
	})

	t.Run("feedback before scheduling", func(t *testing.T) {
		req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+pending.ID.Hex()+"/feedback",
			map[string]any{"scores": []int{3, 3, 3, 3, 3}}), userFor(a))
		rec := env.do(req)
		rec.AssertStatus(t, http.StatusConflict)
		if code := rec.ErrorCode(); code != "PAIR_NOT_READY" {
			t.Errorf("code: got %q, want PAIR_NOT_READY", code)
		}
	})
}

func TestAbandon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Drive", 0)
	a := env.fx.CreateParticipant(ctx, ev.ID, "Ada")
	b := env.fx.CreateParticipant(ctx, ev.ID, "Grace")
	p := env.fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID})

	req := testutil.WithUser(testutil.NewJSONRequest(http.MethodPost, "/api/pairs/"+p.ID.Hex()+"/abandon",
		map[string]any{"reason": "no-show"}), testutil.CoordinatorUser())
	rec := env.do(req)
	rec.AssertStatus(t, http.StatusOK)

	var view lifecycle.PairView
	rec.DecodeJSON(t, &view)
	if view.Status != models.PairAbandoned || view.AbandonReason != "no-show" {
		t.Errorf("got status %q reason %q", view.Status, view.AbandonReason)
	}

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodPost, "/api/pairs/"+p.ID.Hex()+"/abandon", testutil.CoordinatorUser()))
	rec.AssertStatus(t, http.StatusConflict)
	if code := rec.ErrorCode(); code != "INVALID_STATE" {
		t.Errorf("code: got %q, want INVALID_STATE", code)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Drive", 0)
	a := env.fx.CreateParticipant(ctx, ev.ID, "Ada")
	b := env.fx.CreateParticipant(ctx, ev.ID, "Grace")
	p := env.fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID})
	target := "/api/pairs/" + p.ID.Hex() + "/history"

	rec := env.do(testutil.NewAuthenticatedRequest(http.MethodPost, "/api/pairs/"+p.ID.Hex()+"/abandon", testutil.AdminUser()))
	rec.AssertStatus(t, http.StatusOK)

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, target, testutil.CoordinatorUser()))
	rec.AssertStatus(t, http.StatusOK)
	var body struct {
		History []struct {
			Type    string            `json:"type"`
			Details map[string]string `json:"details"`
		} `json:"history"`
		Total int64 `json:"total"`
	}
	rec.DecodeJSON(t, &body)
	if body.Total != 1 || len(body.History) != 1 {
		t.Fatalf("history: got %d entries, total %d", len(body.History), body.Total)
	}
	if body.History[0].Type != audit.EventPairAbandoned {
		t.Errorf("type: got %q, want %q", body.History[0].Type, audit.EventPairAbandoned)
	}

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, target, userFor(a)))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/api/pairs/"+primitive.NewObjectID().Hex()+"/history", testutil.CoordinatorUser()))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestHandlers_BoundedByConfiguredTimeouts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := env.fx.CreateEvent(ctx, "Drive", 0)
	a := env.fx.CreateParticipant(ctx, ev.ID, "Ada")
	b := env.fx.CreateParticipant(ctx, ev.ID, "Grace")
	p := env.fx.CreatePair(ctx, models.Pair{EventID: ev.ID, InterviewerID: a.UserID, IntervieweeID: b.UserID})

	rec := env.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/api/pairs/"+p.ID.Hex(), userFor(a)))
	rec.AssertStatus(t, http.StatusOK)

	timeouts.Configure(timeouts.Config{Short: time.Nanosecond, Medium: time.Nanosecond})
	t.Cleanup(timeouts.Reset)

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/api/pairs/"+p.ID.Hex(), userFor(a)))
	rec.AssertStatus(t, http.StatusInternalServerError)

	rec = env.do(testutil.NewAuthenticatedRequest(http.MethodGet, "/api/events/"+ev.ID.Hex()+"/pairs", userFor(a)))
	rec.AssertStatus(t, http.StatusInternalServerError)
}
