package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/interviewhub/internal/app/system/auth"
	"go.uber.org/zap"
)

func newTestSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(
		"test-session-key-must-be-32-chars-long",
		"test-session",
		"",
		24*time.Hour,
		false,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewSessionManager_RejectsEmptyKey(t *testing.T) {
	if _, err := auth.NewSessionManager("", "s", "", time.Hour, false, zap.NewNop()); err == nil {
		t.Error("expected error for empty session key")
	}
}

func TestRequireSignedIn(t *testing.T) {
	sm := newTestSessionManager(t)
	handler := sm.RequireSignedIn(okHandler())

	tests := []struct {
		name string
		user *auth.SessionUser
		want int
	}{
		{"no user", nil, http.StatusUnauthorized},
		{"signed in", &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: "student"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/pairs/x", nil)
			if tt.user != nil {
				req = auth.WithTestUser(req, tt.user)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	sm := newTestSessionManager(t)
	handler := sm.RequireRole("admin", "coordinator")(okHandler())

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin", "admin", http.StatusOK},
		{"coordinator mixed case", "Coordinator", http.StatusOK},
		{"student", "student", http.StatusForbidden},
		{"no user", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/events/x/pairs/generate", nil)
			if tt.role != "" {
				req = auth.WithTestUser(req, &auth.SessionUser{ID: "507f1f77bcf86cd799439011", Role: tt.role})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSignIn_RoundTripThroughCookie(t *testing.T) {
	sm := newTestSessionManager(t)

	rec := httptest.NewRecorder()
	in := auth.SessionUser{
		ID:        "507f1f77bcf86cd799439011",
		Name:      "Ada",
		Role:      "student",
		SessionID: "507f191e810c19729de860ea",
	}
	if err := sm.SignIn(rec, httptest.NewRequest("POST", "/", nil), in); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/pairs/x", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	var got *auth.SessionUser
	sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.CurrentUser(r)
	})).ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected user from cookie")
	}
	if *got != in {
		t.Errorf("got %+v, want %+v", *got, in)
	}
}

func TestLoadSessionUser_TamperedCookieIsSignedOut(t *testing.T) {
	sm := newTestSessionManager(t)

	req := httptest.NewRequest("GET", "/api/pairs/x", nil)
	req.AddCookie(&http.Cookie{Name: "test-session", Value: "not-a-valid-cookie"})

	called := false
	sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := auth.CurrentUser(r); ok {
			t.Error("tampered cookie should not yield a user")
		}
	})).ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("next handler was not called")
	}
}
