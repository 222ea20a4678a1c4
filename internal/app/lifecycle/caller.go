package lifecycle

import (
	"context"
	"fmt"

	"github.com/dalemusser/interviewhub/internal/app/store/sessions"
	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"github.com/dalemusser/interviewhub/internal/app/system/authz"
)

// CallerValidator confirms that a caller may act right now.
type CallerValidator interface {
	ValidateCaller(ctx context.Context, c authz.Caller) error
}

// AnyCaller accepts every caller with a user ID.
type AnyCaller struct{}

func (AnyCaller) ValidateCaller(context.Context, authz.Caller) error { return nil }

// SessionValidator requires the caller to hold an open session in the
// sessions collection shared with the identity service, and records the
// call as activity on it.
type SessionValidator struct {
	store *sessions.Store
}

// NewSessionValidator returns a validator backed by store.
func NewSessionValidator(store *sessions.Store) *SessionValidator {
	return &SessionValidator{store: store}
}

func (v *SessionValidator) ValidateCaller(ctx context.Context, c authz.Caller) error {
	if c.SessionID.IsZero() {
		return apperr.NotAuthorized("no active session")
	}
	open, err := v.store.IsOpen(ctx, c.SessionID, c.UserID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !open {
		return apperr.NotAuthorized("session is no longer active")
	}
	// Activity keeps the inactive-session sweep from closing it.
	if open, err = v.store.Touch(ctx, c.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if !open {
		return apperr.NotAuthorized("session is no longer active")
	}
	return nil
}
