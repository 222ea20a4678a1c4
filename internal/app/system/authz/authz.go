// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/interviewhub/internal/app/system/auth"
	"github.com/dalemusser/interviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Caller identifies who invokes a lifecycle operation. SessionID is the
// open session the identity service issued at sign-in; it may be nil for
// system callers such as background jobs.
type Caller struct {
	UserID    primitive.ObjectID
	SessionID primitive.ObjectID
	Role      string
	Name      string
}

// IsOperator reports whether the caller may run event-wide operations
// (generation, abandonment, join controls).
func (c Caller) IsOperator() bool {
	return c.Role == models.UserRoleAdmin || c.Role == models.UserRoleCoordinator
}

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false, so ok=true always means a valid ObjectID.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session: fail closed.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// CallerFrom builds a Caller from the request's session user. A missing or
// malformed session ID leaves SessionID nil; the engine's session check then
// refuses the call when active sessions are required.
func CallerFrom(r *http.Request) (Caller, bool) {
	role, name, uid, ok := UserCtx(r)
	if !ok {
		return Caller{}, false
	}
	c := Caller{UserID: uid, Role: role, Name: name}
	if u, _ := auth.CurrentUser(r); u != nil {
		if sid, err := primitive.ObjectIDFromHex(u.SessionID); err == nil {
			c.SessionID = sid
		}
	}
	return c, true
}
