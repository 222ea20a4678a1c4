package auth

import "net/http"

// SignIn writes u into the session cookie the way the identity service does
// at sign-in.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userNameKey] = u.Name
	sess.Values[userRoleKey] = u.Role
	sess.Values[sessionIDKey] = u.SessionID
	return sess.Save(r, w)
}
