// internal/domain/models/user.go
package models

// User roles carried in the session cookie. Accounts themselves are owned
// by the identity service.
const (
	UserRoleAdmin       = "admin"
	UserRoleCoordinator = "coordinator"
	UserRoleStudent     = "student"
)
