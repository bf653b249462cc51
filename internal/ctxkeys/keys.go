// Package ctxkeys defines typed context keys shared between middleware and handlers.
// This avoids import cycles: both middleware and handlers import this package,
// but neither imports the other for context key types.
package ctxkeys

import "context"

// Key is a typed string used as context key to prevent collisions.
type Key string

const (
	UserID   Key = "userID"
	UserRole Key = "userRole"
)

// Roles.
const (
	RoleConsulta = "consulta"
	RoleAdm      = "adm"
)

// RoleLevel maps role names to permission levels. Unknown roles are 0.
var RoleLevel = map[string]int{
	RoleConsulta: 1,
	RoleAdm:      2,
}

// UserIDFrom returns the authenticated user's ID, or "".
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(UserID).(string)
	return id
}

// RoleFrom returns the authenticated user's role, or "".
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(UserRole).(string)
	return role
}
