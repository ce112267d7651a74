// Package auth provides session tokens, caller identity and role checks.
package auth

// Role is the closed set of system roles. The numeric values are part of
// the stored data model and the session token, not an implementation detail.
type Role int

const (
	// RoleGeneralCoordinator has cross-area read-only access to reporting.
	RoleGeneralCoordinator Role = 1
	// RoleAreaCoordinator reviews, returns and advances cases within one area.
	RoleAreaCoordinator Role = 2
	// RoleOperative creates and edits draft cases within one area.
	RoleOperative Role = 3
	// RoleAdministrator manages user accounts and nothing else; it is not a
	// case actor and is excluded from user listings.
	RoleAdministrator Role = 4
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r >= RoleGeneralCoordinator && r <= RoleAdministrator
}

// AreaScoped reports whether the role operates within a single service area.
func (r Role) AreaScoped() bool {
	return r == RoleAreaCoordinator || r == RoleOperative
}

func (r Role) String() string {
	switch r {
	case RoleGeneralCoordinator:
		return "coordinacion_general"
	case RoleAreaCoordinator:
		return "coordinacion_area"
	case RoleOperative:
		return "operativo"
	case RoleAdministrator:
		return "administrador"
	default:
		return "desconocido"
	}
}
