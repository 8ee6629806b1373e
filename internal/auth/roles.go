package auth

// Role is the caller's access level on the reconciliation surface.
type Role string

const (
	// RoleViewer can read classifications, checkpoints and monthly reports.
	RoleViewer Role = "viewer"
	// RoleOperator can additionally trigger reconcile runs, which repair
	// settlement facts and recompute aggregates.
	RoleOperator Role = "operator"
	// RoleAdmin outranks operator; reserved for future destructive
	// operations (checkpoint resets, entity registry edits).
	RoleAdmin Role = "admin"
)

// NormalizeRole maps a token claim to a known role.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleOperator, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast reports whether role satisfies the required role. Roles form
// a strict ladder: admin > operator > viewer.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
