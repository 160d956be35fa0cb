package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleViewer     = "viewer"   // read calls, stats and webhook history
	RoleOperator   = "operator" // viewer + place calls
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsKnownRole reports whether role is one the API recognises.
func IsKnownRole(role string) bool {
	switch role {
	case RoleViewer, RoleOperator, RoleSuperAdmin:
		return true
	}
	return false
}
