package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermFireplaceRead    Permission = "fireplace:read"
	PermFireplaceOperate Permission = "fireplace:operate"
	PermFireplaceConfig  Permission = "fireplace:configure"
)

// rolePermissions is the single source of truth for the authorisation
// model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermFireplaceRead,
	},
	RoleOperator: {
		PermFireplaceRead,
		PermFireplaceOperate,
		PermFireplaceConfig,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
