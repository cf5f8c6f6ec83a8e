package enums

import "fmt"

// ActorRole is the role the auth gateway attaches to a request.
type ActorRole string

const (
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleLabManager ActorRole = "lab_manager"
	ActorRoleStudent    ActorRole = "student"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleLabManager,
	ActorRoleStudent,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanManageStock reports whether the role may run stock and approval operations.
func (r ActorRole) CanManageStock() bool {
	return r == ActorRoleAdmin || r == ActorRoleLabManager
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
