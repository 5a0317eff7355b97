package enums

import "fmt"

// ActorRole scopes what an authenticated principal may call.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleWorker  ActorRole = "worker"
	ActorRoleSystem  ActorRole = "system"
	ActorRoleCourier ActorRole = "courier"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleWorker,
	ActorRoleSystem,
	ActorRoleCourier,
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

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
