package enums

import "fmt"

// ActorRole identifies who is calling the API.
type ActorRole string

const (
	ActorRoleBuyer   ActorRole = "buyer"
	ActorRoleStore   ActorRole = "store"
	ActorRoleCourier ActorRole = "courier"
	ActorRoleAdmin   ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleBuyer,
	ActorRoleStore,
	ActorRoleCourier,
	ActorRoleAdmin,
}

func (a ActorRole) String() string {
	return string(a)
}

func (a ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
