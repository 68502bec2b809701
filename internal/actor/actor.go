package actor

import (
	"context"
	"strings"
)

type Role string

const (
	RoleGuest  Role = "GUEST"
	RoleHost   Role = "HOST"
	RoleAdmin  Role = "ADMIN"
	RoleSystem Role = "SYSTEM"
)

// ParseRole accepts any casing; unknown roles come back empty.
func ParseRole(raw string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleGuest:
		return RoleGuest
	case RoleHost:
		return RoleHost
	case RoleAdmin:
		return RoleAdmin
	case RoleSystem:
		return RoleSystem
	default:
		return ""
	}
}

// Actor is whoever issues a command against the core.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// System is the actor used for scheduler and auto-initiated actions.
func System() Actor {
	return Actor{ID: "system", Name: "system", Role: RoleSystem}
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

type contextKey string

const actorKey contextKey = "actor"

func NewContext(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)

	return a, ok
}
