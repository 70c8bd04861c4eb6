package crm

import (
	"fmt"

	"github.com/fentz26/leaddesk/internal/models"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   string      `json:"id"`
	Role models.Role `json:"role"`
}

// IsStaff reports whether the actor manages leads rather than working them.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleManager
}

func requireRole(a Actor, roles ...models.Role) error {
	if a.ID == "" || !a.Role.Valid() {
		return fmt.Errorf("%w: unknown actor", ErrForbidden)
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not perform this action", ErrForbidden, a.Role)
}
