// Package access decides whether a caller may run privileged operations.
package access

import "custody_go/internal/domain"

// Guard holds the owner principal fixed at construction.
type Guard struct {
	owner domain.Principal
}

// NewGuard creates a guard for owner. The owner cannot be changed later.
func NewGuard(owner domain.Principal) *Guard {
	return &Guard{owner: owner}
}

// Owner returns the configured owner.
func (g *Guard) Owner() domain.Principal {
	return g.owner
}

// RequireOwner fails with ErrNotAuthorized unless caller is the owner.
func (g *Guard) RequireOwner(caller domain.Principal) error {
	if g.owner.IsZero() || caller != g.owner {
		return domain.Errorf(domain.ErrNotAuthorized, "caller %q is not the owner", caller)
	}
	return nil
}
