package domain

// Permissions is the per-request view of the caller's identity.
type Permissions struct {
	IsAuthenticated bool
	IsAdmin         bool
	Subject         string
	// Roles holds "<orcs>:<subAreaId>" grants.
	Roles map[string]struct{}
}

// RoleFor returns the role string that grants access to a sub-area.
func RoleFor(orcs, subAreaID string) string {
	return orcs + ":" + subAreaID
}

// CanAccess reports whether the caller may act on records of the sub-area.
// Only an exact orcs:subAreaId grant counts; activity or date scoped grants are
// not recognised.
func (p Permissions) CanAccess(orcs, subAreaID string) bool {
	if !p.IsAuthenticated {
		return false
	}
	if p.IsAdmin {
		return true
	}
	if orcs == "" || subAreaID == "" {
		return false
	}
	_, ok := p.Roles[RoleFor(orcs, subAreaID)]
	return ok
}
