package fund

// Role is a named capability granted to a caller by upstream auth.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleApprover   Role = "auction_approver"
	RoleLauncher   Role = "auction_launcher"
	RoleRebalancer Role = "rebalancer"
)

// RoleSet is the set-valued capability carried on a command.
type RoleSet map[Role]struct{}

// ParseRoles builds a RoleSet from the wire representation. Unknown role
// names are kept; authorization only ever tests membership.
func ParseRoles(names []string) RoleSet {
	rs := make(RoleSet, len(names))
	for _, n := range names {
		rs[Role(n)] = struct{}{}
	}
	return rs
}

// Has reports whether the set contains r.
func (rs RoleSet) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

// HasAny reports whether the set contains at least one of the given roles.
func (rs RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}
