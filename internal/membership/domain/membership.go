package domain

import (
	"sort"
	"time"
)

// Membership links a user to a tenant with a role.
type Membership struct {
	ID        string
	UserID    string
	TenantID  string
	Role      Role
	CreatedAt time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// SortMostRecent orders memberships by CreatedAt descending; ties are broken by ID
// descending so the order is total.
func SortMostRecent(list []*Membership) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

// Contains reports whether tenantID is among the memberships.
func Contains(list []*Membership, tenantID string) bool {
	for _, m := range list {
		if m.TenantID == tenantID {
			return true
		}
	}
	return false
}
