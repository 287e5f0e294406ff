package authz

import (
	"context"
	"sort"
	"time"

	"github.com/opentrusty/ssoproxy/internal/directory"
)

// Reason explains a decision
type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonRevoked         Reason = "revoked"
	ReasonNoMatchingGroup Reason = "no matching group"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  Reason
	Group   string // group that granted access
}

// RoleSet is the set of external role IDs a subject currently holds
type RoleSet map[int64]struct{}

// NewRoleSet builds a role set
func NewRoleSet(ids ...int64) RoleSet {
	set := make(RoleSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether the set contains id
func (s RoleSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the sorted role IDs
func (s RoleSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RoleLookup supplies a subject's current external roles. Implemented by the
// role directory snapshot; the engine never caches its answers.
type RoleLookup interface {
	Roles(ctx context.Context, tenantID, subjectID int64) (RoleSet, error)
}

// MembershipSource exposes group membership
type MembershipSource interface {
	GroupsForAccount(ctx context.Context, accountID int64) ([]*directory.Group, error)
	ListGroups(ctx context.Context, tenantID int64, roleID *int64) ([]*directory.Group, error)
}

// RevocationChecker reports whether a subject is currently revoked
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tenantID, subjectID int64, now time.Time) (bool, error)
}
