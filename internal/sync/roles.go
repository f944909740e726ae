package sync

import (
	"fmt"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
)

// RolePolicy decides which entry of a multi-valued LMS role list wins.
type RolePolicy string

const (
	// RolePolicyHighest maps every entry and keeps the most privileged role.
	RolePolicyHighest RolePolicy = "highest"
	// RolePolicyFirst keeps the first recognized entry. The LMS does not
	// document its role ordering, so this is a heuristic.
	RolePolicyFirst RolePolicy = "first"
)

func ParseRolePolicy(s string) (RolePolicy, error) {
	switch RolePolicy(s) {
	case RolePolicyHighest, "":
		return RolePolicyHighest, nil
	case RolePolicyFirst:
		return RolePolicyFirst, nil
	default:
		return "", fmt.Errorf("unknown role policy %q", s)
	}
}

// LMS role short names to portal roles. Case-sensitive.
var roleTable = map[string]domain.Role{
	"student":        domain.RoleStudent,
	"guest":          domain.RoleStudent,
	"teacher":        domain.RoleTeacher,
	"editingteacher": domain.RoleTeacher,
	"manager":        domain.RoleAdmin,
	"coursecreator":  domain.RoleAdmin,
}

// NormalizeRoles returns the portal role for an LMS role list. An empty list
// or one without a recognized short name yields student.
func NormalizeRoles(roles []lms.RoleAssignment, policy RolePolicy) domain.Role {
	best := domain.RoleStudent
	for _, ra := range roles {
		role, ok := roleTable[ra.ShortName]
		if !ok {
			continue
		}
		if policy == RolePolicyFirst {
			return role
		}
		if role.Rank() > best.Rank() {
			best = role
		}
	}
	return best
}

// upgradeRole returns the role a user should hold after observing observed.
// Roles are only ever escalated.
func upgradeRole(current, observed domain.Role) (domain.Role, bool) {
	if current.Escalates(observed) {
		return observed, true
	}
	return current, false
}
