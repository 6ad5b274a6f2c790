package domain

import "strings"

// Role is the closed set of identity roles.
type Role string

const (
	RoleGuest      Role = "GUEST"
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Roles lists every valid role.
var Roles = []Role{RoleGuest, RoleUser, RoleAdmin, RoleSuperAdmin}

// ParseRole normalises s into a Role.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, r := range Roles {
		if r == role {
			return r, true
		}
	}
	return "", false
}
