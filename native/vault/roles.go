package vault

import (
	"fmt"
	"strings"
)

// Role identifies the privilege tier granted to an account. RoleNone is the
// explicit absent state left behind by a revocation; it carries no authority.
type Role uint8

const (
	RoleNone Role = iota
	RoleOperator
	RoleModerator
	RoleAdmin
	RoleSuperAdmin
)

// Valid reports whether the role is a grantable tier.
func (r Role) Valid() bool {
	return r >= RoleOperator && r <= RoleSuperAdmin
}

func (r Role) String() string {
	switch r {
	case RoleOperator:
		return "operator"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "superadmin"
	default:
		return "none"
	}
}

// ParseRole resolves the textual role name used on the RPC surface.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "operator":
		return RoleOperator, nil
	case "moderator":
		return RoleModerator, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin":
		return RoleSuperAdmin, nil
	default:
		return RoleNone, fmt.Errorf("vault: unknown role %q", raw)
	}
}

// Capability predicates. Privileged operations check a named predicate rather
// than comparing numeric ranks.

func (r Role) CanPauseVault() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

func (r Role) CanUpdateConfig() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin:
		return true
	}
	return false
}

func (r Role) CanManageRoles() bool {
	return r == RoleSuperAdmin
}

func (r Role) CanModerateUsers() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

func (r Role) CanManageTreasury() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin:
		return true
	}
	return false
}

func (r Role) CanManageUpgrades() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin:
		return true
	}
	return false
}
