package model

import (
	"errors"
	"time"
)

// User represents an authentication user.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin      = "admin"
	RoleHead       = "head"
	RoleManager    = "manager"
	RoleSupervisor = "supervisor"
	RoleWarehouse  = "warehouse"
	RoleStaff      = "staff"
)

// Capability is a permission checked by the API layer before calling the engine.
type Capability string

// Capabilities.
const (
	CapRequest        Capability = "request"
	CapApproveL1      Capability = "approve_l1"
	CapApproveL2      Capability = "approve_l2"
	CapApproveL3      Capability = "approve_l3"
	CapDistribute     Capability = "distribute"
	CapPurchase       Capability = "purchase"
	CapOpnameCount    Capability = "opname_count"
	CapOpnameApprove  Capability = "opname_approve"
	CapManageItems    Capability = "manage_items"
	CapManageUsers    Capability = "manage_users"
	CapReconcileStock Capability = "reconcile_stock"
)

// roleCapabilities lists what each role may do. Admin is handled separately.
var roleCapabilities = map[string][]Capability{
	RoleHead:       {CapRequest, CapApproveL3, CapOpnameApprove},
	RoleManager:    {CapRequest, CapApproveL2},
	RoleSupervisor: {CapRequest, CapApproveL1},
	RoleWarehouse:  {CapRequest, CapDistribute, CapPurchase, CapOpnameCount, CapManageItems},
	RoleStaff:      {CapRequest},
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	if role == RoleAdmin {
		return true
	}
	_, ok := roleCapabilities[role]
	return ok
}

// RoleCan checks whether role grants capability. Unknown roles fail closed.
func RoleCan(role string, capability Capability) bool {
	if role == RoleAdmin {
		return capability != ""
	}
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
