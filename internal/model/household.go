package model

import "time"

// Role is a member's privilege level within a household.
type Role string

const (
	RoleDictator Role = "dictator"
	RoleApprover Role = "approver"
	RoleDoer     Role = "doer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleDictator, RoleApprover, RoleDoer:
		return true
	}
	return false
}

// CanApprove reports whether the role may approve or reject point logs.
func (r Role) CanApprove() bool {
	return r == RoleDictator || r == RoleApprover
}

type Household struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type HouseholdMember struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	UserID      int64     `json:"user_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
