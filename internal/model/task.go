package model

import "time"

// PointLogKind identifies what produced a point log.
type PointLogKind string

const (
	KindPreset PointLogKind = "PRESET"
	KindTimed  PointLogKind = "TIMED"
	KindManual PointLogKind = "MANUAL"
)

// PointLogStatus is the approval state of a point log.
type PointLogStatus string

const (
	StatusPending  PointLogStatus = "PENDING"
	StatusApproved PointLogStatus = "APPROVED"
	StatusRejected PointLogStatus = "REJECTED"
)

// AssignedTask is a chore assigned to one household member with a
// completion cadence.
type AssignedTask struct {
	ID                     int64     `json:"id"`
	HouseholdID            int64     `json:"household_id"`
	AssigneeID             int64     `json:"assignee_id"`
	Title                  string    `json:"title"`
	Points                 int       `json:"points"`
	CadenceTarget          int       `json:"cadence_target"`
	CadenceIntervalMinutes int       `json:"cadence_interval_minutes"`
	IsRecurring            bool      `json:"is_recurring"`
	RequiresApproval       bool      `json:"requires_approval"`
	CreatedBy              *int64    `json:"created_by"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// PointLog records points earned (or adjusted) by a member.
type PointLog struct {
	ID          int64          `json:"id"`
	HouseholdID int64          `json:"household_id"`
	UserID      int64          `json:"user_id"`
	TaskID      *int64         `json:"task_id"`
	Kind        PointLogKind   `json:"kind"`
	Points      int            `json:"points"`
	Status      PointLogStatus `json:"status"`
	Note        string         `json:"note"`
	ReviewedBy  *int64         `json:"reviewed_by"`
	RevertedAt  *time.Time     `json:"reverted_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
