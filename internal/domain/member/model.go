package member

import (
	"time"

	"lodge/internal/domain/failure"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength = 100
	MaxRoleLength = 60
)

// Grades a member can hold.
const (
	GradeApprentice  = "apprentice"
	GradeFellowcraft = "fellowcraft"
	GradeMaster      = "master"
)

// Membership statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Grades lists valid grades in ascending order.
var Grades = []string{GradeApprentice, GradeFellowcraft, GradeMaster}

// Statuses lists valid membership statuses.
var Statuses = []string{StatusActive, StatusInactive, StatusSuspended}

// Member is one lodge member as returned by the server.
type Member struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Grade       string     `json:"grade"`
	Status      string     `json:"status"`
	Role        string     `json:"role,omitempty"`
	InitiatedAt *time.Time `json:"initiationDate,omitempty"`
}

// Key returns the member ID.
func (m Member) Key() string { return m.ID }

// IsActive returns true if the member is currently active.
// INVARIANT: Status field is not mutated
func (m Member) IsActive() bool {
	return m.Status == StatusActive
}

// Input is the create/update payload for a member.
type Input struct {
	Name        string     `json:"name" validate:"notblank,max=100"`
	Email       string     `json:"email" validate:"required,email"`
	Phone       string     `json:"phone,omitempty" validate:"omitempty,max=30"`
	Grade       string     `json:"grade" validate:"required,oneof=apprentice fellowcraft master"`
	Status      string     `json:"status" validate:"required,oneof=active inactive suspended"`
	Role        string     `json:"role,omitempty" validate:"omitempty,max=60"`
	InitiatedAt *time.Time `json:"initiationDate,omitempty"`
}

// Validate checks the payload before it is sent.
// PRE: Input is populated
// POST: Returns a validation failure with per-field messages, or nil
func (in Input) Validate() error {
	return failure.Check(in)
}
