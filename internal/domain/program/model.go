package program

import (
	"time"

	"lodge/internal/domain/failure"
)

// Program type constants
const (
	TypeRegular       = "regular"
	TypeExtraordinary = "extraordinary"
	TypeCeremony      = "ceremony"
	TypeSocial        = "social"
)

// Program status constants
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ValidTypes contains all valid program types.
var ValidTypes = []string{TypeRegular, TypeExtraordinary, TypeCeremony, TypeSocial}

// ValidStatuses contains all valid program statuses.
var ValidStatuses = []string{StatusScheduled, StatusCompleted, StatusCancelled}

// Program is a scheduled lodge event (meeting, ceremony, social gathering)
// for which attendance is tracked.
type Program struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Key returns the program ID.
func (p Program) Key() string { return p.ID }

// AcceptsAttendance reports whether attendance may still be recorded.
// INVARIANT: cancelled programs never accept attendance
func (p Program) AcceptsAttendance() bool {
	return p.Status != StatusCancelled
}

// Input is the create/update payload for a program.
type Input struct {
	Title       string    `json:"title" validate:"notblank,max=120"`
	Type        string    `json:"type" validate:"required,oneof=regular extraordinary ceremony social"`
	Status      string    `json:"status" validate:"required,oneof=scheduled completed cancelled"`
	Date        time.Time `json:"date" validate:"required"`
	Location    string    `json:"location,omitempty" validate:"omitempty,max=200"`
	Description string    `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// Validate checks if the Input has valid data.
// PRE: Input struct is populated
// POST: Returns nil if valid, a validation failure otherwise
func (in Input) Validate() error {
	return failure.Check(in)
}
