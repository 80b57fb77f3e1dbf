package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is a member's attendance state for one program.
type Status string

// Attendance statuses
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusExcused   Status = "excused"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusPresent, StatusAbsent, StatusExcused}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPresent, StatusAbsent, StatusExcused:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed for the session.
func (s Status) IsTerminal() bool {
	return s == StatusPresent || s == StatusExcused
}

// Action is a transition request against one roster entry.
type Action string

// Transition actions
const (
	ActionConfirm    Action = "confirm"
	ActionCheckIn    Action = "check-in"
	ActionMarkAbsent Action = "mark-absent"
	ActionJustify    Action = "justify"
)

// ParseAction maps user input to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionConfirm, ActionCheckIn, ActionMarkAbsent, ActionJustify:
		return a, nil
	case "checkin":
		return ActionCheckIn, nil
	case "absent":
		return ActionMarkAbsent, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Domain errors
var (
	ErrInvalidTransition     = errors.New("invalid attendance transition")
	ErrJustificationRequired = errors.New("justification text is required")
	ErrUnknownAction         = errors.New("unknown attendance action")
	ErrMissingMember         = errors.New("attendance record must reference a member")
	ErrInvalidStatus         = errors.New("invalid attendance status")
	ErrArrivalMismatch       = errors.New("arrival time must be set exactly when present")
	ErrUnexpectedJustify     = errors.New("justification is only allowed when excused")
)

// Record is one roster entry. MemberName, Grade and Role are owned by the
// server and only displayed.
type Record struct {
	MemberID         string     `json:"memberId"`
	MemberName       string     `json:"memberName"`
	Grade            string     `json:"grade"`
	Role             string     `json:"role,omitempty"`
	Status           Status     `json:"status"`
	ArrivalTime      *time.Time `json:"arrivalTime,omitempty"`
	ConfirmationTime *time.Time `json:"confirmationTime,omitempty"`
	Justification    string     `json:"justification,omitempty"`
}

// Key returns the member ID.
func (r Record) Key() string { return r.MemberID }

// Validate checks the record's field invariants.
// PRE: Record is populated
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: ArrivalTime is set iff Status is present; Justification only when excused
func (r Record) Validate() error {
	if strings.TrimSpace(r.MemberID) == "" {
		return ErrMissingMember
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	if (r.ArrivalTime != nil) != (r.Status == StatusPresent) {
		return ErrArrivalMismatch
	}
	if r.Justification != "" && r.Status != StatusExcused {
		return ErrUnexpectedJustify
	}
	return nil
}

// Apply computes the record that results from action. The receiver is not
// modified. text is only used by justify.
// PRE: r is valid; at is the time of the transition
// POST: Returns the next record, or ErrInvalidTransition / ErrJustificationRequired
//
//	pending   --confirm-->     confirmed
//	pending   --check-in-->    present
//	confirmed --check-in-->    present
//	absent    --check-in-->    present
//	pending   --mark-absent--> absent
//	confirmed --mark-absent--> absent
//	absent    --justify-->     excused
func (r Record) Apply(action Action, at time.Time, text string) (Record, error) {
	next := r
	switch action {
	case ActionConfirm:
		if r.Status != StatusPending {
			return r, r.invalid(action)
		}
		next.Status = StatusConfirmed
		next.ConfirmationTime = timePtr(at)
	case ActionCheckIn:
		if r.Status.IsTerminal() {
			return r, r.invalid(action)
		}
		next.Status = StatusPresent
		next.ArrivalTime = timePtr(at)
	case ActionMarkAbsent:
		if r.Status != StatusPending && r.Status != StatusConfirmed {
			return r, r.invalid(action)
		}
		next.Status = StatusAbsent
		next.ArrivalTime = nil
	case ActionJustify:
		if r.Status != StatusAbsent {
			return r, r.invalid(action)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return r, ErrJustificationRequired
		}
		next.Status = StatusExcused
		next.Justification = text
	default:
		return r, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if next.Status != StatusExcused {
		next.Justification = ""
	}
	return next, nil
}

// Command returns the body that records r's status on the server.
func (r Record) Command() Command {
	return Command{
		MemberID:      r.MemberID,
		Status:        r.Status,
		ArrivalTime:   r.ArrivalTime,
		Justification: r.Justification,
	}
}

func (r Record) invalid(action Action) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, r.Status)
}

// Command is the body of POST /programs/{id}/attendance.
type Command struct {
	MemberID      string     `json:"memberId"`
	Status        Status     `json:"status"`
	ArrivalTime   *time.Time `json:"arrivalTime,omitempty"`
	Justification string     `json:"justification,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	return &t
}
