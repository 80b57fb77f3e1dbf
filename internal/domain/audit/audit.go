package audit

import (
	"time"

	"github.com/google/uuid"
)

// Outcome records what happened to a transition attempt.
type Outcome string

const (
	// OutcomeApplied means the server acknowledged the transition.
	OutcomeApplied Outcome = "applied"
	// OutcomeRejected means the transition was refused locally and never sent.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the server call failed; local state was left unchanged.
	OutcomeFailed Outcome = "failed"
)

// Event is one entry of the local attendance journal.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ProgramID  string    `json:"program_id"`
	MemberID   string    `json:"member_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail"`
}

// NewEvent creates a journal event with a fresh ID and the current timestamp.
// PRE: programID, memberID and action are non-empty
// POST: Returns an Event with outcome applied; use the With* helpers to refine it
func NewEvent(programID, memberID, action string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		ProgramID: programID,
		MemberID:  memberID,
		Action:    action,
		Outcome:   OutcomeApplied,
	}
}

// WithTransition sets the status before and after the attempt.
// POST: Event status fields are populated
func (e Event) WithTransition(from, to string) Event {
	e.FromStatus = from
	e.ToStatus = to
	return e
}

// WithOutcome sets the outcome and a human-readable detail, usually an error message.
func (e Event) WithOutcome(o Outcome, detail string) Event {
	e.Outcome = o
	e.Detail = detail
	return e
}
