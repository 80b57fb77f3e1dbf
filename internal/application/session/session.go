// Package session manages the attendance roster of one program for the
// lifetime of a management session.
package session

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"lodge/internal/application/collection"
	"lodge/internal/application/projections"
	"lodge/internal/domain/attendance"
	domainAudit "lodge/internal/domain/audit"
	"lodge/internal/domain/failure"
)

// Remote is the attendance sub-resource of the API.
type Remote interface {
	ListAttendance(ctx context.Context, programID string) ([]attendance.Record, error)
	RecordAttendance(ctx context.Context, programID string, cmd attendance.Command) (attendance.Record, error)
}

// Journal records every transition attempt.
type Journal interface {
	Save(ctx context.Context, event domainAudit.Event) error
}

// Deps holds dependencies for a Session.
type Deps struct {
	Remote  Remote
	Journal Journal          // optional
	Now     func() time.Time // optional, defaults to time.Now
}

// Session errors
var (
	ErrNotOnRoster        = errors.New("member is not on the roster")
	ErrTransitionInFlight = errors.New("a transition for this member is already in flight")
	ErrBulkAction         = errors.New("action cannot be applied in bulk")
)

// strict strips all markup from free text before it is validated or sent.
var strict = bluemonday.StrictPolicy()

// Session owns one program's roster. Transitions are validated locally,
// sent to the server, and applied only once acknowledged.
// INVARIANT: the roster slice is replaced, never mutated in place
// INVARIANT: at most one transition per member is in flight
type Session struct {
	programID string
	remote    Remote
	journal   Journal
	now       func() time.Time

	mu         sync.Mutex
	roster     []attendance.Record
	version    uint64
	status     collection.Status
	err        error
	memberErrs map[string]error
	inFlight   map[string]bool
	seq        uint64
	cancelLoad context.CancelFunc
	closed     bool

	stats projections.Memo[uint64, projections.AttendanceStats]
}

// New creates an empty session for programID.
// PRE: programID is non-empty; deps.Remote is non-nil
// POST: Session is idle with an empty roster; call Load to fetch it
func New(programID string, deps Deps) *Session {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		programID:  programID,
		remote:     deps.Remote,
		journal:    deps.Journal,
		now:        now,
		roster:     []attendance.Record{},
		status:     collection.StatusIdle,
		memberErrs: make(map[string]error),
		inFlight:   make(map[string]bool),
	}
}

// ProgramID returns the program this session manages.
func (s *Session) ProgramID() string { return s.programID }

// Roster returns the roster in server order. Callers must not modify the slice.
func (s *Session) Roster() []attendance.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster
}

// Version changes iff the roster slice was replaced.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Record returns one member's entry.
func (s *Session) Record(memberID string) (attendance.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(memberID); i >= 0 {
		return s.roster[i], true
	}
	return attendance.Record{}, false
}

// Status returns the roster load status.
func (s *Session) Status() collection.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the last roster load failure, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MemberErr returns the last failed transition for a member, or nil.
// It is cleared by the member's next successful transition.
func (s *Session) MemberErr(memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberErrs[memberID]
}

// Stats returns attendance statistics, recomputed only when the roster changed.
// POST: Two calls without an intervening roster change return the same pointer
func (s *Session) Stats() *projections.AttendanceStats {
	s.mu.Lock()
	roster, version := s.roster, s.version
	s.mu.Unlock()
	return s.stats.Get(version, func() projections.AttendanceStats {
		return projections.QueryAttendanceStats(roster)
	})
}

// Load fetches the roster from the server. A newer Load supersedes an older
// one still in flight.
// PRE: session is not closed
// POST: On success the roster is replaced and member errors are cleared.
// On failure Status is error, Err is set and the roster is unchanged.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return collection.ErrClosed
	}
	s.seq++
	seq := s.seq
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.status = collection.StatusLoading
	s.mu.Unlock()

	roster, err := s.remote.ListAttendance(loadCtx, s.programID)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer cancel()
	if s.closed {
		return collection.ErrClosed
	}
	if seq != s.seq {
		return collection.ErrSuperseded
	}
	s.cancelLoad = nil

	if err != nil {
		slog.Warn("attendance_event", "event", "roster_load_failed", "program_id", s.programID, "kind", failure.KindOf(err).String(), "error", err)
		s.status = collection.StatusError
		s.err = err
		return fmt.Errorf("load roster %s: %w", s.programID, err)
	}

	held := make([]attendance.Record, len(roster))
	copy(held, roster)
	for _, r := range held {
		if verr := r.Validate(); verr != nil {
			slog.Warn("attendance_event", "event", "roster_record_inconsistent", "program_id", s.programID, "member_id", r.MemberID, "error", verr)
		}
	}
	s.roster = held
	s.version++
	s.status = collection.StatusIdle
	s.err = nil
	s.memberErrs = make(map[string]error)
	slog.Debug("attendance_event", "event", "roster_loaded", "program_id", s.programID, "count", len(held))
	return nil
}

// Confirm records that a pending member has confirmed attendance.
func (s *Session) Confirm(ctx context.Context, memberID string) (attendance.Record, error) {
	return s.Apply(ctx, memberID, attendance.ActionConfirm, time.Time{}, "")
}

// CheckIn marks a member present. A zero at means now.
// POST: On success Status is present and ArrivalTime is set
func (s *Session) CheckIn(ctx context.Context, memberID string, at time.Time) (attendance.Record, error) {
	return s.Apply(ctx, memberID, attendance.ActionCheckIn, at, "")
}

// MarkAbsent marks a pending or confirmed member absent.
func (s *Session) MarkAbsent(ctx context.Context, memberID string) (attendance.Record, error) {
	return s.Apply(ctx, memberID, attendance.ActionMarkAbsent, time.Time{}, "")
}

// Justify excuses an absent member. Markup is stripped from text first.
// POST: Blank text is rejected with attendance.ErrJustificationRequired
func (s *Session) Justify(ctx context.Context, memberID, text string) (attendance.Record, error) {
	return s.Apply(ctx, memberID, attendance.ActionJustify, time.Time{}, text)
}

// Apply runs one transition for one member: it is validated locally, sent to
// the server, and the roster entry is replaced by the server's record only
// after acknowledgement. Failures leave the entry unchanged and are kept as
// the member's error.
// PRE: session is not closed; memberID is on the roster
// POST: Returns the acknowledged record, or the error that prevented it
func (s *Session) Apply(ctx context.Context, memberID string, action attendance.Action, at time.Time, text string) (attendance.Record, error) {
	if at.IsZero() {
		at = s.now()
	}
	if action == attendance.ActionJustify {
		text = plainText(text)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return attendance.Record{}, collection.ErrClosed
	}
	idx := s.indexLocked(memberID)
	if idx < 0 {
		s.mu.Unlock()
		return attendance.Record{}, fmt.Errorf("%w: %s", ErrNotOnRoster, memberID)
	}
	if s.inFlight[memberID] {
		s.mu.Unlock()
		return attendance.Record{}, fmt.Errorf("%w: %s", ErrTransitionInFlight, memberID)
	}
	current := s.roster[idx]
	next, err := current.Apply(action, at, text)
	if err != nil {
		s.memberErrs[memberID] = err
		s.mu.Unlock()
		slog.Info("attendance_event", "event", "transition_rejected", "program_id", s.programID, "member_id", memberID, "action", string(action), "status", string(current.Status), "error", err)
		s.record(ctx, current, next, action, domainAudit.OutcomeRejected, err)
		return current, err
	}
	s.inFlight[memberID] = true
	s.mu.Unlock()

	acked, err := s.remote.RecordAttendance(ctx, s.programID, next.Command())

	s.mu.Lock()
	delete(s.inFlight, memberID)
	if s.closed {
		s.mu.Unlock()
		return attendance.Record{}, collection.ErrClosed
	}
	if err != nil {
		s.memberErrs[memberID] = err
		if errors.Is(err, failure.ErrNotFound) {
			s.removeLocked(memberID)
		}
		s.mu.Unlock()
		slog.Warn("attendance_event", "event", "transition_failed", "program_id", s.programID, "member_id", memberID, "action", string(action), "kind", failure.KindOf(err).String(), "error", err)
		s.record(ctx, current, next, action, domainAudit.OutcomeFailed, err)
		return current, fmt.Errorf("%s %s: %w", action, memberID, err)
	}

	if acked.MemberID == "" {
		acked = next
	}
	s.replaceLocked(memberID, acked)
	delete(s.memberErrs, memberID)
	s.mu.Unlock()

	slog.Info("attendance_event", "event", "transition_applied", "program_id", s.programID, "member_id", memberID, "action", string(action), "from", string(current.Status), "to", string(acked.Status))
	s.record(ctx, current, acked, action, domainAudit.OutcomeApplied, nil)
	return acked, nil
}

// BulkFailure is one member a bulk action could not be applied to.
type BulkFailure struct {
	MemberID string
	Err      error
}

// BulkResult reports a bulk action per member.
type BulkResult struct {
	Succeeded []string
	Failed    []BulkFailure
}

// BulkApply applies action to each member independently and in order.
// A failure for one member does not stop the others and nothing is rolled back.
// PRE: action is check-in, mark-absent or confirm
// POST: Every id appears exactly once in Succeeded or Failed
func (s *Session) BulkApply(ctx context.Context, memberIDs []string, action attendance.Action) (BulkResult, error) {
	if action == attendance.ActionJustify {
		return BulkResult{}, fmt.Errorf("%w: %s", ErrBulkAction, action)
	}
	at := s.now()
	var result BulkResult
	for _, id := range memberIDs {
		if _, err := s.Apply(ctx, id, action, at, ""); err != nil {
			result.Failed = append(result.Failed, BulkFailure{MemberID: id, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	slog.Info("attendance_event", "event", "bulk_applied", "program_id", s.programID, "action", string(action), "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	return result, nil
}

// Close discards the roster. A load or transition still in flight is
// ignored when it completes.
// POST: every later operation returns collection.ErrClosed
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.roster = []attendance.Record{}
	s.version++
	s.memberErrs = make(map[string]error)
}

// record appends the attempt to the journal. Journal failures are logged only.
func (s *Session) record(ctx context.Context, from, to attendance.Record, action attendance.Action, outcome domainAudit.Outcome, err error) {
	if s.journal == nil {
		return
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	event := domainAudit.NewEvent(s.programID, from.MemberID, string(action)).
		WithTransition(string(from.Status), string(to.Status)).
		WithOutcome(outcome, detail)
	if jerr := s.journal.Save(context.WithoutCancel(ctx), event); jerr != nil {
		slog.Warn("attendance_event", "event", "journal_write_failed", "program_id", s.programID, "member_id", from.MemberID, "error", jerr)
	}
}

func (s *Session) indexLocked(memberID string) int {
	for i, r := range s.roster {
		if r.MemberID == memberID {
			return i
		}
	}
	return -1
}

func (s *Session) replaceLocked(memberID string, rec attendance.Record) {
	idx := s.indexLocked(memberID)
	if idx < 0 {
		return
	}
	held := make([]attendance.Record, len(s.roster))
	copy(held, s.roster)
	held[idx] = rec
	s.roster = held
	s.version++
}

func (s *Session) removeLocked(memberID string) {
	idx := s.indexLocked(memberID)
	if idx < 0 {
		return
	}
	held := make([]attendance.Record, 0, len(s.roster)-1)
	held = append(held, s.roster[:idx]...)
	held = append(held, s.roster[idx+1:]...)
	s.roster = held
	s.version++
}

// plainText strips markup and decodes entities so the server stores what
// the user typed.
func plainText(text string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(text)))
}
