package audit

import (
	"context"
	"database/sql"
	"time"

	domain "lodge/internal/domain/audit"
)

const dateLayout = "2006-01-02T15:04:05.999999999Z07:00"

const selectColumns = `SELECT id, timestamp, program_id, member_id, action, from_status, to_status, outcome, detail FROM audit_event`

// SQLiteStore implements the journal Store interface using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new journal store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists a journal event.
// PRE: event has an ID
// POST: Event is persisted
func (s *SQLiteStore) Save(ctx context.Context, event domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_event (id, timestamp, program_id, member_id, action, from_status, to_status, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC().Format(dateLayout), event.ProgramID, event.MemberID, event.Action,
		event.FromStatus, event.ToStatus, string(event.Outcome), event.Detail)
	return err
}

// List returns journal events with optional filtering.
// PRE: limit > 0
// POST: Returns events ordered by timestamp desc
func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}

	if filter.ProgramID != nil {
		query += " AND program_id = ?"
		args = append(args, *filter.ProgramID)
	}
	if filter.MemberID != nil {
		query += " AND member_id = ?"
		args = append(args, *filter.MemberID)
	}
	if filter.Outcome != nil {
		query += " AND outcome = ?"
		args = append(args, string(*filter.Outcome))
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// scanEvents scans multiple rows into a slice of Events.
func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var timestamp, outcome string
		err := rows.Scan(&e.ID, &timestamp, &e.ProgramID, &e.MemberID, &e.Action, &e.FromStatus, &e.ToStatus, &outcome, &e.Detail)
		if err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(dateLayout, timestamp)
		e.Outcome = domain.Outcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}
