package audit

import (
	"context"

	"lodge/internal/adapters/storage"
	domain "lodge/internal/domain/audit"
)

// Store defines the interface for attendance journal persistence.
type Store interface {
	// Save persists a journal event.
	// PRE: event has an ID
	// POST: Event is persisted
	Save(ctx context.Context, event domain.Event) error

	// List returns journal events with optional filtering.
	// PRE: limit > 0
	// POST: Returns events ordered by timestamp desc
	List(ctx context.Context, filter Filter, limit int) ([]domain.Event, error)
}

// Filter defines query parameters for listing journal events.
type Filter struct {
	ProgramID *string
	MemberID  *string
	Outcome   *domain.Outcome
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// SQLDB defines the database interface needed by the store.
type SQLDB interface {
	storage.SQLDB
}
