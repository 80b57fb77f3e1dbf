package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"lodge/internal/adapters/perf"
)

// SQLDB is the database interface used by the journal store.
// Both *sql.DB and *TimedDB satisfy this interface.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time check that *sql.DB satisfies SQLDB.
var _ SQLDB = (*sql.DB)(nil)

// DefaultSlowQuery is the default threshold for slow query warnings.
const DefaultSlowQuery = 50 * time.Millisecond

// TimedDB wraps the journal connection, logging slow statements and feeding
// the --timings report.
type TimedDB struct {
	db        *sql.DB
	collector *perf.Collector
	threshold time.Duration
}

// Compile-time check that *TimedDB satisfies SQLDB.
var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps db with timing instrumentation. collector may be nil.
// PRE: db is a valid database connection
// POST: Returns a TimedDB that logs queries slower than threshold at Warn
func NewTimedDB(db *sql.DB, collector *perf.Collector, threshold time.Duration) *TimedDB {
	if threshold <= 0 {
		threshold = DefaultSlowQuery
	}
	return &TimedDB{db: db, collector: collector, threshold: threshold}
}

// statementOp labels a query by verb and table, e.g. "INSERT audit_event",
// so timings group by statement shape rather than by argument values.
func statementOp(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "?"
	}
	verb := strings.ToUpper(words[0])
	for i, w := range words[:len(words)-1] {
		switch strings.ToUpper(w) {
		case "INTO", "FROM", "UPDATE", "TABLE":
			return verb + " " + strings.Trim(words[i+1], "`\"(")
		}
	}
	return verb
}

func (t *TimedDB) logQuery(query string, start time.Time, err error) {
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Microseconds()) / 1000.0
	op := statementOp(query)

	attrs := []any{"op", op, "duration_ms", durationMs}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if elapsed >= t.threshold {
		slog.Warn("slow_query", attrs...)
	} else {
		slog.Debug("query", attrs...)
	}

	t.collector.Record(perf.Entry{
		Kind:       perf.KindQuery,
		Op:         op,
		Failed:     err != nil,
		DurationMs: durationMs,
		Timestamp:  start,
	})
}

// ExecContext runs query and records its timing.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.logQuery(query, start, err)
	return result, err
}

// QueryContext runs query and records the time to first row.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.logQuery(query, start, err)
	return rows, err
}

func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.logQuery(query, start, row.Err())
	return row
}
