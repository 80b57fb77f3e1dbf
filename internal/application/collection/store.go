package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lodge/internal/application/listutil"
	"lodge/internal/domain/failure"
)

// Entity is a record with a stable server-assigned identity.
type Entity interface {
	Key() string
}

// Page is one page of records returned by a list call.
type Page[T any] struct {
	Records    []T
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// Remote is the list + CRUD surface of one resource on the backend.
type Remote[T Entity, P any] interface {
	List(ctx context.Context, q listutil.Query) (Page[T], error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, payload P) (T, error)
	Update(ctx context.Context, id string, payload P) (T, error)
	Delete(ctx context.Context, id string) error
}

// Validator is implemented by payloads that can check themselves before
// they are sent.
type Validator interface {
	Validate() error
}

// Status is the fetch status of a collection.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// Store errors
var (
	ErrSuperseded = errors.New("fetch superseded by a newer request")
	ErrClosed     = errors.New("collection is closed")
)

// Snapshot is an immutable view of a store's state. A new Snapshot is
// published on every change; its Records slice is never mutated afterwards.
type Snapshot[T Entity] struct {
	Records []T
	Status  Status
	Err     error
	Query   listutil.Query
	Page    listutil.PageInfo

	// RecordsVersion changes iff Records was replaced.
	RecordsVersion uint64
}

// Store holds the last fetched page of one resource together with its query
// state, and reconciles confirmed writes into it.
// INVARIANT: len(Records) <= Query.PageSize
// INVARIANT: only the most recently issued fetch may apply its result
type Store[T Entity, P any] struct {
	name   string
	remote Remote[T, P]

	mu          sync.Mutex
	snap        *Snapshot[T]
	seq         uint64
	cancelFetch context.CancelFunc
	closed      bool
}

// NewStore creates an empty store for one resource.
// PRE: remote is non-nil; q comes from listutil.NewQuery for the resource's filter spec
// POST: Store is idle with no records
func NewStore[T Entity, P any](name string, remote Remote[T, P], q listutil.Query) *Store[T, P] {
	return &Store[T, P]{
		name:   name,
		remote: remote,
		snap: &Snapshot[T]{
			Records: []T{},
			Status:  StatusIdle,
			Query:   q,
			Page:    listutil.NewPageInfo(q.Page, q.PageSize, 0),
		},
	}
}

// Name returns the resource name the store was created for.
func (s *Store[T, P]) Name() string {
	return s.name
}

// Snapshot returns the current state.
func (s *Store[T, P]) Snapshot() *Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Records returns the held records in server order. Callers must not modify the slice.
func (s *Store[T, P]) Records() []T { return s.Snapshot().Records }

// Status returns the fetch status.
func (s *Store[T, P]) Status() Status { return s.Snapshot().Status }

// Err returns the last failure, or nil.
func (s *Store[T, P]) Err() error { return s.Snapshot().Err }

// Query returns the current search, filters and page position.
func (s *Store[T, P]) Query() listutil.Query { return s.Snapshot().Query }

// PageInfo returns pagination metadata from the last successful fetch.
func (s *Store[T, P]) PageInfo() listutil.PageInfo { return s.Snapshot().Page }

// Fetch reads the current query's page from the remote and replaces the
// held records. A fetch issued while another is in flight cancels the older
// one; the older caller receives ErrSuperseded and its result is discarded.
// PRE: store is not closed
// POST: On success Records/Page are replaced and Status is idle.
// On failure Status is error, Err is set and Records are unchanged.
func (s *Store[T, P]) Fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seq++
	seq := s.seq
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancelFetch = cancel
	q := s.snap.Query
	s.publishLocked(func(n *Snapshot[T]) { n.Status = StatusLoading })
	s.mu.Unlock()

	page, err := s.remote.List(fetchCtx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer cancel()
	if s.closed {
		return ErrClosed
	}
	if seq != s.seq {
		slog.Debug("collection_event", "event", "fetch_discarded", "resource", s.name, "seq", seq, "latest", s.seq)
		return ErrSuperseded
	}
	s.cancelFetch = nil

	if err != nil {
		slog.Warn("collection_event", "event", "fetch_failed", "resource", s.name, "kind", failure.KindOf(err).String(), "error", err)
		s.publishLocked(func(n *Snapshot[T]) {
			n.Status = StatusError
			n.Err = err
		})
		return fmt.Errorf("fetch %s: %w", s.name, err)
	}

	records := page.Records
	if len(records) > q.PageSize {
		records = records[:q.PageSize]
	}
	held := make([]T, len(records))
	copy(held, records)

	pageNum := page.Page
	if pageNum < 1 {
		pageNum = q.Page
	}
	s.publishLocked(func(n *Snapshot[T]) {
		n.Records = held
		n.RecordsVersion++
		n.Status = StatusIdle
		n.Err = nil
		n.Page = listutil.NewPageInfo(pageNum, q.PageSize, page.Total)
	})
	slog.Debug("collection_event", "event", "fetched", "resource", s.name, "count", len(held), "total", page.Total, "page", pageNum)
	return nil
}

// Get reads one record and refreshes the held copy if it is on the current page.
// POST: NotFound prunes the record from Records
func (s *Store[T, P]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if s.isClosed() {
		return zero, ErrClosed
	}
	rec, err := s.remote.Get(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failWriteLocked("get", id, err)
		return zero, fmt.Errorf("get %s %s: %w", s.name, id, err)
	}
	if !s.closed {
		s.replaceLocked(id, rec)
	}
	return rec, nil
}

// Create writes a new record and prepends the server's canonical copy.
// Payloads implementing Validator are checked locally first.
// Pagination totals are left for the next fetch to reconcile.
// POST: On failure Records are unchanged and the error is returned and recorded in Err
func (s *Store[T, P]) Create(ctx context.Context, payload P) (T, error) {
	var zero T
	if s.isClosed() {
		return zero, ErrClosed
	}
	rec, err := s.checkPayload(payload)
	if err == nil {
		rec, err = s.remote.Create(ctx, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failWriteLocked("create", "", err)
		return zero, fmt.Errorf("create %s: %w", s.name, err)
	}
	if s.closed {
		return rec, nil
	}
	limit := s.snap.Query.PageSize
	held := make([]T, 0, len(s.snap.Records)+1)
	held = append(held, rec)
	held = append(held, s.snap.Records...)
	if len(held) > limit {
		held = held[:limit]
	}
	s.publishLocked(func(n *Snapshot[T]) {
		n.Records = held
		n.RecordsVersion++
		s.clearWriteErr(n)
	})
	slog.Info("collection_event", "event", "created", "resource", s.name, "id", rec.Key())
	return rec, nil
}

// Update writes a record and replaces the held copy in place. A record that
// is not on the current page is left alone; the update still succeeds.
// POST: NotFound prunes the record from Records
func (s *Store[T, P]) Update(ctx context.Context, id string, payload P) (T, error) {
	var zero T
	if s.isClosed() {
		return zero, ErrClosed
	}
	rec, err := s.checkPayload(payload)
	if err == nil {
		rec, err = s.remote.Update(ctx, id, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failWriteLocked("update", id, err)
		return zero, fmt.Errorf("update %s %s: %w", s.name, id, err)
	}
	if !s.closed {
		s.replaceLocked(id, rec)
	}
	slog.Info("collection_event", "event", "updated", "resource", s.name, "id", id)
	return rec, nil
}

// Delete removes a record remotely and from the held page.
// Pagination totals are left for the next fetch to reconcile.
// POST: NotFound also prunes the record and is still returned to the caller
func (s *Store[T, P]) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.remote.Delete(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failWriteLocked("delete", id, err)
		return fmt.Errorf("delete %s %s: %w", s.name, id, err)
	}
	if !s.closed {
		s.removeLocked(id)
		s.publishLocked(s.clearWriteErr)
	}
	slog.Info("collection_event", "event", "deleted", "resource", s.name, "id", id)
	return nil
}

// MergeFilters shallow-merges partial into the query and returns to page 1.
// No network call is made.
// POST: Returns ErrClosed without changing state once the store is closed
func (s *Store[T, P]) MergeFilters(partial map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	q, err := s.snap.Query.MergeFilters(partial)
	if err != nil {
		return err
	}
	s.publishLocked(func(n *Snapshot[T]) { n.Query = q })
	return nil
}

// ResetFilters restores default filters, clears the search and returns to page 1.
func (s *Store[T, P]) ResetFilters() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	q := s.snap.Query.Reset()
	s.publishLocked(func(n *Snapshot[T]) { n.Query = q })
	return nil
}

// SetPage moves to page n, clamped to the known page range. Filters are untouched.
func (s *Store[T, P]) SetPage(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	q := s.snap.Query.SetPage(n, s.snap.Page.TotalPages)
	s.publishLocked(func(n *Snapshot[T]) { n.Query = q })
	return nil
}

// SetPageSize changes the page size and returns to page 1. Held records
// beyond the new size are dropped at once.
// POST: len(Records) <= n
func (s *Store[T, P]) SetPageSize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	q, err := s.snap.Query.SetPageSize(n)
	if err != nil {
		return err
	}
	s.setQueryLocked(q)
	return nil
}

// SetQuery replaces the whole query, e.g. one restored with
// listutil.ParseQuery. The page is not clamped: the next fetch reports
// whether it exists.
// PRE: q was built for this store's filter spec
// POST: len(Records) <= q.PageSize
func (s *Store[T, P]) SetQuery(q listutil.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if q.PageSize < 1 {
		return fmt.Errorf("%w: %d", listutil.ErrInvalidPageSize, q.PageSize)
	}
	s.setQueryLocked(q)
	return nil
}

// setQueryLocked publishes q, trimming the held page to q.PageSize.
func (s *Store[T, P]) setQueryLocked(q listutil.Query) {
	s.publishLocked(func(n *Snapshot[T]) {
		n.Query = q
		if len(n.Records) > q.PageSize {
			held := make([]T, q.PageSize)
			copy(held, n.Records)
			n.Records = held
			n.RecordsVersion++
		}
	})
}

// Close disposes the store: the in-flight fetch is cancelled and any result
// that still arrives is ignored.
// POST: every later operation returns ErrClosed
func (s *Store[T, P]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
}

// checkPayload runs the payload's own validation, if it has one, so an
// invalid write never reaches the server.
func (s *Store[T, P]) checkPayload(payload P) (T, error) {
	var zero T
	if v, ok := any(payload).(Validator); ok {
		return zero, v.Validate()
	}
	return zero, nil
}

func (s *Store[T, P]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// publishLocked copies the current snapshot, applies fn and publishes the copy.
func (s *Store[T, P]) publishLocked(fn func(n *Snapshot[T])) {
	next := *s.snap
	fn(&next)
	s.snap = &next
}

// clearWriteErr drops a stale write error; a fetch error stays visible until the next fetch.
func (s *Store[T, P]) clearWriteErr(n *Snapshot[T]) {
	if n.Status != StatusError {
		n.Err = nil
	}
}

// failWriteLocked records a failed write; NotFound prunes the record.
func (s *Store[T, P]) failWriteLocked(op, id string, err error) {
	slog.Warn("collection_event", "event", op+"_failed", "resource", s.name, "id", id, "kind", failure.KindOf(err).String(), "error", err)
	if s.closed {
		return
	}
	if id != "" && errors.Is(err, failure.ErrNotFound) {
		s.removeLocked(id)
	}
	s.publishLocked(func(n *Snapshot[T]) { n.Err = err })
}

func (s *Store[T, P]) replaceLocked(id string, rec T) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return
	}
	held := make([]T, len(s.snap.Records))
	copy(held, s.snap.Records)
	held[idx] = rec
	s.publishLocked(func(n *Snapshot[T]) {
		n.Records = held
		n.RecordsVersion++
		s.clearWriteErr(n)
	})
}

func (s *Store[T, P]) removeLocked(id string) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return
	}
	held := make([]T, 0, len(s.snap.Records)-1)
	held = append(held, s.snap.Records[:idx]...)
	held = append(held, s.snap.Records[idx+1:]...)
	s.publishLocked(func(n *Snapshot[T]) {
		n.Records = held
		n.RecordsVersion++
	})
}

func (s *Store[T, P]) indexLocked(id string) int {
	for i, r := range s.snap.Records {
		if r.Key() == id {
			return i
		}
	}
	return -1
}
