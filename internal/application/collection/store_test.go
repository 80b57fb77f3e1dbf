package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lodge/internal/application/listutil"
	"lodge/internal/domain/failure"
)

type item struct {
	ID   string
	Name string
}

// Key returns the item ID.
func (i item) Key() string { return i.ID }

type itemInput struct {
	Name string
}

var itemSpec = listutil.FilterSpec{Keys: []listutil.FilterKey{
	{Name: "kind", Default: listutil.All, Values: []string{listutil.All, "a", "b"}},
}}

type fakeRemote struct {
	mu        sync.Mutex
	listCalls []listutil.Query

	listFn   func(ctx context.Context, q listutil.Query) (Page[item], error)
	getFn    func(id string) (item, error)
	createFn func(in itemInput) (item, error)
	updateFn func(id string, in itemInput) (item, error)
	deleteFn func(id string) error
}

// List records the query and delegates to listFn.
// PRE: listFn is set
// POST: Returns listFn's result
func (f *fakeRemote) List(ctx context.Context, q listutil.Query) (Page[item], error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, q)
	f.mu.Unlock()
	return f.listFn(ctx, q)
}

// Get delegates to getFn.
// PRE: getFn is set
// POST: Returns getFn's result
func (f *fakeRemote) Get(_ context.Context, id string) (item, error) { return f.getFn(id) }

// Create delegates to createFn.
// PRE: createFn is set
// POST: Returns createFn's result
func (f *fakeRemote) Create(_ context.Context, in itemInput) (item, error) { return f.createFn(in) }

// Update delegates to updateFn.
// PRE: updateFn is set
// POST: Returns updateFn's result
func (f *fakeRemote) Update(_ context.Context, id string, in itemInput) (item, error) {
	return f.updateFn(id, in)
}

// Delete delegates to deleteFn.
// PRE: deleteFn is set
// POST: Returns deleteFn's result
func (f *fakeRemote) Delete(_ context.Context, id string) error { return f.deleteFn(id) }

func (f *fakeRemote) calls() []listutil.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]listutil.Query, len(f.listCalls))
	copy(out, f.listCalls)
	return out
}

func staticList(total int, records ...item) func(context.Context, listutil.Query) (Page[item], error) {
	return func(_ context.Context, q listutil.Query) (Page[item], error) {
		return Page[item]{Records: records, Page: q.Page, PageSize: q.PageSize, Total: total}, nil
	}
}

func newTestStore(t *testing.T, remote *fakeRemote, pageSize int) *Store[item, itemInput] {
	t.Helper()
	s := NewStore[item, itemInput]("items", remote, listutil.NewQuery(itemSpec, pageSize))
	t.Cleanup(s.Close)
	return s
}

func keys(records []item) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

// TestStore_FetchReplacesRecords verifies a successful fetch replaces records and pagination.
func TestStore_FetchReplacesRecords(t *testing.T) {
	remote := &fakeRemote{listFn: staticList(45, item{ID: "1"}, item{ID: "2"})}
	s := newTestStore(t, remote, 20)

	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if diff := cmp.Diff([]string{"1", "2"}, keys(snap.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if snap.Status != StatusIdle || snap.Err != nil {
		t.Errorf("status=%s err=%v, want idle/nil", snap.Status, snap.Err)
	}
	if snap.Page.Total != 45 || snap.Page.TotalPages != 3 {
		t.Errorf("total/totalPages = %d/%d, want 45/3", snap.Page.Total, snap.Page.TotalPages)
	}

	remote.listFn = staticList(1, item{ID: "9"})
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"9"}, keys(s.Records())); diff != "" {
		t.Errorf("records not replaced wholesale (-want +got):\n%s", diff)
	}
}

// TestStore_FetchTrimsToPageSize verifies the held page never exceeds the page size.
func TestStore_FetchTrimsToPageSize(t *testing.T) {
	many := make([]item, 15)
	for i := range many {
		many[i] = item{ID: string(rune('a' + i))}
	}
	remote := &fakeRemote{listFn: staticList(15, many...)}
	s := newTestStore(t, remote, 10)

	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Records()) != 10 {
		t.Errorf("len(records) = %d, want 10", len(s.Records()))
	}
}

// TestStore_OutOfOrderFetch verifies a stale response arriving last never overwrites the newer result.
func TestStore_OutOfOrderFetch(t *testing.T) {
	gates := map[string]chan Page[item]{"x": make(chan Page[item]), "y": make(chan Page[item])}
	started := make(chan string, 2)
	remote := &fakeRemote{listFn: func(_ context.Context, q listutil.Query) (Page[item], error) {
		started <- q.Search
		return <-gates[q.Search], nil // ignores cancellation, like a slow server
	}}
	s := newTestStore(t, remote, 20)

	errs := make(chan error, 2)
	_ = s.MergeFilters(map[string]string{listutil.SearchKey: "x"})
	go func() { errs <- s.Fetch(context.Background()) }()
	<-started

	_ = s.MergeFilters(map[string]string{listutil.SearchKey: "y"})
	go func() { errs <- s.Fetch(context.Background()) }()
	<-started

	gates["y"] <- Page[item]{Records: []item{{ID: "y1"}}, Page: 1, Total: 1}
	if err := <-errs; err != nil {
		t.Fatalf("fetch #2: unexpected error: %v", err)
	}
	gates["x"] <- Page[item]{Records: []item{{ID: "x1"}, {ID: "x2"}}, Page: 1, Total: 2}
	if err := <-errs; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("fetch #1: err = %v, want ErrSuperseded", err)
	}

	if diff := cmp.Diff([]string{"y1"}, keys(s.Records())); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if s.Status() != StatusIdle {
		t.Errorf("status = %s, want idle", s.Status())
	}
}

// TestStore_FetchFailureKeepsRecords verifies a failed refresh keeps last-known-good data.
func TestStore_FetchFailureKeepsRecords(t *testing.T) {
	remote := &fakeRemote{listFn: staticList(2, item{ID: "1"}, item{ID: "2"})}
	s := newTestStore(t, remote, 20)
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := failure.Transient("connection refused", nil)
	remote.listFn = func(context.Context, listutil.Query) (Page[item], error) { return Page[item]{}, boom }
	err := s.Fetch(context.Background())
	if !errors.Is(err, failure.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}

	snap := s.Snapshot()
	if snap.Status != StatusError || !errors.Is(snap.Err, failure.ErrTransient) {
		t.Errorf("status=%s err=%v", snap.Status, snap.Err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, keys(snap.Records)); diff != "" {
		t.Errorf("records changed on failure (-want +got):\n%s", diff)
	}
}

// TestStore_CreatePrepends verifies the canonical record is prepended and totals are left alone.
func TestStore_CreatePrepends(t *testing.T) {
	remote := &fakeRemote{
		listFn:   staticList(2, item{ID: "1"}, item{ID: "2"}),
		createFn: func(in itemInput) (item, error) { return item{ID: "new", Name: in.Name}, nil },
	}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())

	rec, err := s.Create(context.Background(), itemInput{Name: "Lee"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "new" || rec.Name != "Lee" {
		t.Errorf("returned %+v", rec)
	}
	if diff := cmp.Diff([]string{"new", "1", "2"}, keys(s.Records())); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if s.PageInfo().Total != 2 {
		t.Errorf("total = %d, want 2 (reconciled by next fetch)", s.PageInfo().Total)
	}
}

// TestStore_CreateOnFullPageTrimsTail verifies the page-size invariant holds after a create.
func TestStore_CreateOnFullPageTrimsTail(t *testing.T) {
	page := make([]item, 10)
	for i := range page {
		page[i] = item{ID: string(rune('a' + i))}
	}
	remote := &fakeRemote{
		listFn:   staticList(30, page...),
		createFn: func(itemInput) (item, error) { return item{ID: "new"}, nil },
	}
	s := newTestStore(t, remote, 10)
	_ = s.Fetch(context.Background())

	if _, err := s.Create(context.Background(), itemInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.Records()
	if len(got) != 10 || got[0].ID != "new" || got[9].ID != "i" {
		t.Errorf("records = %v", keys(got))
	}
}

// TestStore_CreateFailureLeavesRecords verifies a rejected write surfaces its error and changes nothing else.
func TestStore_CreateFailureLeavesRecords(t *testing.T) {
	rejected := failure.Validation("rejected", map[string][]string{"name": {"is required"}})
	remote := &fakeRemote{
		listFn:   staticList(1, item{ID: "1"}),
		createFn: func(itemInput) (item, error) { return item{}, rejected },
	}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())
	before := s.Snapshot()

	_, err := s.Create(context.Background(), itemInput{})
	if !errors.Is(err, failure.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	after := s.Snapshot()
	if after.RecordsVersion != before.RecordsVersion {
		t.Error("records replaced on failed create")
	}
	if after.Status != StatusIdle {
		t.Errorf("status = %s, want idle", after.Status)
	}
	if !errors.Is(after.Err, failure.ErrValidation) {
		t.Errorf("Err = %v, want validation", after.Err)
	}
}

// TestStore_UpdateReplacesInPlace verifies identity-matched replacement and the off-page no-op.
func TestStore_UpdateReplacesInPlace(t *testing.T) {
	remote := &fakeRemote{
		listFn:   staticList(3, item{ID: "1", Name: "a"}, item{ID: "2", Name: "b"}, item{ID: "3", Name: "c"}),
		updateFn: func(id string, in itemInput) (item, error) { return item{ID: id, Name: in.Name}, nil },
	}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())

	if _, err := s.Update(context.Background(), "2", itemInput{Name: "B"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []item{{ID: "1", Name: "a"}, {ID: "2", Name: "B"}, {ID: "3", Name: "c"}}
	if diff := cmp.Diff(want, s.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	version := s.Snapshot().RecordsVersion
	if _, err := s.Update(context.Background(), "99", itemInput{Name: "z"}); err != nil {
		t.Fatalf("off-page update should succeed, got %v", err)
	}
	if s.Snapshot().RecordsVersion != version {
		t.Error("off-page update replaced records")
	}
}

// TestStore_DeleteRemovesWithoutAdjustingTotals verifies delete prunes locally and leaves counts to the next fetch.
func TestStore_DeleteRemovesWithoutAdjustingTotals(t *testing.T) {
	remote := &fakeRemote{
		listFn:   staticList(2, item{ID: "1"}, item{ID: "2"}),
		deleteFn: func(string) error { return nil },
	}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())

	if err := s.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"2"}, keys(s.Records())); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if s.PageInfo().Total != 2 {
		t.Errorf("total = %d, want 2", s.PageInfo().Total)
	}
}

// TestStore_NotFoundPrunes verifies a NotFound write failure prunes the local record and is still reported.
func TestStore_NotFoundPrunes(t *testing.T) {
	remote := &fakeRemote{
		listFn:   staticList(2, item{ID: "1"}, item{ID: "2"}),
		updateFn: func(string, itemInput) (item, error) { return item{}, failure.NotFound("member not found") },
		getFn:    func(string) (item, error) { return item{}, failure.NotFound("member not found") },
	}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())

	_, err := s.Update(context.Background(), "2", itemInput{})
	if !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if diff := cmp.Diff([]string{"1"}, keys(s.Records())); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Get(context.Background(), "1"); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("get err = %v, want not found", err)
	}
	if len(s.Records()) != 0 {
		t.Errorf("records = %v, want empty", keys(s.Records()))
	}
}

// TestStore_GetRefreshesHeldRecord verifies a get replaces the held copy in place.
func TestStore_GetRefreshesHeldRecord(t *testing.T) {
	remote := &fakeRemote{
		listFn: staticList(1, item{ID: "1", Name: "old"}),
		getFn:  func(id string) (item, error) { return item{ID: id, Name: "fresh"}, nil },
	}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())

	if _, err := s.Get(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Records()[0].Name != "fresh" {
		t.Errorf("name = %q, want fresh", s.Records()[0].Name)
	}
}

// TestStore_SetPageLeavesFilters verifies paging never touches the filters.
func TestStore_SetPageLeavesFilters(t *testing.T) {
	remote := &fakeRemote{listFn: staticList(100)}
	s := newTestStore(t, remote, 20)
	_ = s.MergeFilters(map[string]string{"kind": "b", listutil.SearchKey: "q"})
	_ = s.Fetch(context.Background())
	before := s.Query()

	for _, n := range []int{-1, 0, 3, 5, 6, 1000} {
		s.SetPage(n)
		got := s.Query()
		if diff := cmp.Diff(before.Filters, got.Filters); diff != "" {
			t.Errorf("SetPage(%d) changed filters (-want +got):\n%s", n, diff)
		}
		if got.Search != before.Search {
			t.Errorf("SetPage(%d) changed search to %q", n, got.Search)
		}
		if got.Page < 1 || got.Page > 5 {
			t.Errorf("SetPage(%d) page = %d, want within [1,5]", n, got.Page)
		}
	}
}

// TestStore_CloseIgnoresLateResult verifies a disposed store never applies a pending fetch.
func TestStore_CloseIgnoresLateResult(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	remote := &fakeRemote{listFn: func(context.Context, listutil.Query) (Page[item], error) {
		close(started)
		<-gate
		return Page[item]{Records: []item{{ID: "late"}}, Total: 1}, nil
	}}
	s := NewStore[item, itemInput]("items", remote, listutil.NewQuery(itemSpec, 20))

	errs := make(chan error, 1)
	go func() { errs <- s.Fetch(context.Background()) }()
	<-started
	s.Close()
	close(gate)

	select {
	case err := <-errs:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("fetch did not return")
	}
	if len(s.Records()) != 0 {
		t.Errorf("late result applied: %v", keys(s.Records()))
	}
	if _, err := s.Create(context.Background(), itemInput{}); !errors.Is(err, ErrClosed) {
		t.Errorf("create after close err = %v, want ErrClosed", err)
	}
}

// TestStore_FetchCancelsPrevious verifies a newer fetch cancels the older request's context.
func TestStore_FetchCancelsPrevious(t *testing.T) {
	cancelled := make(chan struct{})
	first := true
	var mu sync.Mutex
	started := make(chan struct{}, 1)
	remote := &fakeRemote{listFn: func(ctx context.Context, _ listutil.Query) (Page[item], error) {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			started <- struct{}{}
			<-ctx.Done()
			close(cancelled)
			return Page[item]{}, ctx.Err()
		}
		return Page[item]{}, nil
	}}
	s := newTestStore(t, remote, 20)

	errs := make(chan error, 1)
	go func() { errs <- s.Fetch(context.Background()) }()
	<-started
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("first request was not cancelled")
	}
	if err := <-errs; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first fetch err = %v, want ErrSuperseded", err)
	}
	if s.Status() != StatusIdle {
		t.Errorf("status = %s, want idle", s.Status())
	}
}

type checkedInput struct {
	Name string
}

// Validate rejects a blank name.
// PRE: none
// POST: Returns a validation failure when Name is empty
func (c checkedInput) Validate() error {
	if c.Name == "" {
		return failure.Validation("invalid payload", map[string][]string{"name": {"is required"}})
	}
	return nil
}

type countingRemote struct {
	creates int
}

// List returns an empty page.
// PRE: none
// POST: Returns no records
func (r *countingRemote) List(context.Context, listutil.Query) (Page[item], error) {
	return Page[item]{}, nil
}

// Get is not used by these tests.
// PRE: none
// POST: Returns not found
func (r *countingRemote) Get(context.Context, string) (item, error) {
	return item{}, failure.NotFound("not found")
}

// Create counts the call and echoes the payload.
// PRE: none
// POST: creates is incremented
func (r *countingRemote) Create(_ context.Context, in checkedInput) (item, error) {
	r.creates++
	return item{ID: "c", Name: in.Name}, nil
}

// Update echoes the payload.
// PRE: none
// POST: Returns the updated item
func (r *countingRemote) Update(_ context.Context, id string, in checkedInput) (item, error) {
	return item{ID: id, Name: in.Name}, nil
}

// Delete always succeeds.
// PRE: none
// POST: Returns nil
func (r *countingRemote) Delete(context.Context, string) error { return nil }

// TestStore_InvalidPayloadNeverSent verifies self-validating payloads are checked before dispatch.
func TestStore_InvalidPayloadNeverSent(t *testing.T) {
	remote := &countingRemote{}
	s := NewStore[item, checkedInput]("items", remote, listutil.NewQuery(itemSpec, 20))
	defer s.Close()

	_, err := s.Create(context.Background(), checkedInput{})
	if !errors.Is(err, failure.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if remote.creates != 0 {
		t.Errorf("creates = %d, want 0", remote.creates)
	}
	if _, ok := failure.FieldErrors(s.Err())["name"]; !ok {
		t.Errorf("Err() = %v, want field error for name", s.Err())
	}

	if _, err := s.Create(context.Background(), checkedInput{Name: "ok"}); err != nil {
		t.Fatalf("valid create: %v", err)
	}
	if remote.creates != 1 || s.Err() != nil {
		t.Errorf("creates = %d, Err = %v", remote.creates, s.Err())
	}
}

// TestStore_SetPageSizeTrimsHeldPage verifies shrinking the page size keeps
// the held page within the new size without waiting for a fetch.
func TestStore_SetPageSizeTrimsHeldPage(t *testing.T) {
	many := make([]item, 20)
	for i := range many {
		many[i] = item{ID: string(rune('a' + i))}
	}
	remote := &fakeRemote{listFn: staticList(20, many...)}
	s := newTestStore(t, remote, 20)
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := s.Snapshot()

	if err := s.SetPageSize(10); err != nil {
		t.Fatalf("SetPageSize: %v", err)
	}
	after := s.Snapshot()
	if len(after.Records) != 10 || after.Query.PageSize != 10 {
		t.Fatalf("len(records)=%d pageSize=%d, want 10/10", len(after.Records), after.Query.PageSize)
	}
	if diff := cmp.Diff(keys(many[:10]), keys(after.Records)); diff != "" {
		t.Errorf("kept records (-want +got):\n%s", diff)
	}
	if after.RecordsVersion == before.RecordsVersion {
		t.Error("RecordsVersion unchanged after trimming")
	}
	if len(before.Records) != 20 {
		t.Errorf("earlier snapshot mutated: len = %d", len(before.Records))
	}

	if err := s.SetPageSize(50); err != nil {
		t.Fatalf("SetPageSize(50): %v", err)
	}
	if got := s.Snapshot(); got.RecordsVersion != after.RecordsVersion || len(got.Records) != 10 {
		t.Errorf("growing the page touched records: version %d->%d len %d", after.RecordsVersion, got.RecordsVersion, len(got.Records))
	}
	if len(remote.calls()) != 1 {
		t.Errorf("list calls = %d, want 1", len(remote.calls()))
	}
}

// TestStore_SetQuery verifies a restored query is applied whole, unclamped, and trims the page.
func TestStore_SetQuery(t *testing.T) {
	remote := &fakeRemote{listFn: staticList(3, item{ID: "1"}, item{ID: "2"}, item{ID: "3"})}
	s := newTestStore(t, remote, 20)
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q, err := listutil.ParseQuery(map[string][]string{"kind": {"b"}, "page": {"4"}, "limit": {"2"}}, itemSpec, 20)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if err := s.SetQuery(q); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}
	got := s.Query()
	if got.Page != 4 || got.PageSize != 2 || got.Filter("kind") != "b" {
		t.Errorf("query = %+v, want page 4 size 2 kind b", got)
	}
	if diff := cmp.Diff([]string{"1", "2"}, keys(s.Records())); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
}

// TestStore_QueryChangesAfterClose verifies a closed store rejects query changes and keeps its state.
func TestStore_QueryChangesAfterClose(t *testing.T) {
	remote := &fakeRemote{listFn: staticList(100)}
	s := newTestStore(t, remote, 20)
	_ = s.Fetch(context.Background())
	s.Close()
	before := s.Snapshot()

	ops := map[string]func() error{
		"MergeFilters": func() error { return s.MergeFilters(map[string]string{"kind": "a"}) },
		"ResetFilters": s.ResetFilters,
		"SetPage":      func() error { return s.SetPage(3) },
		"SetPageSize":  func() error { return s.SetPageSize(10) },
		"SetQuery":     func() error { return s.SetQuery(listutil.NewQuery(itemSpec, 10)) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after close err = %v, want ErrClosed", name, err)
		}
	}
	if s.Snapshot() != before {
		t.Error("closed store published a new snapshot")
	}
	if s.Query().Filter("kind") != listutil.All {
		t.Errorf("kind = %q, want %q", s.Query().Filter("kind"), listutil.All)
	}
}
