package collection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lodge/internal/application/debounce"
	"lodge/internal/application/listutil"
)

// Controller drives a Store from user input: search text is debounced,
// filter and page changes trigger a fetch.
type Controller[T Entity, P any] struct {
	store  *Store[T, P]
	search *debounce.Debouncer[string]
	ctx    context.Context
	stop   context.CancelFunc
}

// NewController wires store to a search debouncer with the given quiet period.
// PRE: store is non-nil
// POST: Returns a controller whose timer-driven fetches run under an internal
// context cancelled by Close
func NewController[T Entity, P any](store *Store[T, P], searchDelay time.Duration) *Controller[T, P] {
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller[T, P]{store: store, ctx: ctx, stop: stop}
	c.search = debounce.New(searchDelay, c.searchSettled)
	return c
}

// Store returns the underlying store for selectors and writes.
func (c *Controller[T, P]) Store() *Store[T, P] {
	return c.store
}

// Search records raw search input. The fetch happens once the input has
// been stable for the controller's delay.
func (c *Controller[T, P]) Search(text string) {
	c.search.Push(text)
}

// FlushSearch applies pending search input immediately and fetches under
// ctx. It is a no-op when no input is pending.
func (c *Controller[T, P]) FlushSearch(ctx context.Context) error {
	text, ok := c.search.Take()
	if !ok {
		return nil
	}
	return c.applySearch(ctx, text)
}

// Refresh refetches the current query.
func (c *Controller[T, P]) Refresh(ctx context.Context) error {
	return c.store.Fetch(ctx)
}

// MergeFilters merges partial into the filters and fetches page 1.
func (c *Controller[T, P]) MergeFilters(ctx context.Context, partial map[string]string) error {
	if err := c.store.MergeFilters(partial); err != nil {
		return err
	}
	return c.store.Fetch(ctx)
}

// ResetFilters clears every filter and the search, then fetches page 1.
func (c *Controller[T, P]) ResetFilters(ctx context.Context) error {
	if err := c.store.ResetFilters(); err != nil {
		return err
	}
	return c.store.Fetch(ctx)
}

// SetPage moves to page n and fetches it.
func (c *Controller[T, P]) SetPage(ctx context.Context, n int) error {
	if err := c.store.SetPage(n); err != nil {
		return err
	}
	return c.store.Fetch(ctx)
}

// SetPageSize changes the page size and fetches page 1.
func (c *Controller[T, P]) SetPageSize(ctx context.Context, n int) error {
	if err := c.store.SetPageSize(n); err != nil {
		return err
	}
	return c.store.Fetch(ctx)
}

// Close cancels pending search input and any in-flight fetch.
// POST: no result is applied to the store afterwards
func (c *Controller[T, P]) Close() {
	c.stop()
	c.store.Close()
	c.search.Close()
}

// searchSettled runs on the debouncer's goroutine once input settles.
func (c *Controller[T, P]) searchSettled(text string) {
	err := c.applySearch(c.ctx, text)
	if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
		slog.Warn("collection_event", "event", "search_failed", "resource", c.store.Name(), "error", err)
	}
}

func (c *Controller[T, P]) applySearch(ctx context.Context, text string) error {
	if err := c.store.MergeFilters(map[string]string{listutil.SearchKey: text}); err != nil {
		return err
	}
	return c.store.Fetch(ctx)
}
