// Package perf keeps a bounded in-memory history of remote API calls and
// journal queries and aggregates their timings on demand.
package perf

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 2048

// Kind distinguishes remote calls from local journal queries.
type Kind uint8

const (
	KindCall Kind = iota
	KindQuery
)

// Entry is a single timing record.
type Entry struct {
	Kind       Kind
	Op         string // "GET /members" or "INSERT audit_event"
	StatusCode int    // HTTP status; 0 for queries and transport failures
	Failed     bool
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer of timing entries. When full the
// oldest entry is overwritten. Aggregation happens only on read.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	pos     int
	count   int64
}

// NewCollector creates a collector with the given capacity.
// PRE: size > 0, otherwise DefaultRingSize is used
// POST: Returns an empty collector
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{entries: make([]Entry, size)}
}

// Record stores e, overwriting the oldest entry when full.
// Safe to call on a nil collector.
func (c *Collector) Record(e Entry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % len(c.entries)
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// TotalRecorded returns the number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	if c == nil {
		return 0
	}
	return atomic.LoadInt64(&c.count)
}

// Snapshot holds aggregated timings.
type Snapshot struct {
	TotalRecorded  int64
	Calls          int
	FailedCalls    int
	CallP50Ms      float64
	CallP95Ms      float64
	CallP99Ms      float64
	SlowestCalls   []OpStat
	SlowestQueries []OpStat
}

// OpStat aggregates timings for one operation.
type OpStat struct {
	Op      string
	Count   int
	AvgMs   float64
	MaxMs   float64
	TotalMs float64
}

// Snapshot aggregates entries recorded at or after since.
// PRE: topN >= 0
// POST: Slowest lists are sorted by average duration, descending, at most topN long
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Entry, len(c.entries))
	copy(buf, c.entries)
	c.mu.Unlock()

	var callDurations []float64
	calls := make(map[string]*OpStat)
	queries := make(map[string]*OpStat)
	failed := 0

	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		target := queries
		if e.Kind == KindCall {
			target = calls
			callDurations = append(callDurations, e.DurationMs)
			if e.Failed {
				failed++
			}
		}
		s, ok := target[e.Op]
		if !ok {
			s = &OpStat{Op: e.Op}
			target[e.Op] = s
		}
		s.Count++
		s.TotalMs += e.DurationMs
		s.MaxMs = math.Max(s.MaxMs, e.DurationMs)
	}

	snap := Snapshot{
		TotalRecorded:  c.TotalRecorded(),
		Calls:          len(callDurations),
		FailedCalls:    failed,
		SlowestCalls:   topByAvg(calls, topN),
		SlowestQueries: topByAvg(queries, topN),
	}
	if len(callDurations) > 0 {
		sort.Float64s(callDurations)
		snap.CallP50Ms = percentile(callDurations, 50)
		snap.CallP95Ms = percentile(callDurations, 95)
		snap.CallP99Ms = percentile(callDurations, 99)
	}
	return snap
}

// WriteTo prints the snapshot as a short plain-text table.
func (s Snapshot) WriteTo(w io.Writer) (int64, error) {
	var n int64
	write := func(format string, args ...any) error {
		m, err := fmt.Fprintf(w, format, args...)
		n += int64(m)
		return err
	}
	if err := write("remote calls: %d (%d failed)  p50 %.1fms  p95 %.1fms  p99 %.1fms\n",
		s.Calls, s.FailedCalls, s.CallP50Ms, s.CallP95Ms, s.CallP99Ms); err != nil {
		return n, err
	}
	for _, op := range s.SlowestCalls {
		if err := write("  %-32s n=%-4d avg %.1fms  max %.1fms\n", op.Op, op.Count, op.AvgMs, op.MaxMs); err != nil {
			return n, err
		}
	}
	if len(s.SlowestQueries) > 0 {
		if err := write("journal queries:\n"); err != nil {
			return n, err
		}
		for _, op := range s.SlowestQueries {
			if err := write("  %-32s n=%-4d avg %.1fms  max %.1fms\n", op.Op, op.Count, op.AvgMs, op.MaxMs); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// percentile returns the p-th percentile of a sorted slice, interpolating
// between neighbours.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func topByAvg(stats map[string]*OpStat, n int) []OpStat {
	list := make([]OpStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs == list[j].AvgMs {
			return list[i].Op < list[j].Op
		}
		return list[i].AvgMs > list[j].AvgMs
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
