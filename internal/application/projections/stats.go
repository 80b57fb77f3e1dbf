package projections

import (
	"math"
	"sort"
)

// Share is the count of one category and its percentage of the total.
type Share struct {
	Key     string
	Count   int
	Percent float64
}

// CountBy counts items per key.
// PRE: key is non-nil
// POST: Returns a map with one entry per distinct key; empty input yields an empty map
func CountBy[T any](items []T, key func(T) string) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		counts[key(it)]++
	}
	return counts
}

// Percent returns part as a percentage of total, rounded to one decimal.
// INVARIANT: Percent(x, 0) == 0
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(total)) / 10
}

// Breakdown returns the share of every category. Categories in order come
// first (including those with zero count); unlisted categories follow in
// alphabetical order.
// POST: Sum of Count equals len(items)
func Breakdown[T any](items []T, key func(T) string, order []string) []Share {
	counts := CountBy(items, key)
	total := len(items)

	shares := make([]Share, 0, len(order)+len(counts))
	listed := make(map[string]bool, len(order))
	for _, k := range order {
		listed[k] = true
		shares = append(shares, Share{Key: k, Count: counts[k], Percent: Percent(counts[k], total)})
	}

	var extra []string
	for k := range counts {
		if !listed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		shares = append(shares, Share{Key: k, Count: counts[k], Percent: Percent(counts[k], total)})
	}
	return shares
}

// Find returns the share for key, or a zero Share.
func Find(shares []Share, key string) Share {
	for _, s := range shares {
		if s.Key == key {
			return s
		}
	}
	return Share{Key: key}
}
