package projections

import "sync"

// Memo caches the result of a projection for one input identity. Callers
// key it by something that changes iff the input changed (a snapshot
// pointer or a records version).
type Memo[K comparable, V any] struct {
	mu  sync.Mutex
	key K
	val *V
}

// Get returns the cached result for key, computing it only when key differs
// from the previous call.
// POST: Two calls with the same key return the same pointer
func (m *Memo[K, V]) Get(key K, compute func() V) *V {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.val != nil && m.key == key {
		return m.val
	}
	v := compute()
	m.key = key
	m.val = &v
	return m.val
}
