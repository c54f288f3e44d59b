package core

import "sync"

// ContractKey is the distinguished context key under which a drafted data
// contract surfaced by one step is propagated to every subsequent step of
// the same workflow. Agents that emit a contract place it in their result
// Extras; the engine merges Extras into the ContextStore without caller
// intervention.
const ContractKey = "data_contract"

// ContextStore is the shared key/value map threaded through all steps of one
// workflow execution. It accumulates cross-cutting metadata surfaced by any
// step and makes it visible to every subsequent step. It is safe for
// concurrent access.
//
// Contract:
//   - Merge is a shallow merge with last-write-wins per key
//   - Snapshot returns a copy; mutating it never affects the store
//   - Lifetime is one workflow execution; stores are never shared across
//     concurrently executing workflows
type ContextStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContextStore creates an empty context store.
func NewContextStore() *ContextStore {
	return &ContextStore{values: map[string]any{}}
}

// Merge shallow-merges delta into the store, last write wins per key. Later
// steps may overwrite keys written by earlier steps; write-once semantics
// are deliberately not enforced.
func (c *ContextStore) Merge(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range delta {
		c.values[k] = v
	}
}

// Get returns the value and existence flag for a context key.
func (c *ContextStore) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Snapshot returns a copy of the current map, passed to the next step. The
// copy is top-level: steps receive their own map and cannot mutate context
// that another step is still reading.
func (c *ContextStore) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}
	return snap
}

// Len returns the number of keys currently held.
func (c *ContextStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}
