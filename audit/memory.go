package audit

import (
	"sync"

	"github.com/stratomesh/stratomesh/core"
)

// InMemoryLog is an in-process AuditLog implementation useful for tests,
// examples and single-process prototypes. It keeps the full trail in an
// append-ordered slice guarded by an RWMutex, with a per-workflow index for
// correlation-id reads. Entries are copied on read so callers can never
// mutate the recorded trail.
//
// This implementation is intentionally minimal; it does not enforce retention
// limits or eviction. For anything that must survive a process restart,
// prefer SQLiteLog.
type InMemoryLog struct {
	mu      sync.RWMutex
	entries []core.AuditEntry
	byRun   map[string][]int // workflow correlation id -> entry indices, append order
}

// NewInMemoryLog returns an empty in-memory audit log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{byRun: make(map[string][]int)}
}

// Append records one entry at the tail of the trail.
func (l *InMemoryLog) Append(entry core.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := len(l.entries)
	l.entries = append(l.entries, cloneEntry(entry))
	if entry.WorkflowID != "" {
		l.byRun[entry.WorkflowID] = append(l.byRun[entry.WorkflowID], idx)
	}
	return nil
}

// Entries returns the entries recorded under the given workflow correlation
// id, in append order. Unknown ids yield an empty slice, not an error.
func (l *InMemoryLog) Entries(workflowID string) ([]core.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	indices := l.byRun[workflowID]
	out := make([]core.AuditEntry, 0, len(indices))
	for _, i := range indices {
		out = append(out, cloneEntry(l.entries[i]))
	}
	return out, nil
}

// All returns every recorded entry in append order, including registry-scope
// entries that carry no workflow id.
func (l *InMemoryLog) All() ([]core.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.AuditEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

// Len reports the number of recorded entries.
func (l *InMemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// cloneEntry copies an entry including its detail map so stored and returned
// values never share mutable state.
func cloneEntry(e core.AuditEntry) core.AuditEntry {
	cp := e
	if e.Detail != nil {
		cp.Detail = make(map[string]any, len(e.Detail))
		for k, v := range e.Detail {
			cp.Detail[k] = v
		}
	}
	return cp
}
