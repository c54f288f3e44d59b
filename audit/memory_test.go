package audit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stratomesh/stratomesh/core"
)

// Interface compliance (compile-time assertions)
var _ core.AuditLog = (*InMemoryLog)(nil)

func TestInMemoryLog_AppendOrderPerWorkflow(t *testing.T) {
	log := NewInMemoryLog()

	kinds := []core.AuditKind{core.AuditWorkflowState, core.AuditStepStart, core.AuditStepEnd, core.AuditWorkflowState}
	for i, k := range kinds {
		entry := core.NewAuditEntry("wf-1", k, map[string]any{"seq": i})
		if err := log.Append(entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// interleave a second workflow
	if err := log.Append(core.NewAuditEntry("wf-2", core.AuditWorkflowState, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := log.Entries("wf-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != len(kinds) {
		t.Fatalf("expected %d entries, got %d", len(kinds), len(entries))
	}
	for i, e := range entries {
		if e.Kind != kinds[i] {
			t.Errorf("entry %d: expected kind %s, got %s", i, kinds[i], e.Kind)
		}
		if seq, _ := e.Detail["seq"].(int); seq != i {
			t.Errorf("entry %d: expected seq %d, got %v", i, i, e.Detail["seq"])
		}
	}
}

func TestInMemoryLog_UnknownWorkflowIsEmpty(t *testing.T) {
	log := NewInMemoryLog()
	entries, err := log.Entries("missing")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestInMemoryLog_ReadIsolation(t *testing.T) {
	log := NewInMemoryLog()
	if err := log.Append(core.NewAuditEntry("wf-1", core.AuditStepStart, map[string]any{"agent": "profiler"})); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, _ := log.Entries("wf-1")
	entries[0].Detail["agent"] = "tampered"

	again, _ := log.Entries("wf-1")
	if again[0].Detail["agent"] != "profiler" {
		t.Fatalf("expected stored detail to be isolated from caller mutation, got %v", again[0].Detail["agent"])
	}
}

func TestInMemoryLog_RegistryScopeEntriesInAll(t *testing.T) {
	log := NewInMemoryLog()
	// registration entries carry no workflow id
	if err := log.Append(core.NewAuditEntry("", core.AuditAgentRegistered, map[string]any{"agent": "profiler"})); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(core.NewAuditEntry("wf-1", core.AuditWorkflowState, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := log.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Kind != core.AuditAgentRegistered {
		t.Fatalf("expected registration first, got %s", all[0].Kind)
	}
}

func TestInMemoryLog_ConcurrentAppend(t *testing.T) {
	log := NewInMemoryLog()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("wf-%d", w)
			for i := 0; i < 25; i++ {
				_ = log.Append(core.NewAuditEntry(id, core.AuditStepStart, map[string]any{"i": i}))
			}
		}(w)
	}
	wg.Wait()

	if log.Len() != 8*25 {
		t.Fatalf("expected %d entries, got %d", 8*25, log.Len())
	}
	for w := 0; w < 8; w++ {
		entries, _ := log.Entries(fmt.Sprintf("wf-%d", w))
		if len(entries) != 25 {
			t.Fatalf("workflow %d: expected 25 entries, got %d", w, len(entries))
		}
		for i, e := range entries {
			if got, _ := e.Detail["i"].(int); got != i {
				t.Fatalf("workflow %d: entry %d out of order (got %v)", w, i, e.Detail["i"])
			}
		}
	}
}
