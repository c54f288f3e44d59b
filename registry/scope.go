package registry

import (
	"sync"

	"github.com/stratomesh/stratomesh/core"
)

// Scope is a per-workflow-execution resolver view over the registry. Within
// one scope an agent is constructed at most once and reused for every step
// that names it; across scopes the registry's reuse policy decides. Only
// agents actually resolved through the scope are ever constructed.
//
// A Scope is safe for concurrent use, though the engine drives steps
// sequentially within one execution.
type Scope struct {
	reg *Registry

	mu    sync.Mutex
	local map[string]core.Agent
}

// Scope creates a fresh resolution scope for one workflow execution.
func (r *Registry) Scope() *Scope {
	return &Scope{reg: r, local: map[string]core.Agent{}}
}

// Resolve returns the scope's handle for name, constructing it through the
// registry on first use. Unregistered names and construction failures yield
// *core.AgentInitializationError; a failed resolution leaves no partial
// handle behind.
func (s *Scope) Resolve(name string) (core.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.local[name]; ok {
		return a, nil
	}

	a, err := s.reg.resolve(name)
	if err != nil {
		return nil, err
	}

	s.local[name] = a
	return a, nil
}

// Resolved returns the names the scope has constructed or adopted so far.
func (s *Scope) Resolved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.local))
	for name := range s.local {
		names = append(names, name)
	}
	return names
}
