package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/logging"
)

// ReusePolicy decides whether a freshly constructed handle may be cached and
// served to later workflow executions. It is consulted once per
// construction; handles it rejects stay scoped to the single execution that
// built them.
type ReusePolicy func(spec core.AgentSpec, handle core.Agent) bool

// DefaultReusePolicy shares a handle across workflows only when it declares
// itself safe for concurrent use via the core.ConcurrencySafe interface.
func DefaultReusePolicy(_ core.AgentSpec, handle core.Agent) bool {
	if cs, ok := handle.(core.ConcurrencySafe); ok {
		return cs.SafeForConcurrentUse()
	}
	return false
}

// Options configures a Registry.
type Options struct {
	// Logger receives registry activity. Defaults to NoOp.
	Logger logging.Logger

	// AuditLog, when set, records every registration as a registry-scope
	// audit entry (empty workflow id).
	AuditLog core.AuditLog

	// ReusePolicy governs cross-workflow handle reuse. Defaults to
	// DefaultReusePolicy.
	ReusePolicy ReusePolicy
}

type specEntry struct {
	spec    core.AgentSpec
	version uint64 // bumped on every (re-)registration of the name
}

type sharedHandle struct {
	agent   core.Agent
	version uint64
}

// Registry is the process-wide descriptor table for registered agents. It is
// read-mostly: resolutions take a read lock, registrations take the write
// lock, and a reader never observes a half-written spec.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]specEntry
	shared map[string]sharedHandle

	logger logging.Logger
	audit  core.AuditLog
	policy ReusePolicy
}

// New creates an empty registry with optional overrides.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		ReusePolicy: DefaultReusePolicy,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		specs:  map[string]specEntry{},
		shared: map[string]sharedHandle{},
		logger: opts.Logger,
		audit:  opts.AuditLog,
		policy: opts.ReusePolicy,
	}
}

// Register validates the spec's capability contract and installs it under
// its name, replacing any previous spec atomically. Replacement drops the
// name's shared handle so future resolutions see the new spec; handles held
// by in-flight executions are unaffected. Registration is idempotent with
// respect to the descriptor table: after any number of calls with the same
// name exactly one spec is installed.
func (r *Registry) Register(spec core.AgentSpec) error {
	if err := validateSpec(spec); err != nil {
		r.logger.Warn("registry.register.rejected", "agent", spec.Name, "error", err)
		return err
	}

	r.mu.Lock()
	prev, replaced := r.specs[spec.Name]
	r.specs[spec.Name] = specEntry{spec: spec, version: prev.version + 1}
	delete(r.shared, spec.Name)
	r.mu.Unlock()

	r.logger.Info("registry.register.ok", "agent", spec.Name, "capabilities", len(spec.Capabilities), "replaced", replaced)
	r.appendAudit(core.NewAuditEntry("", core.AuditAgentRegistered, map[string]any{
		"agent":    spec.Name,
		"methods":  methodNames(spec),
		"replaced": replaced,
	}))

	return nil
}

// Spec returns a copy of the registered spec for name and whether it exists.
func (r *Registry) Spec(name string) (core.AgentSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.specs[name]
	return e.spec, ok
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the number of registered agents.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// resolve constructs (or serves from the shared cache) a handle for name.
// Construction failures, unregistered names and contract violations all
// surface as *core.AgentInitializationError.
func (r *Registry) resolve(name string) (core.Agent, error) {
	r.mu.RLock()
	e, ok := r.specs[name]
	sh, haveShared := r.shared[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &core.AgentInitializationError{Agent: name, Message: "agent is not registered"}
	}

	if haveShared && sh.version == e.version {
		r.logger.Debug("registry.resolve.cached", "agent", name)
		return sh.agent, nil
	}

	handle, err := e.spec.Factory(copyConfig(e.spec.Config))
	if err != nil {
		return nil, &core.AgentInitializationError{Agent: name, Message: "construction failed", Err: err}
	}
	if handle == nil {
		return nil, &core.AgentInitializationError{Agent: name, Message: "factory returned a nil handle"}
	}
	if err := checkContract(e.spec, handle); err != nil {
		return nil, err
	}

	if r.policy != nil && r.policy(e.spec, handle) {
		r.mu.Lock()
		// Cache only if the spec was not replaced while constructing.
		if cur, still := r.specs[name]; still && cur.version == e.version {
			r.shared[name] = sharedHandle{agent: handle, version: e.version}
		}
		r.mu.Unlock()
	}

	r.logger.Debug("registry.resolve.constructed", "agent", name)
	return handle, nil
}

// validateSpec enforces the capability contract shape at register time.
func validateSpec(spec core.AgentSpec) error {
	if spec.Name == "" {
		return &core.RegistrationError{Message: "agent name must not be empty"}
	}
	if spec.Factory == nil {
		return &core.RegistrationError{Agent: spec.Name, Message: "factory must not be nil"}
	}
	if len(spec.Capabilities) == 0 {
		return &core.RegistrationError{Agent: spec.Name, Message: "at least one capability must be declared"}
	}

	seen := map[string]bool{}
	for i, c := range spec.Capabilities {
		if c.Method == "" {
			return &core.RegistrationError{Agent: spec.Name, Message: fmt.Sprintf("capability %d declares an empty method", i)}
		}
		if seen[c.Method] {
			return &core.RegistrationError{Agent: spec.Name, Message: fmt.Sprintf("method %q declared more than once", c.Method)}
		}
		seen[c.Method] = true

		if c.InputSchema != nil {
			if t, ok := c.InputSchema["type"].(string); ok && t != "object" {
				return &core.RegistrationError{Agent: spec.Name, Message: fmt.Sprintf("input schema for method %q must describe an object, got %q", c.Method, t)}
			}
		}
	}

	return nil
}

// checkContract verifies a constructed handle serves every declared method.
func checkContract(spec core.AgentSpec, handle core.Agent) error {
	served := map[string]bool{}
	for _, c := range handle.Capabilities() {
		served[c.Method] = true
	}
	for _, c := range spec.Capabilities {
		if !served[c.Method] {
			return &core.AgentInitializationError{Agent: spec.Name, Message: fmt.Sprintf("constructed handle does not serve declared method %q", c.Method)}
		}
	}
	return nil
}

func methodNames(spec core.AgentSpec) []string {
	methods := make([]string, 0, len(spec.Capabilities))
	for _, c := range spec.Capabilities {
		methods = append(methods, c.Method)
	}
	return methods
}

func copyConfig(config map[string]any) map[string]any {
	cp := make(map[string]any, len(config))
	for k, v := range config {
		cp[k] = v
	}
	return cp
}

func (r *Registry) appendAudit(entry core.AuditEntry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Append(entry); err != nil {
		r.logger.Warn("registry.audit.append_failed", "error", err)
	}
}
