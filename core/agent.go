package core

import "context"

// Agent is a live handle to one registered collaborator. The core treats
// every agent as an opaque callable unit identified by name plus a method
// plus a structured input; business logic (market analysis, risk scoring,
// data governance rules) lives entirely behind this interface.
//
// Implementations must:
//   - Serve every method declared by the AgentSpec they were registered under
//   - Return either a structured AgentResult or an error, never both
//   - Respect context cancellation inside long-running calls
//
// Handles are not shared across concurrently executing workflows unless they
// opt in via the ConcurrencySafe marker.
type Agent interface {
	// Name returns the agent's registered name.
	Name() string

	// Capabilities returns the method set this handle actually serves. The
	// registry checks it against the declared capability contract when the
	// handle is constructed.
	Capabilities() []Capability

	// Invoke calls one declared method with the step input and an immutable
	// snapshot of the workflow's shared context.
	Invoke(ctx context.Context, method string, input map[string]any, contextSnapshot map[string]any) (*AgentResult, error)
}

// Factory constructs a live agent handle from its registered configuration.
// Factories must be side-effect free until called: the registry invokes them
// lazily, and only for agents actually named by a workflow's steps.
type Factory func(config map[string]any) (Agent, error)

// Capability declares one typed method an agent exposes. InputSchema, when
// non-nil, is a JSON-schema-like map (see internal/util.CreateSchema) that
// typed step inputs targeting this method must satisfy.
type Capability struct {
	Method      string         `json:"method"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// AgentSpec is the registration record for one agent name: the constructor
// reference, its configuration and the declared capability contract. Specs
// are immutable after registration; re-registering a name replaces the whole
// spec atomically.
type AgentSpec struct {
	Name         string
	Factory      Factory
	Config       map[string]any
	Capabilities []Capability
}

// Capability returns the declared capability for method and whether it exists.
func (s AgentSpec) Capability(method string) (Capability, bool) {
	for _, c := range s.Capabilities {
		if c.Method == method {
			return c, true
		}
	}
	return Capability{}, false
}

// AgentResult is the structured success value returned by an agent method.
// Extras carries cross-cutting metadata that the engine merges into the
// workflow's ContextStore before the next step runs, making it visible to
// every downstream step without explicit wiring (see ContractKey).
type AgentResult struct {
	Output any            `json:"output,omitempty"`
	Extras map[string]any `json:"extras,omitempty"`
}

// ConcurrencySafe lets an agent handle declare itself safe to share across
// concurrently executing workflows. Handles that do not implement it, or
// that return false, are constructed fresh per workflow under the default
// reuse policy.
type ConcurrencySafe interface {
	SafeForConcurrentUse() bool
}
