package testutil

import (
	"github.com/stratomesh/stratomesh/core"
)

// DefinitionBuilder provides a fluent helper for constructing workflow
// definitions in tests.
// Example:
//
//	def := NewDefinitionBuilder("onboard").
//	    Step("profiler", "profile_source").
//	    TypedStep("drafter", "draft_contract", map[string]any{"owner": "data-eng"}).
//	    Build()
//
// Chain only the parts you need; sensible defaults are applied.
type DefinitionBuilder struct {
	name            string
	steps           []core.Step
	continueOnError bool
}

// NewDefinitionBuilder creates a builder for a definition with the given name.
func NewDefinitionBuilder(name string) *DefinitionBuilder {
	return &DefinitionBuilder{name: name}
}

// ContinueOnError switches the failure policy to record-and-continue (chainable).
func (b *DefinitionBuilder) ContinueOnError() *DefinitionBuilder {
	b.continueOnError = true
	return b
}

// Step appends a step with no input (chainable).
func (b *DefinitionBuilder) Step(agent, method string) *DefinitionBuilder {
	b.steps = append(b.steps, core.Step{AgentName: agent, Method: method})
	return b
}

// TypedStep appends a step with a schema-validated input (chainable).
func (b *DefinitionBuilder) TypedStep(agent, method string, fields map[string]any) *DefinitionBuilder {
	b.steps = append(b.steps, core.Step{AgentName: agent, Method: method, Input: core.TypedInput{Fields: fields}})
	return b
}

// OpaqueStep appends a step whose input bypasses schema validation (chainable).
func (b *DefinitionBuilder) OpaqueStep(agent, method string, fields map[string]any) *DefinitionBuilder {
	b.steps = append(b.steps, core.Step{AgentName: agent, Method: method, Input: core.OpaqueInput{Fields: fields}})
	return b
}

// Build constructs the core.WorkflowDefinition value.
func (b *DefinitionBuilder) Build() core.WorkflowDefinition {
	return core.WorkflowDefinition{
		Name:            b.name,
		Steps:           append([]core.Step{}, b.steps...),
		ContinueOnError: b.continueOnError,
	}
}

// SpecBuilder provides a fluent helper for constructing agent specs in tests.
// Example:
//
//	spec := NewSpecBuilder("profiler").
//	    Agent(stub).
//	    Capability("profile_source", "profiles a source").
//	    Build()
type SpecBuilder struct {
	name    string
	factory core.Factory
	config  map[string]any
	caps    []core.Capability
}

// NewSpecBuilder creates a builder for a spec with the given agent name.
func NewSpecBuilder(name string) *SpecBuilder { return &SpecBuilder{name: name} }

// Factory sets the construction function (chainable).
func (b *SpecBuilder) Factory(f core.Factory) *SpecBuilder { b.factory = f; return b }

// Agent sets a factory that always returns the given pre-built handle (chainable).
func (b *SpecBuilder) Agent(a core.Agent) *SpecBuilder {
	b.factory = func(map[string]any) (core.Agent, error) { return a, nil }
	return b
}

// Config sets one construction config key (chainable).
func (b *SpecBuilder) Config(key string, value any) *SpecBuilder {
	if b.config == nil {
		b.config = make(map[string]any)
	}
	b.config[key] = value
	return b
}

// Capability declares a schema-less capability (chainable).
func (b *SpecBuilder) Capability(method, description string) *SpecBuilder {
	b.caps = append(b.caps, core.Capability{Method: method, Description: description})
	return b
}

// SchemaCapability declares a capability with an input schema (chainable).
func (b *SpecBuilder) SchemaCapability(method, description string, schema map[string]any) *SpecBuilder {
	b.caps = append(b.caps, core.Capability{Method: method, Description: description, InputSchema: schema})
	return b
}

// Build constructs the core.AgentSpec value.
func (b *SpecBuilder) Build() core.AgentSpec {
	return core.AgentSpec{
		Name:         b.name,
		Factory:      b.factory,
		Config:       b.config,
		Capabilities: append([]core.Capability{}, b.caps...),
	}
}
