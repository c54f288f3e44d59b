package core

// Input represents the polymorphic payload of a workflow step. Concrete
// input types implement the unexported isInput marker enabling a closed set:
// a step carries either a typed payload validated against the target
// capability's declared schema, or a free-form opaque map passed through
// untouched.
type Input interface {
	isInput()

	// Values returns the underlying key/value payload.
	Values() map[string]any
}

// TypedInput is a payload that opts into boundary validation. When the target
// agent/method pair declares an input schema, the payload must satisfy it
// before the workflow is admitted; without a declared schema the payload
// passes through like an opaque one.
type TypedInput struct {
	Fields map[string]any
}

// isInput implements the Input interface for TypedInput.
func (TypedInput) isInput() {}

// Values returns the typed payload map.
func (i TypedInput) Values() map[string]any { return i.Fields }

// OpaqueInput is a free-form payload handed to the agent without validation.
type OpaqueInput struct {
	Fields map[string]any
}

// isInput implements the Input interface for OpaqueInput.
func (OpaqueInput) isInput() {}

// Values returns the opaque payload map.
func (i OpaqueInput) Values() map[string]any { return i.Fields }

// InputValues normalizes an Input for invocation: nil inputs yield an empty
// map so agents never observe a nil payload.
func InputValues(in Input) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	if v := in.Values(); v != nil {
		return v
	}
	return map[string]any{}
}
