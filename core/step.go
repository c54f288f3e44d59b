package core

// Step is a single agent-method invocation with its input. Steps are
// immutable, supplied by the caller as part of a WorkflowDefinition.
type Step struct {
	AgentName string `json:"agent_name"`
	Method    string `json:"method"`
	Input     Input  `json:"input,omitempty"`
}

// WorkflowDefinition is the immutable, caller-supplied description of one
// workflow execution: a name plus an ordered sequence of steps.
//
// ContinueOnError selects the error policy: when false (the default) the
// first failing step aborts the workflow and remaining steps are never
// attempted; when true every step is attempted and failures are collected in
// the result.
type WorkflowDefinition struct {
	Name            string `json:"workflow_name"`
	Steps           []Step `json:"steps"`
	ContinueOnError bool   `json:"continue_on_error,omitempty"`
}
