package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure within the orchestration error taxonomy.
type ErrorKind string

// Error kinds, one per taxonomy member.
const (
	ErrKindRegistration        ErrorKind = "registration"
	ErrKindAgentInitialization ErrorKind = "agent_initialization"
	ErrKindAgentExecution      ErrorKind = "agent_execution"
	ErrKindProtocolValidation  ErrorKind = "protocol_validation"
)

// RegistrationError reports that an agent spec failed capability-contract
// validation at register time. It is surfaced immediately to the caller of
// RegisterAgent and never silently ignored.
type RegistrationError struct {
	Agent   string // registered agent name (may be empty when the name itself is invalid)
	Message string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Agent == "" {
		return fmt.Sprintf("agent registration failed: %s", e.Message)
	}
	return fmt.Sprintf("registration of agent %q failed: %s", e.Agent, e.Message)
}

// AgentInitializationError reports that resolving or constructing an agent
// handle failed: the name was never registered, the factory returned an
// error, or the constructed handle does not honor its declared capability
// contract. It is recorded as the StepOutcome of the step that triggered the
// resolution.
type AgentInitializationError struct {
	Agent   string
	Message string
	Err     error // underlying factory error, if any
}

// Error implements the error interface.
func (e *AgentInitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("initialization of agent %q failed: %s: %v", e.Agent, e.Message, e.Err)
	}
	return fmt.Sprintf("initialization of agent %q failed: %s", e.Agent, e.Message)
}

// Unwrap exposes the underlying factory error for errors.Is/As chains.
func (e *AgentInitializationError) Unwrap() error { return e.Err }

// AgentExecutionError reports that an agent's method call failed at runtime,
// including panics recovered at the executor boundary and per-step timeouts.
type AgentExecutionError struct {
	Agent   string
	Method  string
	Message string
	Err     error // underlying call error, if any
}

// Error implements the error interface.
func (e *AgentExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution of %s.%s failed: %s: %v", e.Agent, e.Method, e.Message, e.Err)
	}
	return fmt.Sprintf("execution of %s.%s failed: %s", e.Agent, e.Method, e.Message)
}

// Unwrap exposes the underlying call error for errors.Is/As chains.
func (e *AgentExecutionError) Unwrap() error { return e.Err }

// ProtocolValidationError reports that a WorkflowDefinition or step input
// failed schema/shape validation before any agent was invoked. It is always
// fatal for that workflow; no steps are attempted.
type ProtocolValidationError struct {
	Workflow string
	Field    string // offending field in dotted form, e.g. "steps[2].method"
	Message  string
}

// Error implements the error interface.
func (e *ProtocolValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("workflow %q rejected: %s", e.Workflow, e.Message)
	}
	return fmt.Sprintf("workflow %q rejected: %s: %s", e.Workflow, e.Field, e.Message)
}

// ErrorRecord is the normalized, outcome-embedded form of a taxonomy error.
// It is what callers see inside a StepOutcome instead of a raw error value.
type ErrorRecord struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// RecordFromError normalizes any error into an ErrorRecord. Errors outside
// the taxonomy classify as agent execution failures, since by the time a
// record is built only collaborator-level faults remain.
func RecordFromError(err error) *ErrorRecord {
	if err == nil {
		return nil
	}

	var (
		regErr  *RegistrationError
		initErr *AgentInitializationError
		execErr *AgentExecutionError
		protErr *ProtocolValidationError
	)

	switch {
	case errors.As(err, &regErr):
		return &ErrorRecord{Kind: ErrKindRegistration, Message: regErr.Error()}
	case errors.As(err, &initErr):
		return &ErrorRecord{Kind: ErrKindAgentInitialization, Message: initErr.Error()}
	case errors.As(err, &execErr):
		return &ErrorRecord{Kind: ErrKindAgentExecution, Message: execErr.Error()}
	case errors.As(err, &protErr):
		return &ErrorRecord{Kind: ErrKindProtocolValidation, Message: protErr.Error()}
	default:
		return &ErrorRecord{Kind: ErrKindAgentExecution, Message: err.Error()}
	}
}
