package core

import "time"

// StepStatus is the terminal status of one step attempt.
type StepStatus string

// Step statuses.
const (
	StepOK    StepStatus = "ok"
	StepError StepStatus = "error"
)

// WorkflowStatus is the caller-facing terminal status of one workflow
// execution.
type WorkflowStatus string

// Workflow result statuses.
const (
	StatusSuccess        WorkflowStatus = "success"
	StatusPartialSuccess WorkflowStatus = "partial_success"
	StatusError          WorkflowStatus = "error"
)

// WorkflowState names a station in the engine's state machine:
//
//	Pending -> Running -> {Completed, PartiallyCompleted, Aborted}
//
// Aborted covers both an early stop under the abort-on-error policy and a
// run in which every attempted step failed.
type WorkflowState string

// Workflow states.
const (
	StatePending            WorkflowState = "pending"
	StateRunning            WorkflowState = "running"
	StateCompleted          WorkflowState = "completed"
	StatePartiallyCompleted WorkflowState = "partially_completed"
	StateAborted            WorkflowState = "aborted"
)

// Terminal reports whether the state is one of the three end states.
func (s WorkflowState) Terminal() bool {
	switch s {
	case StateCompleted, StatePartiallyCompleted, StateAborted:
		return true
	default:
		return false
	}
}

// ResultStatus maps a terminal state onto the caller-facing workflow status.
// Non-terminal states map to StatusError, though the engine never surfaces
// them in a result.
func (s WorkflowState) ResultStatus() WorkflowStatus {
	switch s {
	case StateCompleted:
		return StatusSuccess
	case StatePartiallyCompleted:
		return StatusPartialSuccess
	default:
		return StatusError
	}
}

// StepOutcome is the normalized record of one step attempt, produced by the
// step executor and appended to the workflow result in declaration order.
// Exactly one of Output and Error is meaningful: Output when Status is ok,
// Error when Status is error.
type StepOutcome struct {
	Index     int           `json:"index"`
	AgentName string        `json:"agent_name"`
	Method    string        `json:"method"`
	Status    StepStatus    `json:"status"`
	Output    any           `json:"output,omitempty"`
	Error     *ErrorRecord  `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether the step attempt ended in error.
func (o StepOutcome) Failed() bool { return o.Status == StepError }

// WorkflowResult is the terminal value returned to the caller for one
// workflow execution. AuditRef is the correlation id under which the
// execution's audit trail is recorded.
type WorkflowResult struct {
	WorkflowName string         `json:"workflow_name"`
	Status       WorkflowStatus `json:"status"`
	Outcomes     []StepOutcome  `json:"outcomes"`
	AuditRef     string         `json:"audit_ref"`
	Started      time.Time      `json:"started"`
	Duration     time.Duration  `json:"duration"`
}

// Failures counts outcomes that ended in error.
func (r *WorkflowResult) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
