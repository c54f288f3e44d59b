package core

import (
	"time"

	"github.com/google/uuid"
)

// AuditKind classifies an audit entry.
type AuditKind string

// Audit entry kinds. Workflow state transitions share one kind with
// from/to/status detail; registrations carry an empty workflow id since they
// are registry-scope events.
const (
	AuditAgentRegistered AuditKind = "agent.registered"
	AuditWorkflowState   AuditKind = "workflow.state"
	AuditStepStart       AuditKind = "step.start"
	AuditStepEnd         AuditKind = "step.end"
	AuditContextMerge    AuditKind = "context.merge"
)

// AuditEntry is one record in the structured, append-only audit trail kept
// per workflow correlation id. Entries are never mutated or deleted by the
// core; retention and rotation belong to the sink implementation.
type AuditEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Kind       AuditKind      `json:"kind"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// NewAuditEntry constructs an entry stamped with the current time.
func NewAuditEntry(workflowID string, kind AuditKind, detail map[string]any) AuditEntry {
	return AuditEntry{Timestamp: time.Now(), WorkflowID: workflowID, Kind: kind, Detail: detail}
}

// AuditLog is the append-only sink recording every registration, step
// start/end, context merge and workflow state transition. Implementations
// must preserve append order and be safe for concurrent use.
type AuditLog interface {
	// Append records one entry.
	Append(entry AuditEntry) error

	// Entries returns the recorded entries for one workflow correlation id in
	// append order.
	Entries(workflowID string) ([]AuditEntry, error)

	// All returns every recorded entry in append order.
	All() ([]AuditEntry, error)
}

// NewID returns a new unique identifier string (UUID v4), used for workflow
// correlation ids.
func NewID() string {
	return uuid.NewString()
}
