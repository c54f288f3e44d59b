// Package audit provides the sinks behind the orchestration audit trail.
//
// Every registration, workflow state transition, step boundary and context
// merge is appended to a core.AuditLog keyed by the workflow correlation id.
// Two implementations are included:
//
//   - InMemoryLog: process-local, append-ordered, copy-on-read. Suitable for
//     tests, examples and single-process deployments.
//   - SQLiteLog: durable storage on an embedded SQLite database. Survives
//     process restarts and supports external inspection of the trail.
//
// Both preserve append order per workflow and are safe for concurrent use.
// Neither mutates or deletes entries; retention is the operator's concern.
package audit
