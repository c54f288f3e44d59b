// Package core provides the foundational domain types, interfaces and shared
// primitives used by the StratoMesh orchestration core. It defines the
// abstractions for:
//
//   - Agents (opaque, independently versioned units of business logic,
//     registered by name with a declared capability contract)
//   - Workflow definitions, steps and the tagged step-input variants
//   - Step outcomes, workflow results and the engine state machine
//   - The ContextStore threaded through the steps of one execution
//   - The Gate bounding concurrent workflow admissions
//   - Pluggable sinks for audit entries and derived artifacts
//   - The orchestration error taxonomy
//
// The package intentionally keeps implementation concerns (registry storage,
// engine orchestration, concrete agents, durable sinks) out of scope,
// exposing small interfaces to enable custom backends and extensions. All
// exported identifiers include concise documentation to aid discoverability
// and external consumption.
package core
