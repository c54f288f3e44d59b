// Package agent contains first-class agent implementations and supporting
// utilities for exposing business logic to the orchestration core. The
// central type is FuncAgent, an adapter that turns plain Go functions into a
// core.Agent with a declared capability contract:
//
//   - One Handler per declared method, bound via Handle/HandleStruct
//   - Optional per-method input schemas (hand-written or reflection-derived)
//   - Taxonomy-conformant error normalization at the call boundary
//
// Teams with richer needs implement core.Agent directly; the engine and
// registry only ever see the interface. The package intentionally keeps
// registry storage and engine orchestration in their respective packages to
// avoid cyclic deps.
package agent
