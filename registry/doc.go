// Package registry implements the agent registry: a thread-safe table
// mapping agent names to immutable registration specs, with lazy, per
// workflow resolution of live handles.
//
// Registration validates the declared capability contract and is atomic
// relative to concurrent resolutions; re-registering a name replaces the
// spec without side effects on handles already resolved by in-flight
// workflow executions. Handles are constructed only for agents actually
// named by a workflow's steps, through a per-execution Scope, and are shared
// across executions only when the configured reuse policy admits them.
package registry
