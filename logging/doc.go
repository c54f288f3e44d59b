// Package logging provides a minimal logging interface and adapters for the
// orchestration core.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine, registry and sinks use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - MeshLogger with workflow/component context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(reg, func(o *engine.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
