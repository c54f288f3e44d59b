// Package artifact provides concrete implementations of core.ArtifactStore.
//
// The canonical ArtifactStore interface lives in the core package so the
// engine, the data-product composite and the facade share one contract
// without dependency cycles. This package supplies the backends: an
// in-memory store for tests and single-process deployments, and a durable
// SQLite-backed store for runs whose derived artifacts (data contracts,
// onboarding reports) must survive a restart.
//
// Callers should depend on the core interface rather than these concrete
// types so backends stay swappable.
package artifact
