// Package stratomesh provides a high-level façade over the core Engine and
// its collaborators (agent registry, audit trail, artifact storage & logging)
// enabling rapid construction of multi‑agent orchestration systems. Most
// applications interact with this package by:
//  1. Creating a StratoMesh via New() (optionally overriding default in‑memory services)
//  2. Registering one or more agent specs (or relying on the built-in data-product agents)
//  3. Orchestrating declarative workflows (Orchestrate) or onboarding data products (OnboardDataProduct)
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply durable audit and artifact
// stores and a structured logger.
package stratomesh

import (
	"context"

	"github.com/stratomesh/stratomesh/artifact"
	"github.com/stratomesh/stratomesh/audit"
	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/dataproduct"
	"github.com/stratomesh/stratomesh/engine"
	"github.com/stratomesh/stratomesh/logging"
	"github.com/stratomesh/stratomesh/registry"
)

// Options configures the StratoMesh instance.
type Options struct {
	// Engine configuration (concurrency, step timeout)
	EngineConfig engine.Config

	// Registry holds the agent descriptor table. Defaults to a fresh registry
	// wired to the same audit log and logger as the engine.
	Registry *registry.Registry

	// Stores (defaults to in-memory implementations if not provided)
	AuditLog      core.AuditLog
	ArtifactStore core.ArtifactStore

	// SkipBuiltinAgents leaves the data-product agents (profiler, drafter,
	// auditor) unregistered. OnboardDataProduct then reports an agent
	// initialization failure unless equivalent agents are registered manually.
	SkipBuiltinAgents bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// StratoMesh is the high-level façade aggregating the underlying engine and services.
type StratoMesh struct {
	opts      Options
	registry  *registry.Registry
	engine    *engine.Engine
	onboarder *dataproduct.Onboarder
}

// New creates a new StratoMesh instance with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *StratoMesh {
	opts := Options{
		EngineConfig:  engine.DefaultConfig,
		AuditLog:      audit.NewInMemoryLog(),
		ArtifactStore: artifact.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.New(func(o *registry.Options) {
			o.AuditLog = opts.AuditLog
			o.Logger = opts.Logger
		})
	}

	if !opts.SkipBuiltinAgents {
		if err := dataproduct.RegisterAgents(reg); err != nil {
			opts.Logger.Error("mesh.builtin.register_failed", "error", err)
		}
	}

	eng := engine.New(reg, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.AuditLog = opts.AuditLog
		o.Logger = opts.Logger
	})

	onboarder := dataproduct.NewOnboarder(eng, opts.ArtifactStore, func(o *dataproduct.Options) {
		o.Logger = opts.Logger
	})

	return &StratoMesh{opts: opts, registry: reg, engine: eng, onboarder: onboarder}
}

// RegisterAgent installs an agent spec in the underlying registry, replacing
// any previous spec registered under the same name.
func (m *StratoMesh) RegisterAgent(spec core.AgentSpec) error { return m.registry.Register(spec) }

// Orchestrate validates the definition and executes its steps in declaration
// order, returning the full execution report. Agent faults surface inside the
// result as step outcomes; the returned error is reserved for rejected
// definitions and context cancellation while waiting on an execution slot.
func (m *StratoMesh) Orchestrate(ctx context.Context, def core.WorkflowDefinition) (*core.WorkflowResult, error) {
	return m.engine.Orchestrate(ctx, def)
}

// RunWorkflow executes a workflow and returns only the final merged context
// values.
//
// Deprecated: RunWorkflow discards per-step outcomes and the audit reference.
// Use Orchestrate, which returns the full WorkflowResult.
func (m *StratoMesh) RunWorkflow(ctx context.Context, def core.WorkflowDefinition) (map[string]any, error) {
	return m.engine.RunWorkflow(ctx, def)
}

// OnboardDataProduct runs the built-in profile, draft and audit pipeline for
// one data product and persists the drafted contract and quality assessment
// as workflow artifacts.
func (m *StratoMesh) OnboardDataProduct(ctx context.Context, req dataproduct.Request) (*dataproduct.Report, error) {
	return m.onboarder.Onboard(ctx, req)
}

// Registry exposes the agent descriptor table.
func (m *StratoMesh) Registry() *registry.Registry { return m.registry }

// Engine exposes the underlying workflow engine.
func (m *StratoMesh) Engine() *engine.Engine { return m.engine }

// AuditLog exposes the append-only execution trail shared by the registry and
// the engine.
func (m *StratoMesh) AuditLog() core.AuditLog { return m.opts.AuditLog }

// Artifacts exposes the artifact store used to persist onboarding outputs.
func (m *StratoMesh) Artifacts() core.ArtifactStore { return m.opts.ArtifactStore }
