package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stratomesh/stratomesh/audit"
	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/internal/util"
	"github.com/stratomesh/stratomesh/logging"
	"github.com/stratomesh/stratomesh/registry"
)

// Config defines tuning parameters for the Engine's operational behavior.
//
// This configuration focuses on the two knobs that bound a deployment:
//   - Concurrency: how many workflow executions may hold a slot at once
//   - Step timeout: an optional ceiling on any single agent call
//
// Additional concerns such as audit sinks and logging are wired via
// functional options rather than expanding this struct, keeping it a plain
// value that can be loaded from configuration files.
//
// Example:
//
//	cfg := Config{
//	    MaxConcurrentWorkflows: 50,
//	    StepTimeout: 30 * time.Second,
//	}
type Config struct {
	// MaxConcurrentWorkflows limits the number of workflow executions that
	// can hold an execution slot simultaneously. Additional calls block in
	// Orchestrate until a slot frees up. Values below 1 are normalized to 1.
	MaxConcurrentWorkflows int

	// StepTimeout bounds the wall time of a single agent call. Zero disables
	// the bound; an expired step is recorded as an execution failure of that
	// step, never as an engine error.
	StepTimeout time.Duration
}

// DefaultConfig provides production-ready default configuration values.
//
// Configuration values:
//   - MaxConcurrentWorkflows: 10 (safe for most environments)
//   - StepTimeout: 0 (agent calls run unbounded; set a ceiling in
//     deployments that orchestrate third-party agents)
var DefaultConfig = Config{
	MaxConcurrentWorkflows: 10,
}

// Options configures an Engine instance using the functional options pattern.
//
// Defaults are provided for every field so a bare New(reg) is immediately
// usable in tests and examples. Production deployments typically supply a
// durable audit log and a structured logger.
//
// Example:
//
//	eng := New(reg,
//	    func(o *Options) { o.Config.MaxConcurrentWorkflows = 50 },
//	    func(o *Options) { o.AuditLog = sqliteLog },
//	    func(o *Options) { o.Logger = logger },
//	)
type Options struct {
	// Config contains operational parameters for the engine behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// AuditLog receives every state transition, step boundary and context
	// merge. Defaults to an in-memory log if not provided.
	AuditLog core.AuditLog

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil to ensure no logging dependencies.
	Logger logging.Logger
}

// Engine drives workflow executions through their full lifecycle within the
// StratoMesh runtime.
//
// The Engine is the single code path on which every workflow runs. It accepts
// a declarative WorkflowDefinition, validates it, and executes its steps
// strictly in declaration order against agents resolved from the registry
// handed to the constructor.
//
// Core Responsibilities:
//   - Protocol validation: malformed definitions are rejected before any
//     slot is claimed or audit stream opened
//   - Lifecycle management: Pending -> Running -> terminal state, with every
//     transition recorded in the audit trail
//   - Step sequencing: declaration-order execution with abort-on-error or
//     continue-on-error failure policy
//   - Context propagation: each successful step's extra outputs are merged
//     into the execution's context store before the next step runs
//   - Admission control: a counting gate bounds concurrent executions
//
// Concurrency Model:
//   - Each Orchestrate call runs on the caller's goroutine
//   - Executions are isolated: one context store and one registry scope per
//     run, never shared across runs
//   - The gate bounds concurrent executions; a held slot is released on
//     every exit path
//
// Error Handling:
//   - Agent faults (construction, execution, timeout, panic) surface inside
//     the returned WorkflowResult as step outcomes, never as Go errors
//   - Orchestrate returns a Go error only for rejected definitions and for
//     context cancellation while waiting on an execution slot
//
// Example Usage:
//
//	reg := registry.New()
//	_ = reg.Register(profilerSpec)
//
//	eng := engine.New(reg)
//	result, err := eng.Orchestrate(ctx, core.WorkflowDefinition{
//	    Name: "onboard-orders",
//	    Steps: []core.Step{
//	        {AgentName: "source_profiler", Method: "profile_source"},
//	    },
//	})
type Engine struct {
	// Collaborators - immutable after construction
	registry *registry.Registry // agent descriptors and handle resolution
	gate     *core.Gate         // bounds concurrent workflow executions
	auditLog core.AuditLog      // append-only execution trail
	logger   logging.Logger     // structured logging interface

	// Configuration - immutable after construction
	config Config

	// exec runs individual steps and owns fault normalization
	exec *stepExecutor
}

// New creates an Engine bound to the given agent registry.
//
// The registry is a required collaborator and is passed explicitly; the
// engine never consults process-global state. Options follow the functional
// options pattern with working in-memory defaults, so the zero-option form is
// suitable for tests and examples while production deployments override the
// audit sink and logger.
//
// The returned Engine is immediately ready for use and is safe for
// concurrent calls to Orchestrate and RunWorkflow.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:   DefaultConfig,
		AuditLog: audit.NewInMemoryLog(),
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		registry: reg,
		gate:     core.NewGate(opts.Config.MaxConcurrentWorkflows),
		auditLog: opts.AuditLog,
		logger:   opts.Logger,
		config:   opts.Config,
	}
	e.exec = &stepExecutor{
		auditLog: opts.AuditLog,
		logger:   opts.Logger,
		timeout:  opts.Config.StepTimeout,
	}

	return e
}

// workflowRun carries the per-execution state threaded through the step
// loop. Each run owns a fresh context store and registry scope; nothing here
// is ever shared across executions.
type workflowRun struct {
	id       string // correlation id, doubles as the audit reference
	store    *core.ContextStore
	scope    *registry.Scope
	outcomes []core.StepOutcome
}

// Orchestrate executes a workflow definition and returns its terminal result.
//
// This is the primary entrypoint. The execution proceeds in phases:
//
//  1. The definition is validated: non-empty name, at least one step, and
//     per-step agent/method shape. Steps that reference an already
//     registered agent are additionally checked against that agent's
//     declared capabilities, including input schema validation for typed
//     inputs. A violation returns (nil, *core.ProtocolValidationError) with
//     no correlation id assigned and no audit entries written.
//  2. A correlation id is assigned, a fresh context store is created, and
//     the pending state is recorded.
//  3. An execution slot is acquired from the gate. Context cancellation
//     while waiting returns the wrapped context error after recording the
//     pending -> aborted transition. A granted slot is released on every
//     exit path.
//  4. Steps run in declaration order. A failed step either aborts the run
//     (default) or is recorded and skipped (ContinueOnError). Successful
//     steps have their extra outputs merged into the context store before
//     the next step starts.
//  5. The terminal state is recorded and the result assembled: Completed
//     when every step succeeded, PartiallyCompleted on a full run with
//     mixed outcomes, Aborted on an early stop or when every attempted
//     step failed.
//
// Agent-level faults never surface as Go errors: a workflow that executed,
// however badly, returns (result, nil) with the failures embedded in the
// result's outcomes. The result's AuditRef is the correlation id under which
// the execution's full audit trail can be read back.
func (e *Engine) Orchestrate(ctx context.Context, def core.WorkflowDefinition) (*core.WorkflowResult, error) {
	if err := e.validateDefinition(def); err != nil {
		e.logger.Warn("engine.workflow.rejected", "workflow", def.Name, "error", err)
		return nil, err
	}

	run := &workflowRun{
		id:    core.NewID(),
		store: core.NewContextStore(),
		scope: e.registry.Scope(),
	}

	e.recordState(run.id, "", core.StatePending)

	if err := e.gate.Acquire(ctx); err != nil {
		e.recordState(run.id, core.StatePending, core.StateAborted)
		e.logger.Warn("engine.workflow.slot_denied", "workflow", def.Name, "workflow_id", run.id, "error", err)
		return nil, err
	}
	defer e.gate.Release()

	started := time.Now()
	e.recordState(run.id, core.StatePending, core.StateRunning)
	e.logger.Info("engine.workflow.start",
		"workflow", def.Name,
		"workflow_id", run.id,
		"steps", len(def.Steps),
		"continue_on_error", def.ContinueOnError,
	)

	stopped := false
	for i, step := range def.Steps {
		outcome, extras := e.exec.execute(ctx, run, i, step)
		run.outcomes = append(run.outcomes, outcome)

		if outcome.Failed() {
			if !def.ContinueOnError {
				stopped = true
				break
			}
			continue
		}

		e.mergeContext(run, extras)
	}

	state := terminalState(run.outcomes, stopped)
	e.recordState(run.id, core.StateRunning, state)

	dur := time.Since(started)
	result := &core.WorkflowResult{
		WorkflowName: def.Name,
		Status:       state.ResultStatus(),
		Outcomes:     run.outcomes,
		AuditRef:     run.id,
		Started:      started,
		Duration:     dur,
	}

	e.logger.Info("engine.workflow.executed",
		"workflow", def.Name,
		"workflow_id", run.id,
		"status", string(result.Status),
		"steps", len(run.outcomes),
		"failures", result.Failures(),
		"duration_ms", dur.Milliseconds(),
	)

	return result, nil
}

// RunWorkflow executes a workflow definition and returns the result as a
// loosely typed map with the keys status, workflow, outcomes, audit_ref and
// duration_ms.
//
// Deprecated: RunWorkflow adapts the legacy map-shaped entrypoint onto
// Orchestrate and contains no orchestration logic of its own. New callers
// should use Orchestrate, which returns the typed WorkflowResult.
func (e *Engine) RunWorkflow(ctx context.Context, def core.WorkflowDefinition) (map[string]any, error) {
	result, err := e.Orchestrate(ctx, def)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status":      string(result.Status),
		"workflow":    result.WorkflowName,
		"outcomes":    result.Outcomes,
		"audit_ref":   result.AuditRef,
		"duration_ms": result.Duration.Milliseconds(),
	}, nil
}

// Registry exposes the agent registry the engine resolves against.
//
// This accessor exists for introspection and for facades that register
// agents after constructing the engine. The registry is safe for concurrent
// use.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// AuditLog exposes the audit sink the engine records to, so callers can read
// an execution's trail back by its AuditRef.
func (e *Engine) AuditLog() core.AuditLog { return e.auditLog }

// Gate exposes the admission gate for observation. The in-flight count is a
// point-in-time reading and may be stale by the time it is acted on.
func (e *Engine) Gate() *core.Gate { return e.gate }

// validateDefinition enforces the workflow protocol before any execution
// state exists. Steps naming an unregistered agent pass shape validation
// here and fail later at resolution, as an initialization outcome of that
// step; a registered agent's declared contract is enforced up front.
func (e *Engine) validateDefinition(def core.WorkflowDefinition) error {
	if def.Name == "" {
		return &core.ProtocolValidationError{Field: "name", Message: "workflow name must not be empty"}
	}
	if len(def.Steps) == 0 {
		return &core.ProtocolValidationError{Workflow: def.Name, Field: "steps", Message: "workflow must declare at least one step"}
	}

	for i, step := range def.Steps {
		if step.AgentName == "" {
			return &core.ProtocolValidationError{
				Workflow: def.Name,
				Field:    fmt.Sprintf("steps[%d].agent", i),
				Message:  "agent name must not be empty",
			}
		}
		if step.Method == "" {
			return &core.ProtocolValidationError{
				Workflow: def.Name,
				Field:    fmt.Sprintf("steps[%d].method", i),
				Message:  "method must not be empty",
			}
		}

		spec, ok := e.registry.Spec(step.AgentName)
		if !ok {
			continue
		}

		c, ok := spec.Capability(step.Method)
		if !ok {
			return &core.ProtocolValidationError{
				Workflow: def.Name,
				Field:    fmt.Sprintf("steps[%d].method", i),
				Message:  fmt.Sprintf("agent %q does not declare method %q", step.AgentName, step.Method),
			}
		}

		if c.InputSchema == nil {
			continue
		}
		if fields, typed := typedFields(step.Input); typed {
			if err := util.ValidateParameters(fields, c.InputSchema); err != nil {
				return &core.ProtocolValidationError{
					Workflow: def.Name,
					Field:    fmt.Sprintf("steps[%d].input", i),
					Message:  err.Error(),
				}
			}
		}
	}

	return nil
}

// mergeContext merges a successful step's extra outputs into the run's
// context store and records the merged keys in the audit trail.
func (e *Engine) mergeContext(run *workflowRun, extras map[string]any) {
	if len(extras) == 0 {
		return
	}

	run.store.Merge(extras)

	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.appendAudit(core.NewAuditEntry(run.id, core.AuditContextMerge, map[string]any{"keys": keys}))
	e.logger.Debug("engine.context.merge", "workflow_id", run.id, "keys", keys)
}

// recordState appends a workflow.state transition entry. Terminal states also
// carry the caller-facing status they map to.
func (e *Engine) recordState(workflowID string, from, to core.WorkflowState) {
	detail := map[string]any{"to": string(to)}
	if from != "" {
		detail["from"] = string(from)
	}
	if to.Terminal() {
		detail["status"] = string(to.ResultStatus())
	}
	e.appendAudit(core.NewAuditEntry(workflowID, core.AuditWorkflowState, detail))
}

func (e *Engine) appendAudit(entry core.AuditEntry) {
	if err := e.auditLog.Append(entry); err != nil {
		e.logger.Warn("engine.audit.append_failed", "workflow_id", entry.WorkflowID, "kind", string(entry.Kind), "error", err)
	}
}

// terminalState maps a finished step loop onto the workflow state machine.
// stopped means the loop broke early under the abort-on-error policy.
func terminalState(outcomes []core.StepOutcome, stopped bool) core.WorkflowState {
	failures := 0
	for _, o := range outcomes {
		if o.Failed() {
			failures++
		}
	}

	switch {
	case failures == 0:
		return core.StateCompleted
	case stopped || failures == len(outcomes):
		return core.StateAborted
	default:
		return core.StatePartiallyCompleted
	}
}

// typedFields extracts the field map from a typed input. Opaque inputs
// return false and bypass schema validation.
func typedFields(in core.Input) (map[string]any, bool) {
	switch v := in.(type) {
	case core.TypedInput:
		return v.Fields, true
	case *core.TypedInput:
		return v.Fields, true
	default:
		return nil, false
	}
}
