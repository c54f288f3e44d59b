// Package engine implements the workflow orchestration layer for StratoMesh.
//
// The Engine is the single code path on which every workflow in the platform
// runs. It takes declarative workflow definitions, validates them against the
// registered agent capability contracts, and drives their steps in order
// through registry-resolved agents while recording a complete audit trail of
// the execution.
//
// # Core Responsibilities
//
// Protocol Validation:
//   - Structural checks on the definition (name, steps, agent/method shape)
//   - Capability checks for steps targeting registered agents
//   - Input schema validation for typed step inputs
//   - Rejected definitions produce no execution state at all
//
// Lifecycle Management:
//   - Pending -> Running -> {Completed, PartiallyCompleted, Aborted}
//   - Every transition recorded as a workflow.state audit entry
//   - Terminal state derived from the outcome set and the failure policy
//
// Step Execution:
//   - Declaration-order sequencing, one step at a time
//   - Abort-on-error by default; ContinueOnError records and moves on
//   - Matched step.start / step.end audit boundaries for every attempt
//   - Panic recovery, optional per-step timeouts, fault normalization
//
// Context Propagation:
//   - Per-execution context store seeded empty
//   - Successful steps merge their extra outputs before the next step runs
//   - Each step receives an isolated snapshot, never the live store
//
// Admission Control:
//   - Counting gate bounds concurrent executions
//   - Slot held for the full step loop, released on every exit path
//
// # Architecture
//
// The engine sits between the caller-facing entrypoints and the services
// that carry execution state:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                    Client Layer                         │
//	├─────────────────────────────────────────────────────────┤
//	│                  Engine Interface                       │
//	│  ┌──────────────┐ ┌──────────────┐ ┌───────────────┐   │
//	│  │ Orchestrate  │ │ RunWorkflow  │ │  Validation   │   │
//	│  └──────────────┘ └──────────────┘ └───────────────┘   │
//	├─────────────────────────────────────────────────────────┤
//	│                 Orchestration Layer                     │
//	│  ┌──────────────┐ ┌──────────────┐ ┌───────────────┐   │
//	│  │    Step      │ │  Admission   │ │   Context     │   │
//	│  │  Executor    │ │    Gate      │ │  Propagation  │   │
//	│  └──────────────┘ └──────────────┘ └───────────────┘   │
//	├─────────────────────────────────────────────────────────┤
//	│                   Service Layer                         │
//	│  ┌──────────────┐ ┌──────────────┐ ┌───────────────┐   │
//	│  │    Agent     │ │    Audit     │ │   Context     │   │
//	│  │   Registry   │ │     Log      │ │    Store      │   │
//	│  └──────────────┘ └──────────────┘ └───────────────┘   │
//	└─────────────────────────────────────────────────────────┘
//
// # Error Handling
//
// The engine divides faults into three tiers:
//
//   - Protocol errors: returned directly from Orchestrate as
//     *core.ProtocolValidationError before any execution state exists
//   - Collaborator faults: agent construction failures, execution errors,
//     timeouts and panics are normalized into step outcomes inside the
//     returned result; the workflow itself still returns (result, nil)
//   - Core faults: gate accounting corruption panics, since continuing with
//     a broken admission invariant would be worse than stopping
//
// # Usage
//
// Basic setup and execution:
//
//	reg := registry.New()
//	_ = reg.Register(profilerSpec)
//
//	eng := engine.New(reg,
//	    func(o *engine.Options) { o.Logger = logger },
//	)
//
//	result, err := eng.Orchestrate(ctx, core.WorkflowDefinition{
//	    Name: "onboard-orders",
//	    Steps: []core.Step{
//	        {AgentName: "source_profiler", Method: "profile_source"},
//	        {AgentName: "contract_drafter", Method: "draft_contract"},
//	    },
//	})
//	if err != nil {
//	    return err // definition rejected or slot wait cancelled
//	}
//	for _, o := range result.Outcomes {
//	    // inspect per-step status, output, and normalized errors
//	}
//
// Reading the audit trail back:
//
//	entries, _ := eng.AuditLog().Entries(result.AuditRef)
//
// The engine handles the complexity of bounded concurrent execution while
// keeping deterministic step ordering, complete audit coverage and strict
// fault isolation between workflows.
package engine
