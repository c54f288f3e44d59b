package dataproduct

import (
	"context"

	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/engine"
	"github.com/stratomesh/stratomesh/logging"
)

// Artifact ids written by a successful onboarding run.
const (
	ContractArtifact   = "contract.yaml"
	AssessmentArtifact = "assessment.yaml"
)

// Request describes one data product to onboard.
type Request struct {
	// Name of the data product; also names the workflow run.
	Name string

	// Source locator of the backing system, e.g. pg://warehouse/orders.
	Source string

	// Owner is the stewarding team. Optional, but the auditor flags its
	// absence.
	Owner string

	// Domain is the business domain of the product. Optional.
	Domain string

	// Columns declares the expected layout as name or name:type entries.
	// Optional; without it the drafted contract carries no schema.
	Columns []string

	// ContinueOnError selects the engine's error policy for the run.
	ContinueOnError bool
}

// Report is the caller-facing summary of one onboarding run.
type Report struct {
	Success   bool                `json:"success"`
	Status    core.WorkflowStatus `json:"status"`
	Steps     []core.StepOutcome  `json:"steps"`
	Artifacts []string            `json:"artifacts,omitempty"`
	AuditRef  string              `json:"audit_ref"`
}

// NewOnboardingWorkflow builds the three-step onboarding definition for req:
// profile the source, draft the contract, audit the draft. The profile and
// draft steps carry typed inputs so the definition is validated against the
// agents' declared schemas before any step runs.
func NewOnboardingWorkflow(req Request) core.WorkflowDefinition {
	profileFields := map[string]any{"source": req.Source}
	if len(req.Columns) > 0 {
		columns := make([]any, 0, len(req.Columns))
		for _, c := range req.Columns {
			columns = append(columns, c)
		}
		profileFields["columns"] = columns
	}

	draftFields := map[string]any{"product": req.Name}
	if req.Owner != "" {
		draftFields["owner"] = req.Owner
	}
	if req.Domain != "" {
		draftFields["domain"] = req.Domain
	}

	return core.WorkflowDefinition{
		Name:            "onboard-" + req.Name,
		ContinueOnError: req.ContinueOnError,
		Steps: []core.Step{
			{AgentName: ProfilerAgent, Method: MethodProfileSource, Input: core.TypedInput{Fields: profileFields}},
			{AgentName: DrafterAgent, Method: MethodDraftContract, Input: core.TypedInput{Fields: draftFields}},
			{AgentName: AuditorAgent, Method: MethodAuditQuality},
		},
	}
}

// Options configures an Onboarder.
type Options struct {
	// Logger receives onboarding activity. Defaults to NoOp.
	Logger logging.Logger
}

// Onboarder drives the onboarding composite against an engine and records
// the drafted contract and quality assessment as workflow artifacts. The
// onboarding agents must be registered first (see RegisterAgents).
type Onboarder struct {
	engine    *engine.Engine
	artifacts core.ArtifactStore
	logger    logging.Logger
}

// NewOnboarder wires the composite against eng, storing derived artifacts
// in store. A nil store disables artifact writes.
func NewOnboarder(eng *engine.Engine, store core.ArtifactStore, optFns ...func(o *Options)) *Onboarder {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Onboarder{engine: eng, artifacts: store, logger: opts.Logger}
}

// Onboard runs the onboarding workflow for req and summarizes the run. Like
// the engine itself it returns an error only when the request is rejected
// before any step runs; failed runs come back as a Report with Success
// false and the failure recorded in Steps.
func (o *Onboarder) Onboard(ctx context.Context, req Request) (*Report, error) {
	if req.Name == "" {
		return nil, &core.ProtocolValidationError{Workflow: "onboard", Field: "name", Message: "data product name must not be empty"}
	}
	if req.Source == "" {
		return nil, &core.ProtocolValidationError{Workflow: "onboard-" + req.Name, Field: "source", Message: "source locator must not be empty"}
	}

	result, err := o.engine.Orchestrate(ctx, NewOnboardingWorkflow(req))
	if err != nil {
		return nil, err
	}

	report := &Report{
		Success:  result.Status == core.StatusSuccess,
		Status:   result.Status,
		Steps:    result.Outcomes,
		AuditRef: result.AuditRef,
	}
	o.saveArtifacts(report)

	o.logger.Info("dataproduct.onboard.executed",
		"product", req.Name,
		"status", string(report.Status),
		"artifacts", len(report.Artifacts),
		"audit_ref", report.AuditRef,
	)

	return report, nil
}

// saveArtifacts persists the contract and assessment produced by the run.
// Artifact writes are best-effort: a failing store is logged and leaves the
// report without that artifact, it does not fail an already completed run.
func (o *Onboarder) saveArtifacts(report *Report) {
	if o.artifacts == nil {
		return
	}

	for _, outcome := range report.Steps {
		if outcome.Failed() {
			continue
		}
		switch outcome.Method {
		case MethodDraftContract:
			if contract, ok := outcome.Output.(Contract); ok {
				o.save(report, ContractArtifact, contract.YAML)
			}
		case MethodAuditQuality:
			if assessment, ok := outcome.Output.(Assessment); ok {
				o.save(report, AssessmentArtifact, assessment.YAML)
			}
		}
	}
}

func (o *Onboarder) save(report *Report, artifactID string, marshal func() ([]byte, error)) {
	data, err := marshal()
	if err != nil {
		o.logger.Error("dataproduct.artifact.marshal_failed", "artifact", artifactID, "error", err)
		return
	}
	if err := o.artifacts.Save(report.AuditRef, artifactID, data); err != nil {
		o.logger.Error("dataproduct.artifact.save_failed", "artifact", artifactID, "error", err)
		return
	}
	report.Artifacts = append(report.Artifacts, artifactID)
}
