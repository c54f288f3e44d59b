package stratomesh

import (
	"context"
	"testing"

	"github.com/stratomesh/stratomesh/agent"
	"github.com/stratomesh/stratomesh/audit"
	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/dataproduct"
	"github.com/stratomesh/stratomesh/registry"
	"github.com/stretchr/testify/assert"
)

func echoSpec() core.AgentSpec {
	echo := agent.NewFuncAgent("echo").Handle(core.Capability{
		Method:      "say",
		Description: "Repeats the given text.",
	}, func(_ context.Context, input map[string]any, _ map[string]any) (*core.AgentResult, error) {
		return &core.AgentResult{Output: map[string]any{"said": input["text"]}}, nil
	})

	return echo.Spec(nil)
}

// -------------------- Construction Tests --------------------

func TestNew_RegistersBuiltinAgents(t *testing.T) {
	m := New()

	names := m.Registry().Names()
	assert.Equal(t, []string{
		dataproduct.DrafterAgent,
		dataproduct.AuditorAgent,
		dataproduct.ProfilerAgent,
	}, names)
}

func TestNew_SkipBuiltinAgents(t *testing.T) {
	m := New(func(o *Options) {
		o.SkipBuiltinAgents = true
	})

	assert.Empty(t, m.Registry().Names())
}

func TestNew_AcceptsExternalRegistry(t *testing.T) {
	reg := registry.New()

	m := New(func(o *Options) {
		o.Registry = reg
		o.SkipBuiltinAgents = true
	})

	assert.Same(t, reg, m.Registry())
}

func TestNew_SharesAuditLogAcrossServices(t *testing.T) {
	log := audit.NewInMemoryLog()

	m := New(func(o *Options) {
		o.AuditLog = log
		o.SkipBuiltinAgents = true
	})
	assert.NoError(t, m.RegisterAgent(echoSpec()))

	entries, err := log.All()
	assert.NoError(t, err)
	assert.Len(t, entries, 1, "registration must reach the shared audit log")
	assert.Equal(t, core.AuditAgentRegistered, entries[0].Kind)
	assert.Empty(t, entries[0].WorkflowID)
}

// -------------------- Entrypoint Tests --------------------

func TestOrchestrate_RunsRegisteredAgent(t *testing.T) {
	m := New(func(o *Options) {
		o.SkipBuiltinAgents = true
	})
	assert.NoError(t, m.RegisterAgent(echoSpec()))

	result, err := m.Orchestrate(context.Background(), core.WorkflowDefinition{
		Name: "echo-flow",
		Steps: []core.Step{
			{AgentName: "echo", Method: "say", Input: core.OpaqueInput{Fields: map[string]any{"text": "hello"}}},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Len(t, result.Outcomes, 1)
	assert.Equal(t, "hello", result.Outcomes[0].Output.(map[string]any)["said"])
	assert.NotEmpty(t, result.AuditRef)

	entries, err := m.AuditLog().Entries(result.AuditRef)
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRunWorkflow_LegacyShape(t *testing.T) {
	m := New(func(o *Options) {
		o.SkipBuiltinAgents = true
	})
	assert.NoError(t, m.RegisterAgent(echoSpec()))

	out, err := m.RunWorkflow(context.Background(), core.WorkflowDefinition{
		Name: "echo-flow",
		Steps: []core.Step{
			{AgentName: "echo", Method: "say", Input: core.OpaqueInput{Fields: map[string]any{"text": "hello"}}},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, string(core.StatusSuccess), out["status"])
	assert.Equal(t, "echo-flow", out["workflow"])
	assert.NotEmpty(t, out["audit_ref"])
}

func TestOnboardDataProduct_PersistsArtifacts(t *testing.T) {
	m := New()

	report, err := m.OnboardDataProduct(context.Background(), dataproduct.Request{
		Name:    "orders",
		Source:  "pg://warehouse/orders",
		Owner:   "data-platform",
		Columns: []string{"id:integer", "amount:number"},
	})

	assert.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{dataproduct.ContractArtifact, dataproduct.AssessmentArtifact}, report.Artifacts)

	data, err := m.Artifacts().Get(report.AuditRef, dataproduct.ContractArtifact)
	assert.NoError(t, err)
	assert.NotEmpty(t, data)
}
