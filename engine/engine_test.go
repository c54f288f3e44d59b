package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/internal/testutil"
	"github.com/stratomesh/stratomesh/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// stubAgent is a field-driven core.Agent for engine tests. Behavior is
// selected via fields; the invoke closure overrides everything else.
type stubAgent struct {
	name     string
	caps     []core.Capability
	delay    time.Duration
	result   *core.AgentResult
	err      error
	panicMsg any
	safe     bool
	invoke   func(ctx context.Context, method string, input map[string]any, snapshot map[string]any) (*core.AgentResult, error)
	calls    atomic.Int32
}

func newStub(name string, methods ...string) *stubAgent {
	caps := make([]core.Capability, 0, len(methods))
	for _, m := range methods {
		caps = append(caps, core.Capability{Method: m, Description: "stub method"})
	}
	return &stubAgent{name: name, caps: caps}
}

func (a *stubAgent) Name() string                    { return a.name }
func (a *stubAgent) Capabilities() []core.Capability { return a.caps }
func (a *stubAgent) SafeForConcurrentUse() bool      { return a.safe }

func (a *stubAgent) Invoke(ctx context.Context, method string, input map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
	a.calls.Add(1)
	if a.invoke != nil {
		return a.invoke(ctx, method, input, snapshot)
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.panicMsg != nil {
		panic(a.panicMsg)
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.result != nil {
		return a.result, nil
	}
	return &core.AgentResult{Output: a.name + "." + method}, nil
}

func registerStub(t *testing.T, reg *registry.Registry, a *stubAgent) {
	t.Helper()
	b := testutil.NewSpecBuilder(a.name).Agent(a)
	for _, c := range a.caps {
		b.SchemaCapability(c.Method, c.Description, c.InputSchema)
	}
	if err := reg.Register(b.Build()); err != nil {
		t.Fatalf("register %s: %v", a.name, err)
	}
}

func kinds(entries []core.AuditEntry) []core.AuditKind {
	out := make([]core.AuditKind, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Kind)
	}
	return out
}

// -------------------- Lifecycle Tests --------------------

func TestOrchestrate_AllStepsSucceed(t *testing.T) {
	reg := registry.New()
	registerStub(t, reg, newStub("profiler", "profile_source"))
	registerStub(t, reg, newStub("drafter", "draft_contract"))
	registerStub(t, reg, newStub("auditor", "audit_quality"))

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("onboard-orders").
		Step("profiler", "profile_source").
		Step("drafter", "draft_contract").
		Step("auditor", "audit_quality").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, "onboard-orders", result.WorkflowName)
	assert.NotEmpty(t, result.AuditRef)
	assert.Len(t, result.Outcomes, 3)
	for i, o := range result.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, core.StepOK, o.Status)
		assert.Nil(t, o.Error)
	}
	assert.Equal(t, "profiler.profile_source", result.Outcomes[0].Output)
}

func TestOrchestrate_AbortOnFirstFailure(t *testing.T) {
	reg := registry.New()
	registerStub(t, reg, newStub("ok", "run"))
	failing := newStub("bad", "run")
	failing.err = errors.New("downstream unreachable")
	registerStub(t, reg, failing)
	never := newStub("never", "run")
	registerStub(t, reg, never)

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("abort-run").
		Step("ok", "run").
		Step("bad", "run").
		Step("never", "run").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusError, result.Status)
	assert.Len(t, result.Outcomes, 2, "steps after the failure must not be attempted")
	assert.Equal(t, core.StepOK, result.Outcomes[0].Status)
	assert.Equal(t, core.StepError, result.Outcomes[1].Status)
	assert.Equal(t, core.ErrKindAgentExecution, result.Outcomes[1].Error.Kind)
	assert.Equal(t, int32(0), never.calls.Load())
}

func TestOrchestrate_ContinueOnError(t *testing.T) {
	reg := registry.New()
	registerStub(t, reg, newStub("ok", "run"))
	failing := newStub("bad", "run")
	failing.err = errors.New("downstream unreachable")
	registerStub(t, reg, failing)
	last := newStub("last", "run")
	registerStub(t, reg, last)

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("tolerant-run").
		ContinueOnError().
		Step("ok", "run").
		Step("bad", "run").
		Step("last", "run").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusPartialSuccess, result.Status)
	assert.Len(t, result.Outcomes, 3)
	assert.Equal(t, core.StepOK, result.Outcomes[0].Status)
	assert.Equal(t, core.StepError, result.Outcomes[1].Status)
	assert.Equal(t, core.StepOK, result.Outcomes[2].Status)
	assert.Equal(t, int32(1), last.calls.Load())
}

func TestOrchestrate_AllStepsFailedIsError(t *testing.T) {
	reg := registry.New()
	for _, name := range []string{"a", "b"} {
		failing := newStub(name, "run")
		failing.err = errors.New("boom")
		registerStub(t, reg, failing)
	}

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("doomed-run").
		ContinueOnError().
		Step("a", "run").
		Step("b", "run").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusError, result.Status, "a full run with zero successes is not a partial success")
	assert.Len(t, result.Outcomes, 2)
}

// -------------------- Context Propagation Tests --------------------

func TestOrchestrate_ContextPropagation(t *testing.T) {
	reg := registry.New()

	drafter := newStub("drafter", "draft_contract")
	drafter.invoke = func(_ context.Context, _ string, _ map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
		assert.NotContains(t, snapshot, core.ContractKey, "first step must see an empty context")
		return &core.AgentResult{
			Output: "drafted",
			Extras: map[string]any{core.ContractKey: map[string]any{"version": "1.0.0"}},
		}, nil
	}
	registerStub(t, reg, drafter)

	var seen any
	auditor := newStub("auditor", "audit_quality")
	auditor.invoke = func(_ context.Context, _ string, _ map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
		seen = snapshot[core.ContractKey]
		return &core.AgentResult{Output: "audited"}, nil
	}
	registerStub(t, reg, auditor)

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("contract-flow").
		Step("drafter", "draft_contract").
		Step("auditor", "audit_quality").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, map[string]any{"version": "1.0.0"}, seen, "drafted contract must reach the next step's snapshot")

	entries, _ := eng.AuditLog().Entries(result.AuditRef)
	var mergeKeys any
	for _, e := range entries {
		if e.Kind == core.AuditContextMerge {
			mergeKeys = e.Detail["keys"]
		}
	}
	assert.Equal(t, []string{core.ContractKey}, mergeKeys)
}

func TestOrchestrate_SnapshotMutationDoesNotLeak(t *testing.T) {
	reg := registry.New()

	tamper := newStub("tamper", "run")
	tamper.invoke = func(_ context.Context, _ string, _ map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
		snapshot["hacked"] = true
		return &core.AgentResult{}, nil
	}
	registerStub(t, reg, tamper)

	watcher := newStub("watcher", "run")
	watcher.invoke = func(_ context.Context, _ string, _ map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
		assert.NotContains(t, snapshot, "hacked", "snapshot mutation must stay inside the step")
		return &core.AgentResult{}, nil
	}
	registerStub(t, reg, watcher)

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("isolation-run").
		Step("tamper", "run").
		Step("watcher", "run").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)
	assert.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, int32(1), watcher.calls.Load())
}

// -------------------- Validation Tests --------------------

func TestOrchestrate_RejectsInvalidDefinitions(t *testing.T) {
	reg := registry.New()
	registerStub(t, reg, newStub("profiler", "profile_source"))

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{"type": "string"},
		},
		"required": []string{"source"},
	}
	strict := newStub("strict", "ingest")
	strict.caps = []core.Capability{{Method: "ingest", Description: "typed ingestion", InputSchema: schema}}
	registerStub(t, reg, strict)

	eng := New(reg)

	tests := []struct {
		name  string
		def   core.WorkflowDefinition
		field string
	}{
		{
			name:  "empty workflow name",
			def:   testutil.NewDefinitionBuilder("").Step("profiler", "profile_source").Build(),
			field: "name",
		},
		{
			name:  "no steps",
			def:   testutil.NewDefinitionBuilder("empty").Build(),
			field: "steps",
		},
		{
			name:  "empty agent name",
			def:   testutil.NewDefinitionBuilder("wf").Step("", "run").Build(),
			field: "steps[0].agent",
		},
		{
			name:  "empty method",
			def:   testutil.NewDefinitionBuilder("wf").Step("profiler", "").Build(),
			field: "steps[0].method",
		},
		{
			name:  "undeclared method on registered agent",
			def:   testutil.NewDefinitionBuilder("wf").Step("profiler", "no_such_method").Build(),
			field: "steps[0].method",
		},
		{
			name:  "typed input missing required field",
			def:   testutil.NewDefinitionBuilder("wf").TypedStep("strict", "ingest", map[string]any{}).Build(),
			field: "steps[0].input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Orchestrate(context.Background(), tt.def)

			assert.Nil(t, result)
			var protoErr *core.ProtocolValidationError
			if assert.ErrorAs(t, err, &protoErr) {
				assert.Equal(t, tt.field, protoErr.Field)
			}
		})
	}

	// rejected definitions never open an audit stream
	all, _ := eng.AuditLog().All()
	assert.Empty(t, all)
}

func TestOrchestrate_OpaqueInputBypassesSchema(t *testing.T) {
	reg := registry.New()

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{"type": "string"},
		},
		"required": []string{"source"},
	}
	strict := newStub("strict", "ingest")
	strict.caps = []core.Capability{{Method: "ingest", Description: "typed ingestion", InputSchema: schema}}
	registerStub(t, reg, strict)

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("wf").OpaqueStep("strict", "ingest", map[string]any{}).Build()

	result, err := eng.Orchestrate(context.Background(), def)
	assert.NoError(t, err, "opaque inputs are the caller's responsibility")
	assert.Equal(t, core.StatusSuccess, result.Status)
}

func TestOrchestrate_UnregisteredAgentFailsAtResolution(t *testing.T) {
	reg := registry.New()
	eng := New(reg)

	def := testutil.NewDefinitionBuilder("wf").Step("ghost", "run").Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err, "an unregistered agent is a collaborator fault, not a protocol violation")
	assert.Equal(t, core.StatusError, result.Status)
	assert.Len(t, result.Outcomes, 1)
	assert.Equal(t, core.ErrKindAgentInitialization, result.Outcomes[0].Error.Kind)
}

// -------------------- Concurrency Tests --------------------

func TestOrchestrate_BoundsConcurrentWorkflows(t *testing.T) {
	reg := registry.New()

	var cur, peak atomic.Int32
	worker := newStub("worker", "run")
	worker.safe = true
	worker.invoke = func(ctx context.Context, _ string, _ map[string]any, _ map[string]any) (*core.AgentResult, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return &core.AgentResult{}, nil
	}
	registerStub(t, reg, worker)

	eng := New(reg, func(o *Options) { o.Config.MaxConcurrentWorkflows = 2 })
	def := testutil.NewDefinitionBuilder("bounded").Step("worker", "run").Build()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := eng.Orchestrate(context.Background(), def)
			if err != nil || result.Status != core.StatusSuccess {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failures.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2), "no more than the configured slots may execute at once")
	assert.Equal(t, int64(0), eng.Gate().InFlight())
}

func TestOrchestrate_SlotWaitHonorsCancellation(t *testing.T) {
	reg := registry.New()

	release := make(chan struct{})
	blocker := newStub("blocker", "run")
	blocker.safe = true
	blocker.invoke = func(ctx context.Context, _ string, _ map[string]any, _ map[string]any) (*core.AgentResult, error) {
		<-release
		return &core.AgentResult{}, nil
	}
	registerStub(t, reg, blocker)

	eng := New(reg, func(o *Options) { o.Config.MaxConcurrentWorkflows = 1 })
	def := testutil.NewDefinitionBuilder("held").Step("blocker", "run").Build()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Orchestrate(context.Background(), def)
	}()

	// wait until the first run holds the only slot
	for i := 0; i < 100 && eng.Gate().InFlight() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, int64(1), eng.Gate().InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result, err := eng.Orchestrate(ctx, def)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	assert.Equal(t, int64(0), eng.Gate().InFlight())

	// the denied run still left its pending -> aborted trace
	all, _ := eng.AuditLog().All()
	denied := false
	for _, e := range all {
		if e.Kind == core.AuditWorkflowState && e.Detail["from"] == string(core.StatePending) && e.Detail["to"] == string(core.StateAborted) {
			denied = true
		}
	}
	assert.True(t, denied)
}

func TestOrchestrate_SlotReleasedAfterFailure(t *testing.T) {
	reg := registry.New()
	failing := newStub("bad", "run")
	failing.err = errors.New("boom")
	registerStub(t, reg, failing)
	panicking := newStub("explosive", "run")
	panicking.panicMsg = "kaboom"
	registerStub(t, reg, panicking)

	eng := New(reg, func(o *Options) { o.Config.MaxConcurrentWorkflows = 1 })

	for _, agent := range []string{"bad", "explosive"} {
		def := testutil.NewDefinitionBuilder("failing-run").Step(agent, "run").Build()
		result, err := eng.Orchestrate(context.Background(), def)
		assert.NoError(t, err)
		assert.Equal(t, core.StatusError, result.Status)
		assert.Equal(t, int64(0), eng.Gate().InFlight(), "slot must be released after %s", agent)
	}
}

// -------------------- Fault Normalization Tests --------------------

func TestOrchestrate_StepTimeoutBecomesOutcome(t *testing.T) {
	reg := registry.New()
	slow := newStub("slow", "run")
	slow.delay = 500 * time.Millisecond
	registerStub(t, reg, slow)

	eng := New(reg, func(o *Options) { o.Config.StepTimeout = 30 * time.Millisecond })
	def := testutil.NewDefinitionBuilder("slow-run").Step("slow", "run").Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusError, result.Status)
	assert.Equal(t, core.ErrKindAgentExecution, result.Outcomes[0].Error.Kind)
	assert.Contains(t, result.Outcomes[0].Error.Message, "timed out")
}

func TestOrchestrate_PanicBecomesOutcome(t *testing.T) {
	reg := registry.New()
	panicking := newStub("explosive", "run")
	panicking.panicMsg = "kaboom"
	registerStub(t, reg, panicking)

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("panic-run").Step("explosive", "run").Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err, "a panicking agent must not crash the engine")
	assert.Equal(t, core.StatusError, result.Status)
	assert.Equal(t, core.ErrKindAgentExecution, result.Outcomes[0].Error.Kind)
	assert.Contains(t, result.Outcomes[0].Error.Message, "panic recovered")
	assert.Contains(t, result.Outcomes[0].Error.Message, "kaboom")
}

// -------------------- Audit Trail Tests --------------------

func TestOrchestrate_AuditTrailOfAbortedRun(t *testing.T) {
	reg := registry.New()
	registerStub(t, reg, newStub("profiler", "profile_source"))
	failing := newStub("drafter", "draft_contract")
	failing.err = errors.New("schema inference failed")
	registerStub(t, reg, failing)
	registerStub(t, reg, newStub("auditor", "audit_quality"))

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("onboard-orders").
		Step("profiler", "profile_source").
		Step("drafter", "draft_contract").
		Step("auditor", "audit_quality").
		Build()

	result, err := eng.Orchestrate(context.Background(), def)
	assert.NoError(t, err)
	assert.Equal(t, core.StatusError, result.Status)

	entries, err := eng.AuditLog().Entries(result.AuditRef)
	assert.NoError(t, err)

	assert.Equal(t, []core.AuditKind{
		core.AuditWorkflowState, // -> pending
		core.AuditWorkflowState, // pending -> running
		core.AuditStepStart,     // step 0
		core.AuditStepEnd,       // step 0 ok
		core.AuditStepStart,     // step 1
		core.AuditStepEnd,       // step 1 failed, end entry still emitted
		core.AuditWorkflowState, // running -> aborted
	}, kinds(entries))

	starts, ends := 0, 0
	for _, e := range entries {
		switch e.Kind {
		case core.AuditStepStart:
			starts++
		case core.AuditStepEnd:
			ends++
		}
	}
	assert.Equal(t, 2, starts, "the third step never starts")
	assert.Equal(t, 2, ends, "the aborting step still gets its end entry")

	last := entries[len(entries)-1]
	assert.Equal(t, string(core.StateAborted), last.Detail["to"])
	assert.Equal(t, string(core.StatusError), last.Detail["status"])
}

// -------------------- Legacy Adapter Tests --------------------

func TestRunWorkflow_AdaptsTypedResult(t *testing.T) {
	reg := registry.New()
	registerStub(t, reg, newStub("profiler", "profile_source"))

	eng := New(reg)
	def := testutil.NewDefinitionBuilder("legacy-run").Step("profiler", "profile_source").Build()

	out, err := eng.RunWorkflow(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, string(core.StatusSuccess), out["status"])
	assert.Equal(t, "legacy-run", out["workflow"])
	assert.NotEmpty(t, out["audit_ref"])
	assert.IsType(t, int64(0), out["duration_ms"])

	outcomes, ok := out["outcomes"].([]core.StepOutcome)
	assert.True(t, ok)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, core.StepOK, outcomes[0].Status)
}

func TestRunWorkflow_PropagatesValidationError(t *testing.T) {
	reg := registry.New()
	eng := New(reg)

	out, err := eng.RunWorkflow(context.Background(), testutil.NewDefinitionBuilder("").Build())

	assert.Nil(t, out)
	var protoErr *core.ProtocolValidationError
	assert.ErrorAs(t, err, &protoErr)
}

// -------------------- Audit Sink Tests --------------------

// MockAuditLog for testing engine behavior under a failing audit sink.
type MockAuditLog struct {
	mock.Mock
}

var _ core.AuditLog = (*MockAuditLog)(nil)

func (m *MockAuditLog) Append(entry core.AuditEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockAuditLog) Entries(workflowID string) ([]core.AuditEntry, error) {
	args := m.Called(workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.AuditEntry), args.Error(1)
}

func (m *MockAuditLog) All() ([]core.AuditEntry, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.AuditEntry), args.Error(1)
}

func TestOrchestrate_AuditAppendFailureDoesNotFailWorkflow(t *testing.T) {
	log := &MockAuditLog{}
	log.On("Append", mock.Anything).Return(errors.New("sink unavailable"))

	reg := registry.New()
	registerStub(t, reg, newStub("profiler", "profile_source"))

	eng := New(reg, func(o *Options) { o.AuditLog = log })
	def := testutil.NewDefinitionBuilder("lossy-run").Step("profiler", "profile_source").Build()

	result, err := eng.Orchestrate(context.Background(), def)

	assert.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, core.StepOK, result.Outcomes[0].Status)
	log.AssertExpectations(t)
	log.AssertNumberOfCalls(t, "Append", 5)
}
