package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/logging"
)

// stepExecutor runs single steps on behalf of the engine and owns the
// contract that no agent fault ever escapes as a Go error: resolution
// failures, returned errors, timeouts and panics all normalize into the
// step's outcome.
//
// Every attempted step leaves a matched step.start / step.end pair in the
// audit trail, failing steps included.
type stepExecutor struct {
	auditLog core.AuditLog
	logger   logging.Logger
	timeout  time.Duration // per-call ceiling, zero disables
}

// execute runs one step and returns its outcome together with the extra
// outputs of a successful call, which the engine merges into the run's
// context store.
func (x *stepExecutor) execute(ctx context.Context, run *workflowRun, idx int, step core.Step) (core.StepOutcome, map[string]any) {
	start := time.Now()

	x.appendAudit(core.NewAuditEntry(run.id, core.AuditStepStart, map[string]any{
		"step":   idx,
		"agent":  step.AgentName,
		"method": step.Method,
	}))
	x.logger.Debug("engine.step.start", "workflow_id", run.id, "step", idx, "agent", step.AgentName, "method", step.Method)

	agent, err := run.scope.Resolve(step.AgentName)
	if err != nil {
		return x.failure(run, idx, step, err, time.Since(start)), nil
	}

	callCtx := ctx
	if x.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	var result *core.AgentResult
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				x.logger.Error("engine.step.panic", "workflow_id", run.id, "agent", step.AgentName, "method", step.Method, "recover", r)
			}
		}()
		result, err = agent.Invoke(callCtx, step.Method, core.InputValues(step.Input), run.store.Snapshot())
	}()
	dur := time.Since(start)

	if err != nil {
		// Relabel an expired per-step deadline so the outcome names the
		// configured ceiling rather than a bare context error. A cancelled
		// parent context is the caller's doing and passes through untouched.
		if x.timeout > 0 && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = &core.AgentExecutionError{
				Agent:   step.AgentName,
				Method:  step.Method,
				Message: fmt.Sprintf("step timed out after %s", x.timeout),
				Err:     err,
			}
		}
		return x.failure(run, idx, step, err, dur), nil
	}

	if result == nil {
		result = &core.AgentResult{}
	}

	outcome := core.StepOutcome{
		Index:     idx,
		AgentName: step.AgentName,
		Method:    step.Method,
		Status:    core.StepOK,
		Output:    result.Output,
		Duration:  dur,
	}

	x.appendAudit(core.NewAuditEntry(run.id, core.AuditStepEnd, map[string]any{
		"step":        idx,
		"agent":       step.AgentName,
		"method":      step.Method,
		"status":      string(core.StepOK),
		"duration_ms": dur.Milliseconds(),
	}))
	x.logger.Info(
		"engine.step.executed",
		"workflow_id", run.id,
		"step", idx,
		"agent", step.AgentName,
		"method", step.Method,
		"duration_ms", dur.Milliseconds(),
		"error", false,
	)

	return outcome, result.Extras
}

// failure normalizes an error into its outcome record and emits the step.end
// boundary entry for the failed attempt.
func (x *stepExecutor) failure(run *workflowRun, idx int, step core.Step, err error, dur time.Duration) core.StepOutcome {
	record := core.RecordFromError(err)

	x.appendAudit(core.NewAuditEntry(run.id, core.AuditStepEnd, map[string]any{
		"step":        idx,
		"agent":       step.AgentName,
		"method":      step.Method,
		"status":      string(core.StepError),
		"error_kind":  string(record.Kind),
		"error":       record.Message,
		"duration_ms": dur.Milliseconds(),
	}))
	x.logger.Error(
		"engine.step.failed",
		"workflow_id", run.id,
		"step", idx,
		"agent", step.AgentName,
		"method", step.Method,
		"error_kind", string(record.Kind),
		"error", record.Message,
		"duration_ms", dur.Milliseconds(),
	)

	return core.StepOutcome{
		Index:     idx,
		AgentName: step.AgentName,
		Method:    step.Method,
		Status:    core.StepError,
		Error:     record,
		Duration:  dur,
	}
}

func (x *stepExecutor) appendAudit(entry core.AuditEntry) {
	if err := x.auditLog.Append(entry); err != nil {
		x.logger.Warn("engine.audit.append_failed", "workflow_id", entry.WorkflowID, "kind", string(entry.Kind), "error", err)
	}
}

// panicError wraps a recovered panic value, capturing the goroutine stack at
// the recovery site.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
