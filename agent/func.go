package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/internal/util"
	"github.com/stratomesh/stratomesh/logging"
)

// Handler implements one declared capability method. It receives the step
// input and an immutable snapshot of the workflow's shared context and
// returns a structured result (Output plus optional propagated Extras) or an
// error.
type Handler func(ctx context.Context, input map[string]any, contextSnapshot map[string]any) (*core.AgentResult, error)

// Options configures a FuncAgent.
type Options struct {
	// Logger receives per-call activity. Defaults to NoOp.
	Logger logging.Logger

	// ConcurrencySafe opts the agent's handles into cross-workflow reuse
	// under the registry's default policy. Only enable it for handlers with
	// no mutable per-call state.
	ConcurrencySafe bool
}

// FuncAgent is a generic adapter exposing plain Go functions as a
// core.Agent, one handler per declared capability method.
//
// Responsibilities:
//   - Holds the declared capability set, including optional input schemas
//   - Validates call input against the method's schema before execution
//   - Normalizes failures so callers receive taxonomy errors: a schema
//     mismatch or an undeclared method surfaces as *core.AgentExecutionError
//     (the engine validates typed inputs earlier, at the protocol boundary;
//     this check covers opaque payloads and direct callers)
//
// A FuncAgent has no internal mutable state after construction; whether that
// makes it safe for cross-workflow sharing is declared explicitly via
// Options.ConcurrencySafe, since handlers may close over shared state the
// adapter cannot see.
type FuncAgent struct {
	name     string
	caps     []core.Capability
	handlers map[string]Handler
	logger   logging.Logger
	safe     bool
}

// NewFuncAgent creates an agent with no capabilities; attach them with
// Handle/HandleStruct before registering.
//
// Example:
//
//	profiler := agent.NewFuncAgent("source_profiler").
//	    Handle(core.Capability{Method: "profile"}, profileHandler)
func NewFuncAgent(name string, optFns ...func(o *Options)) *FuncAgent {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &FuncAgent{
		name:     name,
		handlers: map[string]Handler{},
		logger:   opts.Logger,
		safe:     opts.ConcurrencySafe,
	}
}

// Handle declares a capability and binds its handler, replacing any previous
// binding for the same method. It returns the agent for chaining.
func (a *FuncAgent) Handle(c core.Capability, h Handler) *FuncAgent {
	if _, exists := a.handlers[c.Method]; !exists {
		a.caps = append(a.caps, c)
	} else {
		for i := range a.caps {
			if a.caps[i].Method == c.Method {
				a.caps[i] = c
				break
			}
		}
	}
	a.handlers[c.Method] = h
	return a
}

// HandleStruct declares a capability whose input schema is derived from a
// struct's json tags via reflection, then binds its handler.
//
// Example:
//
//	type ProfileInput struct {
//	    Source string `json:"source" description:"Source system identifier"`
//	    Rows   *int   `json:"rows" description:"Optional row sample size"`
//	}
//
//	profiler.HandleStruct("profile", "Profile a data source", ProfileInput{}, profileHandler)
func (a *FuncAgent) HandleStruct(method, description string, structType any, h Handler) *FuncAgent {
	return a.Handle(core.Capability{
		Method:      method,
		Description: description,
		InputSchema: util.CreateSchema(structType),
	}, h)
}

// Name returns the agent name used for registration and step routing.
func (a *FuncAgent) Name() string { return a.name }

// Capabilities returns the declared capability set in method order.
func (a *FuncAgent) Capabilities() []core.Capability {
	caps := make([]core.Capability, len(a.caps))
	copy(caps, a.caps)
	sort.Slice(caps, func(i, j int) bool { return caps[i].Method < caps[j].Method })
	return caps
}

// SafeForConcurrentUse implements core.ConcurrencySafe.
func (a *FuncAgent) SafeForConcurrentUse() bool { return a.safe }

// Spec builds a registration record for the agent with the given config.
func (a *FuncAgent) Spec(config map[string]any) core.AgentSpec {
	return core.AgentSpec{
		Name:   a.name,
		Config: config,
		Factory: func(map[string]any) (core.Agent, error) {
			return a, nil
		},
		Capabilities: a.Capabilities(),
	}
}

// Invoke validates the input against the method's declared schema (when one
// exists) and dispatches to the bound handler.
//
// Error semantics:
//
//	undeclared method   -> *core.AgentExecutionError ("method not implemented")
//	schema mismatch     -> *core.AgentExecutionError wrapping the validation error
//	handler error       -> forwarded unchanged
//
// Logging fields: agent, method, duration_ms.
func (a *FuncAgent) Invoke(ctx context.Context, method string, input map[string]any, contextSnapshot map[string]any) (*core.AgentResult, error) {
	start := time.Now()

	a.logger.Debug("agent.call.start", "agent", a.name, "method", method)

	h, ok := a.handlers[method]
	if !ok {
		return nil, &core.AgentExecutionError{Agent: a.name, Method: method, Message: "method not implemented"}
	}

	if c, found := a.capability(method); found && c.InputSchema != nil {
		if err := util.ValidateParameters(input, c.InputSchema); err != nil {
			a.logger.Warn("agent.call.validation_failed", "agent", a.name, "method", method, "error", err.Error())

			return nil, &core.AgentExecutionError{
				Agent:   a.name,
				Method:  method,
				Message: fmt.Sprintf("input validation failed: %v", err),
				Err:     err,
			}
		}
	}

	result, err := h(ctx, input, contextSnapshot)
	if err != nil {
		a.logger.Error("agent.call.error", "agent", a.name, "method", method, "error", err.Error())
		return nil, err
	}
	if result == nil {
		result = &core.AgentResult{}
	}

	a.logger.Info("agent.call.success", "agent", a.name, "method", method, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (a *FuncAgent) capability(method string) (core.Capability, bool) {
	for _, c := range a.caps {
		if c.Method == method {
			return c, true
		}
	}
	return core.Capability{}, false
}
