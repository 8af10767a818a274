package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
)

// Tool call outcomes reported to the Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomePanic       = "panic"
	OutcomeNotFound    = "not_found"
	OutcomeInvalidArgs = "invalid_args"
)

// Observer receives one notification per invocation. metrics.Collector
// implements it.
type Observer interface {
	ObserveToolCall(toolName, outcome string, duration time.Duration)
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger         logging.Logger
	Observer       Observer
	TracerProvider trace.TracerProvider
}

// InvokeOptions carries the per-call scope handed to the tool.
type InvokeOptions struct {
	Request  core.Request
	Strategy core.StrategyKind
}

// WithRequest scopes an invocation to the originating request.
func WithRequest(req core.Request) func(o *InvokeOptions) {
	return func(o *InvokeOptions) { o.Request = req }
}

// WithStrategy records which strategy issued the call.
func WithStrategy(kind core.StrategyKind) func(o *InvokeOptions) {
	return func(o *InvokeOptions) { o.Strategy = kind }
}

type entry struct {
	tool   Tool
	params *compiledSchema
	result *compiledSchema
}

// Registry maps tool names to callables and their compiled schemas.
//
// Tools are registered during initialization. After Freeze (or once handed to
// a strategy) the table is read-only and safe for concurrent Invoke calls.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	frozen  bool

	logger   logging.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewRegistry creates an empty Registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Registry{
		entries:  map[string]*entry{},
		logger:   opts.Logger,
		observer: opts.Observer,
		tracer:   opts.TracerProvider.Tracer("github.com/hupe1980/neobank/tool"),
	}
}

// Register adds tools. Empty or duplicate names, invalid schemas and
// registration after Freeze yield a ConfigurationError; nothing is registered
// from a failing call.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return core.NewConfigurationError("registry is frozen", nil)
	}

	staged := make(map[string]*entry, len(tools))

	for _, t := range tools {
		if t == nil {
			return core.NewConfigurationError("nil tool", nil)
		}

		name := t.Name()
		if name == "" {
			return core.NewConfigurationError("tool name must not be empty", nil)
		}

		if _, dup := r.entries[name]; dup {
			return core.NewConfigurationError("duplicate tool name", map[string]any{core.DetailToolName: name})
		}

		if _, dup := staged[name]; dup {
			return core.NewConfigurationError("duplicate tool name", map[string]any{core.DetailToolName: name})
		}

		params, err := compileSchema(name, t.Parameters())
		if err != nil {
			return core.NewConfigurationError("invalid parameter schema", map[string]any{core.DetailToolName: name}).WithCause(err)
		}

		e := &entry{tool: t, params: params}

		if rs, ok := t.(ResultSchemaProvider); ok && rs.ResultSchema() != nil {
			result, err := compileSchema(name+".result", rs.ResultSchema())
			if err != nil {
				return core.NewConfigurationError("invalid result schema", map[string]any{core.DetailToolName: name}).WithCause(err)
			}

			e.result = result
		}

		staged[name] = e
	}

	for name, e := range staged {
		r.entries[name] = e
		r.logger.Debug("tool.registered", "tool", name)
	}

	return nil
}

// MustRegister is like Register but panics on error. Intended for init code.
func (r *Registry) MustRegister(tools ...Tool) {
	if err := r.Register(tools...); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]

	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Definitions returns the tool catalog sent to the model, sorted by name.
func (r *Registry) Definitions() []Definition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		t := r.entries[name].tool

		params := t.Parameters()
		if params == nil {
			params = emptyObjectSchema()
		}

		defs = append(defs, Definition{Name: name, Description: t.Description(), Parameters: params})
	}

	return defs
}

// Invoke executes one call.
//
// An unregistered name returns a ToolNotFound error. Arguments that are not
// valid JSON or fail the schema return a ToolExecutionError and the tool is
// never called. In both cases the accompanying ToolResult is a failed result
// that can be fed back to the model.
//
// A tool that returns an error or panics yields a failed ToolResult carrying
// a ToolExecutionError and a nil error: tool failures are observations, not
// run failures.
func (r *Registry) Invoke(ctx context.Context, call core.ToolCall, optFns ...func(o *InvokeOptions)) (core.ToolResult, error) {
	opts := InvokeOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, span := r.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	start := time.Now()

	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()

	if !ok {
		err := core.NewToolNotFoundError(call.Name)
		r.finish(span, call, OutcomeNotFound, start, err)

		return core.FailedResult(call, err), err
	}

	args, err := call.DecodeArguments()
	if err == nil {
		err = e.params.validate(args)
	}

	if err != nil {
		terr := core.NewToolExecutionError("invalid arguments", call.Name, args, err)
		r.finish(span, call, OutcomeInvalidArgs, start, terr)

		return core.FailedResult(call, terr), terr
	}

	tc := core.NewToolContext(ctx, call, opts.Request, opts.Strategy, r.logger)

	payload, panicked, err := callSafely(e.tool, tc, args)
	if err != nil {
		outcome := OutcomeError
		if panicked {
			outcome = OutcomePanic
		}

		terr := core.NewToolExecutionError("tool call failed", call.Name, args, err)
		r.finish(span, call, outcome, start, terr)

		return core.FailedResult(call, terr), nil
	}

	r.finish(span, call, OutcomeSuccess, start, nil)

	return core.SucceededResult(call, payload), nil
}

// ValidateResult checks a payload against the tool's declared result schema.
// Tools without one accept any payload.
func (r *Registry) ValidateResult(name string, payload any) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok || e.result == nil {
		return nil
	}

	return e.result.validate(payload)
}

func (r *Registry) finish(span trace.Span, call core.ToolCall, outcome string, start time.Time, err error) {
	dur := time.Since(start)

	span.SetAttributes(attribute.String("tool.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		r.logger.Warn("tool.call.error", "tool", call.Name, "fc_id", call.ID, "outcome", outcome, "error", err.Error())
	} else {
		r.logger.Info("tool.call.success", "tool", call.Name, "fc_id", call.ID, "duration_ms", dur.Milliseconds())
	}

	if r.observer != nil {
		r.observer.ObserveToolCall(call.Name, outcome, dur)
	}
}

func callSafely(t Tool, tc *core.ToolContext, args map[string]any) (payload any, panicked bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tc.LogError("tool.call.panic", "recover", rec, "stack", string(debug.Stack()))
			payload, panicked, err = nil, true, fmt.Errorf("panic: %v", rec)
		}
	}()

	payload, err = t.Call(tc, args)

	return payload, false, err
}
