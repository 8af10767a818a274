// Package neobank is the orchestration facade of the banking assistant. An
// Assistant owns a model gateway, a frozen tool registry and the three
// strategies, and answers requests with the strategy chosen per call:
//
//	gw := model.NewGateway(openai.NewModel(...))
//	reg := tool.NewRegistry()
//	reg.MustRegister(balanceTool, transactionsTool)
//
//	a, err := neobank.New(gw, reg, func(o *neobank.Options) {
//		o.DefaultStrategy = core.StrategyAgentic
//		o.Timeout = time.Minute
//	})
//	res, err := a.Run(ctx, core.NewRequest("What did I spend on groceries?", nil), "")
//
// Every Run returns a RunResult, including failed ones, so the transcript is
// always available to the caller.
package neobank

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/neobank/agent"
	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
	"github.com/hupe1980/neobank/metrics"
	"github.com/hupe1980/neobank/tool"
)

// DefaultTimeout bounds a run when Options.Timeout is zero.
const DefaultTimeout = 2 * time.Minute

// Options configures the Assistant.
type Options struct {
	// DefaultStrategy is used when Run receives an empty kind.
	DefaultStrategy core.StrategyKind
	// Timeout is the wall-clock budget of a run. Expiry ends the run as
	// exhausted.
	Timeout time.Duration
	// MaxConcurrentRuns bounds simultaneous runs. 0 is unbounded.
	MaxConcurrentRuns int

	Logger         logging.Logger
	Metrics        *metrics.Collector
	TracerProvider trace.TracerProvider

	// Agent tunes the strategies (instructions, iteration ceiling, retries).
	Agent []func(o *agent.Options)
}

// Assistant dispatches requests to the orchestration strategies. It is safe
// for concurrent use.
type Assistant struct {
	opts       Options
	gateway    agent.Gateway
	registry   *tool.Registry
	strategies map[core.StrategyKind]agent.Strategy
	sem        *semaphore.Weighted
	tracer     trace.Tracer
}

// New creates an Assistant. The registry is frozen; a nil registry means no
// tools. A nil gateway or an unknown default strategy is a ConfigurationError.
func New(gw agent.Gateway, reg *tool.Registry, optFns ...func(o *Options)) (*Assistant, error) {
	opts := Options{
		DefaultStrategy: core.StrategyAgentic,
		Timeout:         DefaultTimeout,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if gw == nil {
		return nil, core.NewConfigurationError("model gateway is required", nil)
	}

	kind, err := core.ParseStrategy(string(opts.DefaultStrategy))
	if err != nil {
		return nil, err
	}

	opts.DefaultStrategy = kind

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	if reg == nil {
		reg = tool.NewRegistry()
	}

	reg.Freeze()

	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) {
		o.Logger = opts.Logger
		o.TracerProvider = opts.TracerProvider

		if opts.Metrics != nil {
			o.IterationObserver = opts.Metrics
			o.GraphObserver = opts.Metrics
		}
	}}, opts.Agent...)

	a := &Assistant{
		opts:     opts,
		gateway:  gw,
		registry: reg,
		strategies: map[core.StrategyKind]agent.Strategy{
			core.StrategyNonAgentic:      agent.NewNonAgentic(gw, agentOpts...),
			core.StrategyAgentic:         agent.NewAgentic(gw, reg, agentOpts...),
			core.StrategyAutonomousGraph: agent.NewAutonomous(gw, reg, agentOpts...),
		},
		tracer: opts.TracerProvider.Tracer("github.com/hupe1980/neobank"),
	}

	if opts.MaxConcurrentRuns > 0 {
		a.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}

	return a, nil
}

// ParseKind parses a strategy name; see core.ParseStrategy.
func ParseKind(s string) (core.StrategyKind, error) { return core.ParseStrategy(s) }

// Registry returns the frozen tool registry.
func (a *Assistant) Registry() *tool.Registry { return a.registry }

// DefaultStrategy returns the strategy used for an empty kind.
func (a *Assistant) DefaultStrategy() core.StrategyKind { return a.opts.DefaultStrategy }

// Run answers req with the strategy named by kind, or the default strategy
// when kind is empty. The returned error is the RunResult's Err. An unknown
// kind yields a failed result with a ConfigurationError and runs nothing.
func (a *Assistant) Run(ctx context.Context, req core.Request, kind core.StrategyKind) (*core.RunResult, error) {
	if kind == "" {
		kind = a.opts.DefaultStrategy
	}

	parsed, err := core.ParseStrategy(string(kind))
	if err != nil {
		a.opts.Logger.Warn("assistant.run.rejected", "strategy", string(kind), "request_id", req.ID(), "error", err.Error())

		return &core.RunResult{RequestID: req.ID(), Strategy: kind, Status: core.StatusFailed, Err: err}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, "assistant.run", trace.WithAttributes(
		attribute.String("strategy", string(parsed)),
		attribute.String("request_id", req.ID()),
	))
	defer span.End()

	start := time.Now()

	var res *core.RunResult

	if err := a.acquire(ctx); err != nil {
		status := core.StatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status, err = core.StatusExhausted, nil
		}

		res = &core.RunResult{RequestID: req.ID(), Strategy: parsed, Status: status, Err: err, Duration: time.Since(start)}
	} else {
		res = a.strategies[parsed].Run(ctx, req)
		a.release()
	}

	a.finish(span, res)

	return res, res.Err
}

func (a *Assistant) acquire(ctx context.Context) error {
	if a.sem == nil {
		return nil
	}

	return a.sem.Acquire(ctx, 1)
}

func (a *Assistant) release() {
	if a.sem != nil {
		a.sem.Release(1)
	}
}

func (a *Assistant) finish(span trace.Span, res *core.RunResult) {
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("iterations", res.Iterations),
	)

	a.opts.Metrics.ObserveRun(string(res.Strategy), string(res.Status), res.Duration)

	args := []any{
		"strategy", string(res.Strategy),
		"status", string(res.Status),
		"request_id", res.RequestID,
		"run_id", res.RunID,
		"iterations", res.Iterations,
		"duration_ms", res.Duration.Milliseconds(),
	}

	if res.LastNode != "" {
		args = append(args, "last_node", res.LastNode)
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, core.KindOf(res.Err).String())

		var cerr *core.Error
		if errors.As(res.Err, &cerr) {
			args = append(args, "error_kind", cerr.Kind.String(), "details", cerr.Details)
		}

		a.opts.Logger.Error("assistant.run.finished", append(args, "error", res.Err.Error())...)

		return
	}

	a.opts.Logger.Info("assistant.run.finished", args...)
}
