package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
	"github.com/hupe1980/neobank/model"
)

// Defaults shared by the strategies.
const (
	DefaultMaxIterations          = 10
	DefaultMaxUnknownToolAttempts = 3
	DefaultModelRetries           = 3
	DefaultToolGracePeriod        = 2 * time.Second
	DefaultRetryInitialInterval   = 200 * time.Millisecond
	DefaultRetryMaxInterval       = 5 * time.Second
)

// Gateway is the model access a strategy needs. *model.Gateway implements it.
type Gateway interface {
	Complete(ctx context.Context, transcript []core.Message, tools []model.ToolDefinition, optFns ...func(o *model.CallOptions)) (*model.Response, error)
	Info() model.Info
}

// IterationObserver receives the iteration count of each finished agentic
// run. metrics.Collector implements it.
type IterationObserver interface {
	ObserveReactIterations(n int)
}

// Strategy turns a Request into a RunResult. Implementations never return a
// nil result; failures are reported through RunResult.Err.
type Strategy interface {
	Kind() core.StrategyKind
	Run(ctx context.Context, req core.Request) *core.RunResult
}

// Options configures the strategies. Fields irrelevant to a strategy are
// ignored by it.
type Options struct {
	Instruction Instruction
	Logger      logging.Logger

	// MaxIterations bounds ReAct cycles and graph transitions.
	MaxIterations int
	// MaxUnknownToolAttempts bounds consecutive ReAct iterations in which
	// every requested tool is unregistered.
	MaxUnknownToolAttempts int

	// ModelRetries is the number of attempts per gateway call, including
	// the first one.
	ModelRetries         int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// ToolParallelism bounds concurrent tool calls per batch. 0 is unbounded.
	ToolParallelism int
	// ToolGracePeriod lets in-flight tool calls finish after the run budget expires.
	ToolGracePeriod time.Duration

	IterationObserver IterationObserver
	GraphObserver     GraphObserver
	TracerProvider    trace.TracerProvider
}

// GraphObserver is notified of autonomous graph transitions.
type GraphObserver interface {
	ObserveGraphTransition(node string)
}

func defaultOptions() Options {
	return Options{
		Logger:                 logging.NoOpLogger{},
		MaxIterations:          DefaultMaxIterations,
		MaxUnknownToolAttempts: DefaultMaxUnknownToolAttempts,
		ModelRetries:           DefaultModelRetries,
		RetryInitialInterval:   DefaultRetryInitialInterval,
		RetryMaxInterval:       DefaultRetryMaxInterval,
		ToolGracePeriod:        DefaultToolGracePeriod,
	}
}

func buildOptions(defaultInstruction string, optFns []func(o *Options)) Options {
	opts := defaultOptions()
	opts.Instruction = NewInstructionFromText(defaultInstruction)

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultMaxIterations
	}

	if opts.MaxUnknownToolAttempts < 1 {
		opts.MaxUnknownToolAttempts = DefaultMaxUnknownToolAttempts
	}

	if opts.ModelRetries < 1 {
		opts.ModelRetries = 1
	}

	return opts
}
