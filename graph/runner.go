package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
)

// DefaultMaxIterations is the transition ceiling used when none is set.
const DefaultMaxIterations = 10

// Observer is notified once per counted transition. metrics.Collector
// implements it.
type Observer interface {
	ObserveGraphTransition(node string)
}

// Transition describes one counted node-to-node move.
type Transition struct {
	From      string
	To        string
	Iteration int
}

// RunOptions configures one Run.
type RunOptions struct {
	// MaxIterations is the transition ceiling. Values < 1 use DefaultMaxIterations.
	MaxIterations int
	Logger        logging.Logger
	Observer      Observer
	// OnTransition, if set, is called synchronously after each counted transition.
	OnTransition   func(t Transition)
	TracerProvider trace.TracerProvider
}

// Outcome is the result of a graph run.
type Outcome struct {
	Status   core.Status
	LastNode string
	Err      error
}

// Run executes the graph from its entry node until a node returns End.
//
// Each node-to-node transition increments the state's iteration counter
// exactly once. Once the counter reaches the ceiling no node other than the
// finish node runs: a transition into the finish node is honored and
// completes the run, any other successor is skipped and the runner jumps
// straight to the finish node (that jump is not counted) with the outcome
// exhausted. A passed deadline forces the finish node the same way. Caller
// cancellation fails the run with ctx.Err().
//
// A node error, a panic, or a reference to an unknown node fails the run with
// an AIAgent error naming the node and the state keys. The runner never
// retries a node.
func (g *Graph) Run(ctx context.Context, state *State, optFns ...func(o *RunOptions)) Outcome {
	opts := RunOptions{
		MaxIterations: DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultMaxIterations
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	r := &runner{graph: g, opts: opts, tracer: opts.TracerProvider.Tracer("github.com/hupe1980/neobank/graph")}

	return r.run(ctx, state)
}

type runner struct {
	graph  *Graph
	opts   RunOptions
	tracer trace.Tracer
}

func (r *runner) run(ctx context.Context, state *State) Outcome {
	current := r.graph.entry

	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return Outcome{Status: core.StatusFailed, LastNode: current, Err: err}
			}

			return r.forceFinish(ctx, state, current, "deadline")
		}

		if state.iteration >= r.opts.MaxIterations && current != r.graph.finish {
			return r.forceFinish(ctx, state, current, "ceiling")
		}

		next, err := r.execute(ctx, current, state)
		if err != nil {
			// failures caused by the run deadline count as exhaustion
			if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return r.forceFinish(ctx, state, current, "deadline")
			}

			return Outcome{
				Status:   core.StatusFailed,
				LastNode: current,
				Err:      core.NewAIAgentError("node failed", current, state.Keys(), err),
			}
		}

		if next == End {
			status := core.StatusCompleted
			if state.forced {
				status = core.StatusExhausted
			}

			return Outcome{Status: status, LastNode: current}
		}

		if _, ok := r.graph.nodes[next]; !ok {
			return Outcome{
				Status:   core.StatusFailed,
				LastNode: current,
				Err:      core.NewAIAgentError(fmt.Sprintf("unknown next node %q", next), current, state.Keys(), nil),
			}
		}

		// the finish node routed onward at the ceiling
		if state.iteration >= r.opts.MaxIterations {
			return r.forceFinish(ctx, state, current, "ceiling")
		}

		state.advance()
		r.transitioned(current, next, state.iteration)
		current = next
	}
}

// forceFinish runs the finish node once on a context detached from ctx's
// deadline and reports exhaustion. The successor it names is ignored.
func (r *runner) forceFinish(ctx context.Context, state *State, current, reason string) Outcome {
	state.forced = true

	r.opts.Logger.Info("graph.run.forced_finish",
		"from", current,
		"reason", reason,
		"iteration", state.iteration,
	)

	if _, err := r.execute(context.WithoutCancel(ctx), r.graph.finish, state); err != nil {
		return Outcome{
			Status:   core.StatusFailed,
			LastNode: r.graph.finish,
			Err:      core.NewAIAgentError("node failed", r.graph.finish, state.Keys(), err),
		}
	}

	return Outcome{Status: core.StatusExhausted, LastNode: r.graph.finish}
}

func (r *runner) transitioned(from, to string, iteration int) {
	r.opts.Logger.Debug("graph.transition", "from", from, "to", to, "iteration", iteration)

	if r.opts.Observer != nil {
		r.opts.Observer.ObserveGraphTransition(to)
	}

	if r.opts.OnTransition != nil {
		r.opts.OnTransition(Transition{From: from, To: to, Iteration: iteration})
	}
}

func (r *runner) execute(ctx context.Context, name string, state *State) (next string, err error) {
	ctx, span := r.tracer.Start(ctx, "graph.node", trace.WithAttributes(
		attribute.String("graph.node", name),
		attribute.Int("graph.iteration", state.iteration),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Error("graph.node.panic", "node", name, "recover", rec, "stack", string(debug.Stack()))
			next, err = "", fmt.Errorf("panic: %v", rec)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "node failed")
		}
	}()

	return r.graph.nodes[name](ctx, state)
}
