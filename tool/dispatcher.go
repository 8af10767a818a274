package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
)

// ErrAbandoned marks a call whose result did not arrive before the run budget
// and grace period expired.
var ErrAbandoned = errors.New("tool call abandoned: run budget expired")

// Invoker executes a single tool call. *Registry implements it.
type Invoker interface {
	Invoke(ctx context.Context, call core.ToolCall, optFns ...func(o *InvokeOptions)) (core.ToolResult, error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxParallel bounds concurrent calls per batch. 0 means one goroutine per call.
	MaxParallel int
	// GracePeriod is how long in-flight calls may keep running after the run
	// context is done. Results arriving later are discarded.
	GracePeriod time.Duration
	Logger      logging.Logger
}

// Batch is the joined outcome of one Dispatch.
type Batch struct {
	// Results holds one entry per call, in call order.
	Results []core.ToolResult
	// Delivered marks which Results arrived in time. Undelivered entries are
	// failed results wrapping ErrAbandoned.
	Delivered []bool
	// NotFound counts calls that named an unregistered tool.
	NotFound int
}

// Complete reports whether every call delivered a result.
func (b Batch) Complete() bool {
	for _, ok := range b.Delivered {
		if !ok {
			return false
		}
	}

	return true
}

// AllNotFound reports whether every call named an unregistered tool.
func (b Batch) AllNotFound() bool {
	return len(b.Results) > 0 && b.NotFound == len(b.Results)
}

// Dispatcher runs the tool calls of one model response concurrently and joins
// them. A failing call never cancels its siblings.
type Dispatcher struct {
	invoker Invoker
	opts    DispatcherOptions
}

// NewDispatcher creates a Dispatcher over invoker.
func NewDispatcher(invoker Invoker, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Dispatcher{invoker: invoker, opts: opts}
}

// Dispatch invokes all calls and returns once every call finished, or once
// ctx is done and the grace period elapsed, whichever comes first.
//
// Calls run on a context detached from ctx's cancellation so that in-flight
// work can use the grace period; that context is cancelled when Dispatch
// returns.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []core.ToolCall, optFns ...func(o *InvokeOptions)) Batch {
	n := len(calls)
	batch := Batch{
		Results:   make([]core.ToolResult, n),
		Delivered: make([]bool, n),
	}

	if n == 0 {
		return batch
	}

	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var (
		mu     sync.Mutex
		closed bool
	)

	g := new(errgroup.Group)
	if d.opts.MaxParallel > 0 {
		g.SetLimit(d.opts.MaxParallel)
	}

	batchStart := time.Now()
	done := make(chan struct{})

	go func() {
		defer close(done)

		for i, call := range calls {
			mu.Lock()
			stop := closed
			mu.Unlock()

			if stop {
				break
			}

			g.Go(func() error {
				res, err := d.invokeSafely(callCtx, call, optFns)

				mu.Lock()
				defer mu.Unlock()

				if closed {
					d.opts.Logger.Debug("tool.call.late", "tool", call.Name, "fc_id", call.ID)
					return nil
				}

				batch.Results[i] = res
				batch.Delivered[i] = true

				if core.KindOf(err) == core.KindToolNotFound {
					batch.NotFound++
				}

				return nil
			})
		}

		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if d.opts.GracePeriod > 0 {
			timer := time.NewTimer(d.opts.GracePeriod)
			select {
			case <-done:
			case <-timer.C:
			}
			timer.Stop()
		}
	}

	mu.Lock()
	closed = true

	abandoned := 0

	for i, ok := range batch.Delivered {
		if !ok {
			batch.Results[i] = core.FailedResult(calls[i], ErrAbandoned)
			abandoned++
		}
	}
	mu.Unlock()

	d.opts.Logger.Debug(
		"agent.tools.batch.complete",
		"count", n,
		"parallelism", d.opts.MaxParallel,
		"abandoned", abandoned,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return batch
}

func (d *Dispatcher) invokeSafely(ctx context.Context, call core.ToolCall, optFns []func(o *InvokeOptions)) (res core.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.opts.Logger.Error("agent.tool.panic", "tool", call.Name, "recover", r)
			err = core.NewToolExecutionError("tool dispatch panicked", call.Name, nil, fmt.Errorf("panic: %v", r))
			res = core.FailedResult(call, err)
		}
	}()

	start := time.Now()
	res, err = d.invoker.Invoke(ctx, call, optFns...)

	d.opts.Logger.Info(
		"agent.tool.executed",
		"tool", call.Name,
		"fc_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"success", res.Success,
	)

	return res, err
}
