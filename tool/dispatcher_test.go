package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/neobank/core"
)

func sleepTool(name string, d time.Duration) Tool {
	return NewFunctionTool(name, "Sleeps", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		select {
		case <-time.After(d):
			return name, nil
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	})
}

func TestDispatcher_RunsCallsConcurrently(t *testing.T) {
	// 10ms/50ms/5ms scaled up to keep the bound stable on slow machines.
	const scale = 10

	r := NewRegistry()
	r.MustRegister(
		sleepTool("fast", 10*scale*time.Millisecond),
		sleepTool("slow", 50*scale*time.Millisecond),
		sleepTool("quick", 5*scale*time.Millisecond),
	)

	calls := []core.ToolCall{call("fast", ``), call("slow", ``), call("quick", ``)}

	start := time.Now()
	batch := NewDispatcher(r).Dispatch(context.Background(), calls)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*scale*time.Millisecond)
	assert.Less(t, elapsed, 65*scale*time.Millisecond, "dispatch must be bounded by the slowest tool, not the sum")

	require.True(t, batch.Complete())
	require.Len(t, batch.Results, 3)

	for i, res := range batch.Results {
		assert.True(t, res.Success)
		assert.Equal(t, calls[i].ID, res.CallID, "results are joined in call order")
		assert.Equal(t, calls[i].Name, res.Payload)
	}
}

func TestDispatcher_FailureDoesNotCancelSiblings(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFunctionTool("fail", "", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, errors.New("ledger offline")
		}),
		sleepTool("slow", 30*time.Millisecond),
	)

	batch := NewDispatcher(r).Dispatch(context.Background(), []core.ToolCall{
		call("fail", ``), call("slow", ``), call("missing", ``),
	})

	require.True(t, batch.Complete())
	assert.False(t, batch.Results[0].Success)
	assert.True(t, batch.Results[1].Success)
	assert.False(t, batch.Results[2].Success)
	assert.Equal(t, 1, batch.NotFound)
	assert.False(t, batch.AllNotFound())
}

func TestDispatcher_RespectsParallelLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	r := NewRegistry()
	r.MustRegister(NewFunctionTool("work", "", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()

		return nil, nil
	}))

	calls := make([]core.ToolCall, 6)
	for i := range calls {
		calls[i] = call("work", ``)
	}

	batch := NewDispatcher(r, func(o *DispatcherOptions) { o.MaxParallel = 2 }).Dispatch(context.Background(), calls)

	require.True(t, batch.Complete())
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestDispatcher_GracePeriodThenAbandon(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		sleepTool("within_grace", 40*time.Millisecond),
		sleepTool("too_slow", 2*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	d := NewDispatcher(r, func(o *DispatcherOptions) { o.GracePeriod = 150 * time.Millisecond })

	start := time.Now()
	batch := d.Dispatch(ctx, []core.ToolCall{call("within_grace", ``), call("too_slow", ``)})

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, batch.Complete())
	assert.True(t, batch.Delivered[0])
	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Delivered[1])
	assert.ErrorIs(t, batch.Results[1].Err, ErrAbandoned)
}

func TestDispatcher_Empty(t *testing.T) {
	batch := NewDispatcher(NewRegistry()).Dispatch(context.Background(), nil)
	assert.Empty(t, batch.Results)
	assert.True(t, batch.Complete())
	assert.False(t, batch.AllNotFound())
}
