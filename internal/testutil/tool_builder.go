package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/tool"
)

// ToolBuilder constructs a recording tool.
// Example:
//
//	bal := NewTool("get_balance").Returns(map[string]any{"balance": 10.0}).Delay(50 * time.Millisecond).Build()
type ToolBuilder struct {
	name    string
	payload any
	err     error
	delay   time.Duration
	schema  map[string]any
}

// NewTool starts a builder for a tool named name. The tool returns "ok".
func NewTool(name string) *ToolBuilder { return &ToolBuilder{name: name, payload: "ok"} }

// Returns sets the payload (chainable).
func (b *ToolBuilder) Returns(payload any) *ToolBuilder { b.payload = payload; return b }

// Fails makes every call return err (chainable).
func (b *ToolBuilder) Fails(err error) *ToolBuilder { b.err = err; return b }

// Delay makes every call take d unless its context ends first (chainable).
func (b *ToolBuilder) Delay(d time.Duration) *ToolBuilder { b.delay = d; return b }

// Parameters sets the argument schema (chainable).
func (b *ToolBuilder) Parameters(schema map[string]any) *ToolBuilder { b.schema = schema; return b }

// Build returns the tool and the recorder of its calls.
func (b *ToolBuilder) Build() (tool.Tool, *CallRecorder) {
	rec := &CallRecorder{}
	payload, err, delay := b.payload, b.err, b.delay

	t := tool.NewFunctionTool(b.name, "test tool "+b.name, b.schema, func(tc *core.ToolContext, args map[string]any) (any, error) {
		rec.record(tc, args)

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-tc.Context().Done():
				return nil, tc.Context().Err()
			}
		}

		return payload, err
	})

	return t, rec
}

// RecordedCall is one observed tool invocation.
type RecordedCall struct {
	CallID    string
	AccountID string
	Strategy  core.StrategyKind
	Args      map[string]any
}

// CallRecorder collects the invocations of a built tool. Safe for
// concurrent use.
type CallRecorder struct {
	mu    sync.Mutex
	calls []RecordedCall
}

func (r *CallRecorder) record(tc *core.ToolContext, args map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, RecordedCall{
		CallID:    tc.FunctionCallID(),
		AccountID: tc.AccountID(),
		Strategy:  tc.Strategy(),
		Args:      args,
	})
}

// Calls returns the recorded invocations.
func (r *CallRecorder) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RecordedCall, len(r.calls))
	copy(out, r.calls)

	return out
}

// Count returns the number of invocations.
func (r *CallRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}
