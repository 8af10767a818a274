package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
	"github.com/hupe1980/neobank/model"
	"github.com/hupe1980/neobank/tool"
)

// run holds the bookkeeping of one strategy execution. It is never shared
// between runs.
type run struct {
	kind       core.StrategyKind
	req        core.Request
	id         string
	start      time.Time
	transcript *core.Transcript
	callIDs    map[string]bool
	logger     logging.Logger
}

func newRun(kind core.StrategyKind, req core.Request, logger logging.Logger) (*run, error) {
	tr, err := core.NewTranscript(core.NewUserMessage(req.Text()))
	if err != nil {
		return nil, err
	}

	id := core.NewID()

	return &run{
		kind:       kind,
		req:        req,
		id:         id,
		start:      time.Now(),
		transcript: tr,
		callIDs:    map[string]bool{},
		logger:     logging.With(logger, "strategy", string(kind), "run_id", id, "request_id", req.ID()),
	}, nil
}

// appendModelTurn records the model response as an assistant message and
// returns its tool calls. Correlation ids already used in this run are
// replaced so every call stays uniquely addressable.
func (r *run) appendModelTurn(resp *model.Response) ([]core.ToolCall, error) {
	calls := make([]core.ToolCall, len(resp.ToolCalls))

	for i, c := range resp.ToolCalls {
		if c.ID == "" || r.callIDs[c.ID] {
			c.ID = core.NewID()
		}

		r.callIDs[c.ID] = true
		calls[i] = c
	}

	if err := r.transcript.Append(core.NewAssistantMessage(resp.Text, calls...)); err != nil {
		return nil, err
	}

	return calls, nil
}

// fold appends delivered tool results to the transcript. Successful payloads
// that violate the tool's result schema are turned into failed observations
// carrying a Data error.
func (r *run) fold(reg *tool.Registry, batch tool.Batch) ([]core.ToolResult, error) {
	folded := make([]core.ToolResult, 0, len(batch.Results))

	for i, res := range batch.Results {
		if !batch.Delivered[i] {
			continue
		}

		if res.Success {
			if err := reg.ValidateResult(res.Name, res.Payload); err != nil {
				call := core.ToolCall{ID: res.CallID, Name: res.Name}
				derr := core.NewDataError("tool payload does not match its result schema", res.Name, "payload", err)
				r.logger.Warn("agent.tool.invalid_result", "tool", res.Name, "fc_id", res.CallID, "error", err.Error())
				res = core.FailedResult(call, derr)
			}
		}

		if err := r.transcript.Append(core.NewToolMessage(res)); err != nil {
			return folded, err
		}

		folded = append(folded, res)
	}

	return folded, nil
}

func (r *run) result(status core.Status, answer string, iterations int, err error) *core.RunResult {
	res := &core.RunResult{
		RunID:      r.id,
		RequestID:  r.req.ID(),
		Strategy:   r.kind,
		Status:     status,
		Answer:     answer,
		Transcript: r.transcript.Messages(),
		Iterations: iterations,
		Duration:   time.Since(r.start),
		Err:        err,
	}

	r.logger.Debug("agent.run.finished",
		"status", string(status),
		"iterations", iterations,
		"messages", len(res.Transcript),
		"duration_ms", res.Duration.Milliseconds(),
	)

	return res
}

// budgetStatus classifies a done context: a passed deadline exhausts the
// run, caller cancellation fails it.
func budgetStatus(ctx context.Context) (core.Status, error) {
	err := ctx.Err()

	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, context.DeadlineExceeded):
		return core.StatusExhausted, nil
	default:
		return core.StatusFailed, err
	}
}

func describeCalls(calls []core.ToolCall) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}

	return "act:" + strings.Join(names, ",")
}
