package agent

import (
	"context"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
)

const defaultNonAgenticInstruction = "You are a helpful banking assistant. Answer the customer's question directly and concisely."

// NonAgentic answers with a single model call. No tools are offered.
type NonAgentic struct {
	gateway Gateway
	opts    Options
}

// NewNonAgentic creates the single-call strategy.
func NewNonAgentic(gw Gateway, optFns ...func(o *Options)) *NonAgentic {
	return &NonAgentic{gateway: gw, opts: buildOptions(defaultNonAgenticInstruction, optFns)}
}

// Kind implements Strategy.
func (s *NonAgentic) Kind() core.StrategyKind { return core.StrategyNonAgentic }

// Run implements Strategy.
//
// A text answer completes the run. A gateway that stays unavailable after
// the retry bound fails it with a NonAgentic error wrapping the cause.
func (s *NonAgentic) Run(ctx context.Context, req core.Request) *core.RunResult {
	r, err := newRun(s.Kind(), req, s.opts.Logger)
	if err != nil {
		return &core.RunResult{Strategy: s.Kind(), RequestID: req.ID(), Status: core.StatusFailed, Err: err}
	}

	instructions, err := s.opts.Instruction.Resolve(req)
	if err != nil {
		return r.result(core.StatusFailed, "", 0, core.NewNonAgenticError("resolve instructions", err))
	}

	r.logger.Debug("agent.run.start", "model", s.gateway.Info().Name)

	resp, attempts, err := complete(ctx, s.gateway, s.opts, r.transcript.Messages(), nil, model.WithInstructions(instructions))
	if err != nil {
		if status, cerr := budgetStatus(ctx); status != "" {
			return r.result(status, "", 0, cerr)
		}

		r.logger.Error("agent.model.unavailable", "attempts", attempts, "error", err.Error())

		return r.result(core.StatusFailed, "", 0, core.NewNonAgenticError("model call failed", err))
	}

	if resp.Text == "" {
		// no tools were offered, so tool calls without text carry no answer
		derr := core.NewDataError("model requested tools in a tool-less call", s.gateway.Info().Name, "tool_calls", nil)
		return r.result(core.StatusFailed, "", 0, core.NewNonAgenticError("model returned no answer", derr))
	}

	if err := r.transcript.Append(core.NewAssistantMessage(resp.Text)); err != nil {
		return r.result(core.StatusFailed, "", 0, core.NewNonAgenticError("record answer", err))
	}

	return r.result(core.StatusCompleted, resp.Text, 1, nil)
}
