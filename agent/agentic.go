package agent

import (
	"context"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
	"github.com/hupe1980/neobank/tool"
)

const defaultAgenticInstruction = `You are a banking assistant with access to tools.
Think step by step. Call tools when you need account data; you may call several tools at once.
When you have enough information, reply with the final answer as plain text and no tool calls.`

// Phases of the ReAct loop, used as last_action in errors and logs.
const (
	phaseThinking  = "think"
	phaseObserving = "observe"
)

// Agentic runs the ReAct loop: think (model call), act (dispatch the
// requested tools concurrently), observe (fold results into the transcript),
// until the model answers without tool calls or a budget runs out.
type Agentic struct {
	gateway    Gateway
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	opts       Options
}

// NewAgentic creates the ReAct strategy over the given registry.
func NewAgentic(gw Gateway, reg *tool.Registry, optFns ...func(o *Options)) *Agentic {
	opts := buildOptions(defaultAgenticInstruction, optFns)

	return &Agentic{
		gateway:  gw,
		registry: reg,
		dispatcher: tool.NewDispatcher(reg, func(o *tool.DispatcherOptions) {
			o.MaxParallel = opts.ToolParallelism
			o.GracePeriod = opts.ToolGracePeriod
			o.Logger = opts.Logger
		}),
		opts: opts,
	}
}

// Kind implements Strategy.
func (s *Agentic) Kind() core.StrategyKind { return core.StrategyAgentic }

// Run implements Strategy.
//
// The iteration counter grows by one per completed think/act/observe cycle.
// Reaching MaxIterations, or the context deadline, ends the run as exhausted
// with the last assistant text. The run fails with an Agentic error when the
// gateway stays unavailable after its retry bound, or when the model asks
// only for unregistered tools in MaxUnknownToolAttempts consecutive
// iterations.
func (s *Agentic) Run(ctx context.Context, req core.Request) *core.RunResult {
	r, err := newRun(s.Kind(), req, s.opts.Logger)
	if err != nil {
		return &core.RunResult{Strategy: s.Kind(), RequestID: req.ID(), Status: core.StatusFailed, Err: err}
	}

	instructions, err := s.opts.Instruction.Resolve(req)
	if err != nil {
		return r.result(core.StatusFailed, "", 0, core.NewAgenticError("resolve instructions", 0, phaseThinking, err))
	}

	var (
		budget        = core.NewIterationBudget(s.opts.MaxIterations)
		tools         = s.registry.Definitions()
		lastAction    = phaseThinking
		unknownStreak int
	)

	finish := func(status core.Status, answer string, err error) *core.RunResult {
		if s.opts.IterationObserver != nil {
			s.opts.IterationObserver.ObserveReactIterations(budget.Count())
		}

		res := r.result(status, answer, budget.Count(), err)
		res.LastNode = lastAction

		return res
	}

	for {
		if status, cerr := budgetStatus(ctx); status != "" {
			r.logger.Info("agent.run.budget", "reason", "deadline", "iteration", budget.Count())
			return finish(status, r.transcript.LastAssistantText(), cerr)
		}

		if budget.Exhausted() {
			r.logger.Info("agent.run.budget", "reason", "iterations", "iteration", budget.Count())
			return finish(core.StatusExhausted, r.transcript.LastAssistantText(), nil)
		}

		// think
		lastAction = phaseThinking

		resp, attempts, err := complete(ctx, s.gateway, s.opts, r.transcript.Messages(), tools, model.WithInstructions(instructions))
		if err != nil {
			if status, cerr := budgetStatus(ctx); status != "" {
				return finish(status, r.transcript.LastAssistantText(), cerr)
			}

			r.logger.Error("agent.model.unavailable", "attempts", attempts, "iteration", budget.Count(), "error", err.Error())

			return finish(core.StatusFailed, r.transcript.LastAssistantText(),
				core.NewAgenticError("model call failed", budget.Count(), lastAction, err))
		}

		calls, err := r.appendModelTurn(resp)
		if err != nil {
			return finish(core.StatusFailed, "", core.NewAgenticError("record model turn", budget.Count(), lastAction, err))
		}

		if len(calls) == 0 {
			return finish(core.StatusCompleted, resp.Text, nil)
		}

		// act
		lastAction = describeCalls(calls)

		batch := s.dispatcher.Dispatch(ctx, calls, tool.WithRequest(req), tool.WithStrategy(s.Kind()))

		// observe
		if _, err := r.fold(s.registry, batch); err != nil {
			return finish(core.StatusFailed, "", core.NewAgenticError("record tool results", budget.Count(), phaseObserving, err))
		}

		if !batch.Complete() {
			// results were abandoned because the run budget expired
			continue
		}

		budget.Increment()

		r.logger.Info("agent.iteration",
			"iteration", budget.Count(),
			"tool_calls", len(calls),
			"not_found", batch.NotFound,
		)

		if batch.AllNotFound() {
			unknownStreak++
		} else {
			unknownStreak = 0
		}

		if unknownStreak >= s.opts.MaxUnknownToolAttempts {
			return finish(core.StatusFailed, r.transcript.LastAssistantText(),
				core.NewAgenticError("model repeatedly requested unregistered tools", budget.Count(), lastAction,
					core.NewToolNotFoundError(calls[0].Name)))
		}
	}
}
