package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/graph"
	"github.com/hupe1980/neobank/model"
	"github.com/hupe1980/neobank/tool"
)

// Node names of the autonomous graph.
const (
	NodePlan    = "plan"
	NodeAct     = "act"
	NodeObserve = "observe"
	NodeReflect = "reflect"
	NodeFinish  = "finish"
)

// State slots written by the autonomous graph.
const (
	SlotRequest      = "request"
	SlotPlan         = "plan"
	SlotBatch        = "batch"
	SlotObservations = "observations"
	SlotLastAction   = "last_action"
	SlotDraftAnswer  = "draft_answer"
	SlotFeedback     = "feedback"
	SlotReflection   = "reflection"
	SlotAnswer       = "answer"
	SlotStatus       = "status"
)

// VerdictToolName is the tool the reflect node offers the model to report
// its verdict.
const VerdictToolName = "submit_verdict"

// SatisfiedPrefix marks a satisfied verdict given as plain text.
const SatisfiedPrefix = "SATISFIED:"

const defaultPlannerInstruction = `You are a banking assistant that plans before answering.
Decide which tools you need and call them, or, if the information gathered so far is enough, write a draft answer as plain text.`

const reflectInstruction = `You review a banking assistant's work.
Given the conversation, decide whether the question is fully and correctly answered.
Call submit_verdict with satisfied=true and the final answer, or satisfied=false and feedback on what is missing.
If you cannot call tools, reply "SATISFIED: <final answer>" or explain what is missing.`

// Verdict is the reflect node's decision.
type Verdict struct {
	Satisfied bool   `json:"satisfied" jsonschema:"description=True when the question is fully answered"`
	Answer    string `json:"answer,omitempty" jsonschema:"description=The final answer for the customer"`
	Feedback  string `json:"feedback,omitempty" jsonschema:"description=What is missing or wrong"`
}

var verdictDefinition = model.ToolDefinition{
	Name:        VerdictToolName,
	Description: "Report whether the draft answer fully answers the customer's question.",
	Parameters:  tool.SchemaFor[Verdict](),
}

// Autonomous runs the plan/act/observe/reflect/finish state graph.
//
//	plan    -> act      (tool calls planned)
//	plan    -> reflect  (draft answer only)
//	act     -> observe
//	observe -> reflect
//	reflect -> finish   (satisfied)
//	reflect -> plan     (revise)
type Autonomous struct {
	gateway    Gateway
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	opts       Options
}

// NewAutonomous creates the autonomous graph strategy.
func NewAutonomous(gw Gateway, reg *tool.Registry, optFns ...func(o *Options)) *Autonomous {
	opts := buildOptions(defaultPlannerInstruction, optFns)

	return &Autonomous{
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
func (s *Autonomous) Kind() core.StrategyKind { return core.StrategyAutonomousGraph }

// Run implements Strategy.
func (s *Autonomous) Run(ctx context.Context, req core.Request) *core.RunResult {
	r, err := newRun(s.Kind(), req, s.opts.Logger)
	if err != nil {
		return &core.RunResult{Strategy: s.Kind(), RequestID: req.ID(), Status: core.StatusFailed, Err: err}
	}

	instructions, err := s.opts.Instruction.Resolve(req)
	if err != nil {
		return r.result(core.StatusFailed, "", 0, core.NewAIAgentError("resolve instructions", NodePlan, nil, err))
	}

	g, err := s.build(r, instructions)
	if err != nil {
		return r.result(core.StatusFailed, "", 0, core.NewAIAgentError("build graph", "", nil, err))
	}

	state := graph.NewState(map[string]any{SlotRequest: req.Text()})

	out := g.Run(ctx, state, func(o *graph.RunOptions) {
		o.MaxIterations = s.opts.MaxIterations
		o.Logger = r.logger
		o.Observer = s.opts.GraphObserver
		o.TracerProvider = s.opts.TracerProvider
	})

	answer := state.GetString(SlotAnswer)
	if out.Status == core.StatusFailed {
		answer = r.transcript.LastAssistantText()
	}

	res := r.result(out.Status, answer, state.Iteration(), out.Err)
	res.LastNode = out.LastNode

	return res
}

// build wires the nodes as closures over the run so concurrent runs never
// share state.
func (s *Autonomous) build(r *run, instructions string) (*graph.Graph, error) {
	n := &nodes{s: s, r: r, instructions: instructions}

	return graph.NewBuilder().
		AddNode(NodePlan, n.plan).
		AddNode(NodeAct, n.act).
		AddNode(NodeObserve, n.observe).
		AddNode(NodeReflect, n.reflect).
		AddNode(NodeFinish, n.finish).
		SetEntry(NodePlan).
		SetFinish(NodeFinish).
		Build()
}

type nodes struct {
	s            *Autonomous
	r            *run
	instructions string
}

func (n *nodes) plan(ctx context.Context, st *graph.State) (string, error) {
	st.Set(SlotLastAction, NodePlan)

	instructions := n.instructions
	if fb := st.GetString(SlotFeedback); fb != "" {
		instructions += "\n\nReviewer feedback on your previous attempt: " + fb
	}

	resp, _, err := complete(ctx, n.s.gateway, n.s.opts, n.r.transcript.Messages(), n.s.registry.Definitions(),
		model.WithInstructions(instructions))
	if err != nil {
		return "", err
	}

	calls, err := n.r.appendModelTurn(resp)
	if err != nil {
		return "", err
	}

	if len(calls) > 0 {
		st.Set(SlotPlan, calls)
		return NodeAct, nil
	}

	st.Set(SlotDraftAnswer, resp.Text)

	return NodeReflect, nil
}

func (n *nodes) act(ctx context.Context, st *graph.State) (string, error) {
	pending := plannedCalls(st)
	if len(pending) == 0 {
		return "", fmt.Errorf("no planned tool calls")
	}

	st.Set(SlotLastAction, describeCalls(pending))

	batch := n.s.dispatcher.Dispatch(ctx, pending, tool.WithRequest(n.r.req), tool.WithStrategy(n.s.Kind()))
	st.Set(SlotBatch, batch)

	return NodeObserve, nil
}

func (n *nodes) observe(ctx context.Context, st *graph.State) (string, error) {
	v, _ := st.Get(SlotBatch)

	batch, ok := v.(tool.Batch)
	if !ok {
		return "", fmt.Errorf("no tool batch to observe")
	}

	folded, err := n.r.fold(n.s.registry, batch)
	if err != nil {
		return "", err
	}

	prev, _ := st.Get(SlotObservations)
	observations, _ := prev.([]core.ToolResult)
	st.Set(SlotObservations, append(observations, folded...))

	st.Delete(SlotBatch)

	// undelivered calls stay planned so finish can close them
	if err := ctx.Err(); err != nil {
		return "", err
	}

	st.Delete(SlotPlan)

	return NodeReflect, nil
}

func (n *nodes) reflect(ctx context.Context, st *graph.State) (string, error) {
	st.Set(SlotLastAction, NodeReflect)

	msgs := n.r.transcript.Messages()

	review := "Review the conversation above."
	if draft := st.GetString(SlotDraftAnswer); draft != "" {
		review += "\n\nDraft answer:\n" + draft
	}

	msgs = append(msgs, core.NewUserMessage(review))

	resp, _, err := complete(ctx, n.s.gateway, n.s.opts, msgs, []model.ToolDefinition{verdictDefinition},
		model.WithInstructions(reflectInstruction))
	if err != nil {
		return "", err
	}

	verdict, err := parseVerdict(resp)
	if err != nil {
		return "", err
	}

	st.Set(SlotReflection, verdict)
	n.r.logger.Debug("agent.graph.verdict", "satisfied", verdict.Satisfied, "iteration", st.Iteration())

	answer := verdict.Answer
	if answer == "" {
		answer = st.GetString(SlotDraftAnswer)
	}

	if verdict.Satisfied && answer != "" {
		st.Set(SlotAnswer, answer)
		st.Delete(SlotFeedback)

		return NodeFinish, nil
	}

	feedback := verdict.Feedback
	if feedback == "" {
		feedback = "The answer is incomplete. Gather what is missing and draft a final answer."
	}

	st.Set(SlotFeedback, feedback)
	st.Delete(SlotDraftAnswer)

	return NodePlan, nil
}

// finish settles the answer. On a forced finish it falls back to the best
// partial answer available and closes planned calls that never ran. It never
// calls the model.
func (n *nodes) finish(_ context.Context, st *graph.State) (string, error) {
	if err := n.closePlanned(st); err != nil {
		return "", err
	}

	status := core.StatusCompleted
	if st.Forced() {
		status = core.StatusExhausted
	}

	st.Set(SlotStatus, string(status))

	answer := st.GetString(SlotAnswer)
	if answer == "" {
		answer = st.GetString(SlotDraftAnswer)
	}

	if answer == "" {
		answer = n.r.transcript.LastAssistantText()
	}

	st.Set(SlotAnswer, answer)

	if answer != "" && answer != n.r.transcript.LastAssistantText() && len(n.r.transcript.Pending()) == 0 {
		if err := n.r.transcript.Append(core.NewAssistantMessage(answer)); err != nil {
			return "", err
		}
	}

	return graph.End, nil
}

// closePlanned records a failed result for every planned call still waiting
// for one, so the transcript never ends with an unanswered tool call.
func (n *nodes) closePlanned(st *graph.State) error {
	pending := n.r.transcript.Pending()
	if len(pending) == 0 {
		return nil
	}

	open := make(map[string]bool, len(pending))
	for _, id := range pending {
		open[id] = true
	}

	for _, c := range plannedCalls(st) {
		if !open[c.ID] {
			continue
		}

		if err := n.r.transcript.Append(core.NewToolMessage(core.FailedResult(c, tool.ErrAbandoned))); err != nil {
			return err
		}
	}

	st.Delete(SlotPlan)

	return nil
}

func plannedCalls(st *graph.State) []core.ToolCall {
	v, _ := st.Get(SlotPlan)
	calls, _ := v.([]core.ToolCall)

	return calls
}

// parseVerdict reads a submit_verdict call, falling back to the
// "SATISFIED: <answer>" text convention.
func parseVerdict(resp *model.Response) (Verdict, error) {
	for _, c := range resp.ToolCalls {
		if c.Name != VerdictToolName {
			continue
		}

		var v Verdict
		if err := json.Unmarshal(c.Arguments, &v); err != nil {
			return Verdict{}, core.NewDataError("malformed verdict", VerdictToolName, "arguments", err)
		}

		return v, nil
	}

	text := strings.TrimSpace(resp.Text)
	if rest, ok := strings.CutPrefix(text, SatisfiedPrefix); ok {
		return Verdict{Satisfied: true, Answer: strings.TrimSpace(rest)}, nil
	}

	return Verdict{Satisfied: false, Feedback: text}, nil
}
