package testutil

import (
	"encoding/json"

	"github.com/hupe1980/neobank/agent"
	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
)

// ScriptBuilder assembles the turns of a scripted model.
// Example:
//
//	m := NewScript().Call("get_balance", `{}`).Then().Text("10 EUR").Model()
//
// Calls and text added before Then belong to the same turn.
type ScriptBuilder struct {
	steps   []model.MockStep
	current *model.MockStep
	repeat  bool
}

// NewScript creates an empty script.
func NewScript() *ScriptBuilder { return &ScriptBuilder{} }

func (b *ScriptBuilder) turn() *model.MockStep {
	if b.current == nil {
		b.current = &model.MockStep{}
	}

	return b.current
}

// Text sets the text of the current turn (chainable).
func (b *ScriptBuilder) Text(t string) *ScriptBuilder {
	b.turn().Response.Text = t
	return b
}

// Call adds a tool call with a JSON argument string to the current turn (chainable).
func (b *ScriptBuilder) Call(name, args string) *ScriptBuilder {
	s := b.turn()
	s.Response.ToolCalls = append(s.Response.ToolCalls, core.ToolCall{Name: name, Arguments: json.RawMessage(args)})

	return b
}

// Verdict adds a reflection verdict call to the current turn (chainable).
func (b *ScriptBuilder) Verdict(satisfied bool, answer, feedback string) *ScriptBuilder {
	args, _ := json.Marshal(agent.Verdict{Satisfied: satisfied, Answer: answer, Feedback: feedback})
	return b.Call(agent.VerdictToolName, string(args))
}

// Fail makes the current turn a provider failure (chainable).
func (b *ScriptBuilder) Fail(err error) *ScriptBuilder {
	b.turn().Err = err
	return b
}

// Then closes the current turn (chainable).
func (b *ScriptBuilder) Then() *ScriptBuilder {
	if b.current != nil {
		b.steps = append(b.steps, *b.current)
		b.current = nil
	}

	return b
}

// Repeat answers every request beyond the script with its last turn (chainable).
func (b *ScriptBuilder) Repeat() *ScriptBuilder {
	b.repeat = true
	return b
}

// Steps returns the closed turns.
func (b *ScriptBuilder) Steps() []model.MockStep {
	b.Then()

	out := make([]model.MockStep, len(b.steps))
	copy(out, b.steps)

	return out
}

// Model builds a MockModel playing the script.
func (b *ScriptBuilder) Model() *model.MockModel {
	m := model.NewMockModel("mock-model", "mock").Script(b.Steps()...)
	if b.repeat {
		m.Repeat()
	}

	return m
}

// Roles returns the role sequence of a transcript.
func Roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}

	return out
}
