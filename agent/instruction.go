package agent

import (
	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/internal/util"
)

// Provider supplies instruction text derived from the request.
type Provider interface {
	Instruction(req core.Request) (string, error)
}

// Func adapts a function to Provider.
type Func func(req core.Request) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(req core.Request) (string, error) { return f(req) }

// Instruction is either a static template or a dynamic provider.
//
// Static text may reference the request context with template markers, e.g.
// "The customer's account is {{ .account_id }}.". The question itself is
// available as {{ .question }}.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(req core.Request) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic reports whether the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text for req.
func (i Instruction) Resolve(req core.Request) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(req)
	}

	data := make(map[string]any, len(req.Context())+1)
	for k, v := range req.Context() {
		data[k] = v
	}

	data["question"] = req.Text()

	return util.RenderTemplate(i.text, data)
}
