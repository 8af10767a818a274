package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/tool"
)

// ToolDefinition exposes a callable tool to the model.
type ToolDefinition = tool.Definition

// Request captures the normalized model input.
type Request struct {
	Instructions string           `json:"instructions,omitempty"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. A final
// response carries either text, tool calls, or both.
type Response struct {
	ID           string          `json:"id,omitempty"`
	Partial      bool            `json:"partial"`
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", ...
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response requests tool invocations.
func (r *Response) HasToolCalls() bool { return r != nil && len(r.ToolCalls) > 0 }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the provider contract. Implementations send zero or more partial
// responses followed by one final response on the first channel, or a single
// error on the second. Both channels are closed when generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrScriptExhausted is returned by MockModel when no scripted step is left.
var ErrScriptExhausted = errors.New("mock model: script exhausted")

// MockStep is one scripted MockModel turn: a response or an error.
type MockStep struct {
	Response Response
	Err      error
}

// MockModel is a scripted in-memory Model for tests and examples.
//
// Steps are consumed in order. When the script runs out, the last step is
// repeated if Repeat was set, otherwise ErrScriptExhausted is returned.
// Canned text answers registered with AddResponse take precedence and are
// matched against the last user message.
type MockModel struct {
	info Info

	mu        sync.Mutex
	steps     []MockStep
	repeat    bool
	responses map[string]string
	requests  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	m.responses[prompt] = response
	m.mu.Unlock()
}

// Script appends steps.
func (m *MockModel) Script(steps ...MockStep) *MockModel {
	m.mu.Lock()
	m.steps = append(m.steps, steps...)
	m.mu.Unlock()

	return m
}

// Repeat makes the final step answer every further request.
func (m *MockModel) Repeat() *MockModel {
	m.mu.Lock()
	m.repeat = true
	m.mu.Unlock()

	return m
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Calls returns the number of Generate calls.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	step := m.next(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		if step.Err != nil {
			errCh <- step.Err
			return
		}

		resp := step.Response
		resp.Partial = false

		if resp.FinishReason == "" {
			resp.FinishReason = "stop"
			if len(resp.ToolCalls) > 0 {
				resp.FinishReason = "tool_calls"
			}
		}

		respCh <- resp
	}()

	return respCh, errCh
}

func (m *MockModel) next(req Request) MockStep {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if text, ok := m.responses[lastUserText(req.Messages)]; ok {
		return MockStep{Response: Response{Text: text}}
	}

	switch {
	case len(m.steps) > 1 || (len(m.steps) == 1 && !m.repeat):
		s := m.steps[0]
		m.steps = m.steps[1:]

		return s
	case len(m.steps) == 1:
		return m.steps[0]
	default:
		return MockStep{Err: ErrScriptExhausted}
	}
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func lastUserText(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return msgs[i].Content
		}
	}

	return ""
}
