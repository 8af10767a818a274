// Package anthropic implements model.Model on top of the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind model.Model.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   2000,
	}
}

// Generate implements model.Model with a single non-streaming call.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Messages.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- toResponse(resp)
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if system := systemBlocks(req); len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

// buildMessages converts the transcript into alternating user/assistant
// messages. Consecutive tool results are grouped into one user message of
// tool_result blocks, as the Messages API requires.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		results  []anthropic.ContentBlockParamUnion
	)

	flush := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleTool:
			if msg.ToolResult != nil {
				r := msg.ToolResult
				results = append(results, anthropic.NewToolResultBlock(r.CallID, r.ResultText(), !r.Success))
			}
		case core.RoleUser:
			flush()

			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleAssistant:
			flush()

			if content := assistantContent(msg); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		}
	}

	flush()

	return messages
}

func assistantContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	if msg.Content != "" {
		content = append(content, anthropic.NewTextBlock(msg.Content))
	}

	for _, c := range msg.ToolCalls {
		var input any = map[string]any{}
		if len(c.Arguments) > 0 {
			if err := json.Unmarshal(c.Arguments, &input); err != nil {
				input = string(c.Arguments)
			}
		}

		content = append(content, anthropic.NewToolUseBlock(c.ID, input, c.Name))
	}

	return content
}

func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}

	return blocks
}

func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))

	for i, def := range defs {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if props, ok := def.Parameters["properties"]; ok {
			schema.Properties = props
		}

		schema.Required = requiredFields(def.Parameters["required"])

		tools[i] = anthropic.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" {
			tools[i].OfTool.Description = anthropic.String(def.Description)
		}
	}

	return tools
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func toResponse(resp *anthropic.Message) model.Response {
	r := model.Response{
		ID:           resp.ID,
		FinishReason: "stop",
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	if resp.StopReason != "" {
		r.FinishReason = string(resp.StopReason)
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			r.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()

			var args json.RawMessage
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil {
					args = b
				}
			}

			r.ToolCalls = append(r.ToolCalls, core.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}

	return r
}

// Info returns metadata describing this model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
