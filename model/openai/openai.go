// Package openai implements model.Model on top of the OpenAI Chat Completions
// API, including Azure OpenAI deployments.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
)

// DefaultAzureAPIVersion is used when Options.AzureAPIVersion is empty.
const DefaultAzureAPIVersion = "2024-02-15-preview"

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string

	// Azure OpenAI. When AzureEndpoint is set, requests are routed to the
	// deployment and authenticated with the api-key header.
	AzureEndpoint   string
	AzureAPIKey     string
	AzureDeployment string
	AzureAPIVersion string
}

// UseAzure reports whether the Azure endpoint is configured.
func (o Options) UseAzure() bool { return o.AzureEndpoint != "" }

// Model wraps the OpenAI Chat Completions API behind model.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI (or Azure OpenAI) model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client := openai.NewClient(clientOptions(opts)...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.1,
		MaxCompletionTokens: 2000,
	}
}

func clientOptions(opts Options) []option.RequestOption {
	if !opts.UseAzure() {
		if opts.APIKey == "" {
			return nil
		}

		return []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	}

	version := opts.AzureAPIVersion
	if version == "" {
		version = DefaultAzureAPIVersion
	}

	deployment := opts.AzureDeployment
	if deployment == "" {
		deployment = opts.Model
	}

	base := strings.TrimRight(opts.AzureEndpoint, "/") + "/openai/deployments/" + deployment + "/"

	return []option.RequestOption{
		option.WithBaseURL(base),
		option.WithQuery("api-version", version),
		option.WithHeader("api-key", opts.AzureAPIKey),
	}
}

// Generate implements model.Model with a single non-streaming completion.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("openai api error: %w", err)
			return
		}

		r, err := toResponse(resp)
		if err != nil {
			errCh <- err
			return
		}

		out <- r
	}()

	return out, errCh
}

// buildParams assembles the request parameters including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, def := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}

	params.Tools = tools

	return params
}

// buildMessages converts the transcript into chat messages. Tool results keep
// their position right after the assistant message that requested them.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}

			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCallParams(msg.ToolCalls),
			}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}

			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case core.RoleTool:
			if msg.ToolResult == nil {
				continue
			}

			messages = append(messages, openai.ToolMessage(msg.ToolResult.ResultText(), msg.ToolResult.CallID))
		}
	}

	return messages
}

func toolCallParams(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, c := range calls {
		args := string(c.Arguments)
		if args == "" {
			args = "{}"
		}

		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   c.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: args,
			},
		}
	}

	return out
}

func toResponse(resp *openai.ChatCompletion) (model.Response, error) {
	if len(resp.Choices) == 0 {
		return model.Response{}, fmt.Errorf("openai api error: no choices returned")
	}

	ch0 := resp.Choices[0]

	r := model.Response{
		ID:           resp.ID,
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}

	for _, tc := range ch0.Message.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return r, nil
}

// Info returns metadata describing this model.
func (m *Model) Info() model.Info {
	provider := "openai"
	if m.opts.UseAzure() {
		provider = "azure_openai"
	}

	return model.Info{
		Name:          m.opts.Model,
		Provider:      provider,
		SupportsTools: true,
	}
}
