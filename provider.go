package neobank

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/neobank/agent"
	"github.com/hupe1980/neobank/config"
	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
	"github.com/hupe1980/neobank/model/anthropic"
	"github.com/hupe1980/neobank/model/openai"
	"github.com/hupe1980/neobank/tool"
)

// NewModel builds the provider model selected by the settings.
func NewModel(s *config.Settings) (model.Model, error) {
	switch s.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = s.OpenAIModel
			o.Temperature = s.OpenAITemperature
			o.MaxCompletionTokens = int64(s.OpenAIMaxTokens)
			o.APIKey = s.OpenAIAPIKey

			if s.UseAzure() {
				o.AzureEndpoint = s.AzureOpenAIEndpoint
				o.AzureAPIKey = s.AzureOpenAIAPIKey
				o.AzureDeployment = s.AzureOpenAIDeployment
				o.AzureAPIVersion = s.AzureOpenAIAPIVersion
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(s.AnthropicModel)
			o.Temperature = s.AnthropicTemperature
			o.MaxTokens = int64(s.AnthropicMaxTokens)
			o.APIKey = s.AnthropicAPIKey
		}), nil
	default:
		return nil, core.NewConfigurationError("unknown model provider", map[string]any{config.DetailFields: "llm_provider"})
	}
}

// WithSettings maps the orchestration settings onto Options.
func WithSettings(s *config.Settings) func(o *Options) {
	return func(o *Options) {
		o.DefaultStrategy = s.Strategy()
		o.Timeout = s.Timeout
		o.MaxConcurrentRuns = s.MaxConcurrentRuns
		o.Agent = append(o.Agent, func(ao *agent.Options) {
			ao.MaxIterations = s.MaxIterations
			ao.MaxUnknownToolAttempts = s.MaxUnknownToolAttempts
			ao.ModelRetries = s.ModelRetries
			ao.ToolParallelism = s.ToolParallelism
			ao.ToolGracePeriod = s.ToolGracePeriod
		})
	}
}

// NewFromSettings builds the provider model, its gateway and the Assistant
// from validated settings. optFns are applied after the settings.
func NewFromSettings(s *config.Settings, reg *tool.Registry, optFns ...func(o *Options)) (*Assistant, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	m, err := NewModel(s)
	if err != nil {
		return nil, err
	}

	fns := append([]func(o *Options){WithSettings(s)}, optFns...)

	var resolved Options
	for _, fn := range fns {
		fn(&resolved)
	}

	gw := model.NewGateway(m, func(o *model.GatewayOptions) {
		o.RequestsPerSecond = s.RequestsPerSecond

		if resolved.Logger != nil {
			o.Logger = resolved.Logger
		}

		if resolved.Metrics != nil {
			o.Observer = resolved.Metrics
		}

		o.TracerProvider = resolved.TracerProvider
	})

	return New(gw, reg, fns...)
}
