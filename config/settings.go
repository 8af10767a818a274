// Package config loads the assistant settings from dotenv files, an optional
// YAML file and the process environment.
package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
)

// Providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Application environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// DetailFields lists the invalid settings of a ConfigurationError.
const DetailFields = "fields"

// Settings is the complete runtime configuration. Every field maps to the
// environment variable named by its upper-cased mapstructure tag, e.g.
// OpenAIModel <- OPENAI_MODEL.
type Settings struct {
	Provider string `mapstructure:"llm_provider" yaml:"llm_provider"`

	OpenAIAPIKey      string  `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel       string  `mapstructure:"openai_model" yaml:"openai_model"`
	OpenAITemperature float64 `mapstructure:"openai_temperature" yaml:"openai_temperature"`
	OpenAIMaxTokens   int     `mapstructure:"openai_max_tokens" yaml:"openai_max_tokens"`

	AnthropicAPIKey      string  `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	AnthropicModel       string  `mapstructure:"anthropic_model" yaml:"anthropic_model"`
	AnthropicTemperature float64 `mapstructure:"anthropic_temperature" yaml:"anthropic_temperature"`
	AnthropicMaxTokens   int     `mapstructure:"anthropic_max_tokens" yaml:"anthropic_max_tokens"`

	AzureOpenAIEndpoint   string `mapstructure:"azure_openai_endpoint" yaml:"azure_openai_endpoint"`
	AzureOpenAIAPIKey     string `mapstructure:"azure_openai_api_key" yaml:"azure_openai_api_key"`
	AzureOpenAIDeployment string `mapstructure:"azure_openai_deployment" yaml:"azure_openai_deployment"`
	AzureOpenAIAPIVersion string `mapstructure:"azure_openai_api_version" yaml:"azure_openai_api_version"`

	LangChainTracingV2 bool   `mapstructure:"langchain_tracing_v2" yaml:"langchain_tracing_v2"`
	LangChainAPIKey    string `mapstructure:"langchain_api_key" yaml:"langchain_api_key"`
	LangChainProject   string `mapstructure:"langchain_project" yaml:"langchain_project"`

	AppEnv    string `mapstructure:"app_env" yaml:"app_env"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DefaultStrategy        string        `mapstructure:"agent_default_strategy" yaml:"agent_default_strategy"`
	MaxIterations          int           `mapstructure:"agent_max_iterations" yaml:"agent_max_iterations"`
	Timeout                time.Duration `mapstructure:"agent_timeout" yaml:"agent_timeout"`
	ToolGracePeriod        time.Duration `mapstructure:"agent_tool_grace_period" yaml:"agent_tool_grace_period"`
	ModelRetries           int           `mapstructure:"agent_model_retries" yaml:"agent_model_retries"`
	MaxUnknownToolAttempts int           `mapstructure:"agent_max_unknown_tool_attempts" yaml:"agent_max_unknown_tool_attempts"`
	ToolParallelism        int           `mapstructure:"agent_tool_parallelism" yaml:"agent_tool_parallelism"`
	MaxConcurrentRuns      int           `mapstructure:"agent_max_concurrent_runs" yaml:"agent_max_concurrent_runs"`
	RequestsPerSecond      float64       `mapstructure:"model_requests_per_second" yaml:"model_requests_per_second"`
}

// Default returns the settings used when nothing overrides them. It carries
// no API key and therefore does not validate on its own.
func Default() Settings {
	return Settings{
		Provider:               ProviderOpenAI,
		OpenAIModel:            "gpt-4o-mini",
		OpenAITemperature:      0.1,
		OpenAIMaxTokens:        2000,
		AnthropicModel:         "claude-3-5-sonnet-20241022",
		AnthropicTemperature:   0.1,
		AnthropicMaxTokens:     2000,
		AzureOpenAIAPIVersion:  "2024-02-15-preview",
		LangChainProject:       "neobank-assistant",
		AppEnv:                 EnvDevelopment,
		LogLevel:               "INFO",
		LogFormat:              "json",
		DefaultStrategy:        string(core.StrategyAgentic),
		MaxIterations:          10,
		Timeout:                2 * time.Minute,
		ToolGracePeriod:        2 * time.Second,
		ModelRetries:           3,
		MaxUnknownToolAttempts: 3,
		MaxConcurrentRuns:      10,
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	// File is an optional YAML file. ${VAR} and ${VAR:-default} references
	// in its values are expanded.
	File string
	// EnvFiles are dotenv files loaded before reading the environment.
	EnvFiles []string
	// SkipEnv ignores the process environment (dotenv files included).
	SkipEnv bool
}

// Load resolves settings in increasing priority: defaults, YAML file,
// environment. The result is validated.
func Load(optFns ...func(o *LoadOptions)) (*Settings, error) {
	opts := LoadOptions{EnvFiles: DefaultEnvFiles}

	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.SkipEnv {
		if err := LoadEnvFiles(opts.EnvFiles...); err != nil {
			return nil, core.NewConfigurationError("load dotenv files", nil).WithCause(err)
		}
	}

	raw := map[string]any{}

	if opts.File != "" {
		fileValues, err := readFile(opts.File)
		if err != nil {
			return nil, core.NewConfigurationError("read settings file", map[string]any{"file": opts.File}).WithCause(err)
		}

		for k, v := range fileValues {
			raw[k] = v
		}
	}

	if !opts.SkipEnv {
		for _, key := range keys() {
			if v, ok := os.LookupEnv(strings.ToUpper(key)); ok {
				raw[key] = v
			}
		}
	}

	s := Default()
	if err := decode(raw, &s); err != nil {
		return nil, core.NewConfigurationError("decode settings", nil).WithCause(err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func readFile(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	expanded, _ := expandEnvInData(doc).(map[string]any)

	return expanded, nil
}

func decode(raw map[string]any, out *Settings) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	return dec.Decode(raw)
}

// keys returns the mapstructure tags of Settings.
func keys() []string {
	t := reflect.TypeOf(Settings{})
	out := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			out = append(out, tag)
		}
	}

	return out
}

// Validate checks ranges and required values. All violations are reported in
// one ConfigurationError.
func (s *Settings) Validate() error {
	invalid := map[string]string{}

	switch s.Provider {
	case ProviderOpenAI:
		if s.OpenAIAPIKey == "" && !s.UseAzure() {
			invalid["openai_api_key"] = "required"
		}
	case ProviderAnthropic:
		if s.AnthropicAPIKey == "" {
			invalid["anthropic_api_key"] = "required"
		}
	default:
		invalid["llm_provider"] = fmt.Sprintf("unknown provider %q", s.Provider)
	}

	if s.OpenAITemperature < 0 || s.OpenAITemperature > 2 {
		invalid["openai_temperature"] = "must be within [0, 2]"
	}

	if s.OpenAIMaxTokens < 1 || s.OpenAIMaxTokens > 128000 {
		invalid["openai_max_tokens"] = "must be within [1, 128000]"
	}

	if s.AnthropicTemperature < 0 || s.AnthropicTemperature > 1 {
		invalid["anthropic_temperature"] = "must be within [0, 1]"
	}

	if s.AnthropicMaxTokens < 1 || s.AnthropicMaxTokens > 64000 {
		invalid["anthropic_max_tokens"] = "must be within [1, 64000]"
	}

	switch s.AppEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		invalid["app_env"] = fmt.Sprintf("unknown environment %q", s.AppEnv)
	}

	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		invalid["log_level"] = err.Error()
	}

	if _, err := core.ParseStrategy(s.DefaultStrategy); err != nil {
		invalid["agent_default_strategy"] = fmt.Sprintf("unknown strategy %q", s.DefaultStrategy)
	}

	if s.MaxIterations < 1 {
		invalid["agent_max_iterations"] = "must be positive"
	}

	if s.Timeout <= 0 {
		invalid["agent_timeout"] = "must be positive"
	}

	if s.ToolGracePeriod < 0 {
		invalid["agent_tool_grace_period"] = "must not be negative"
	}

	if s.ModelRetries < 1 {
		invalid["agent_model_retries"] = "must be positive"
	}

	if s.MaxUnknownToolAttempts < 1 {
		invalid["agent_max_unknown_tool_attempts"] = "must be positive"
	}

	if s.ToolParallelism < 0 {
		invalid["agent_tool_parallelism"] = "must not be negative"
	}

	if s.MaxConcurrentRuns < 0 {
		invalid["agent_max_concurrent_runs"] = "must not be negative"
	}

	if s.RequestsPerSecond < 0 {
		invalid["model_requests_per_second"] = "must not be negative"
	}

	if len(invalid) == 0 {
		return nil
	}

	fields := make([]string, 0, len(invalid))
	for f := range invalid {
		fields = append(fields, f)
	}

	sort.Strings(fields)

	reasons := make([]string, len(fields))
	for i, f := range fields {
		reasons[i] = f + ": " + invalid[f]
	}

	return core.NewConfigurationError("invalid settings: "+strings.Join(reasons, "; "), map[string]any{
		DetailFields: strings.Join(fields, ","),
	})
}

// IsProduction reports whether the app runs in production.
func (s *Settings) IsProduction() bool { return s.AppEnv == EnvProduction }

// IsDevelopment reports whether the app runs in development.
func (s *Settings) IsDevelopment() bool { return s.AppEnv == EnvDevelopment }

// UseAzure reports whether Azure OpenAI is fully configured.
func (s *Settings) UseAzure() bool {
	return s.AzureOpenAIEndpoint != "" && s.AzureOpenAIAPIKey != "" && s.AzureOpenAIDeployment != ""
}

// LangSmithEnabled reports whether LangSmith tracing is switched on and
// has credentials. It also enables span export in the CLI.
func (s *Settings) LangSmithEnabled() bool {
	return s.LangChainTracingV2 && s.LangChainAPIKey != ""
}

// Strategy returns the parsed default strategy.
func (s *Settings) Strategy() core.StrategyKind {
	k, err := core.ParseStrategy(s.DefaultStrategy)
	if err != nil {
		return core.StrategyAgentic
	}

	return k
}

// LoggerConfig maps the log settings onto logging.Config.
func (s *Settings) LoggerConfig() logging.Config {
	level, _ := logging.ParseLevel(s.LogLevel)

	return logging.Config{
		Level:       level,
		Format:      s.LogFormat,
		Development: s.IsDevelopment(),
	}
}

// LLMOptions returns the provider arguments. Azure settings replace model and
// key when configured.
func (s *Settings) LLMOptions() map[string]any {
	if s.Provider == ProviderAnthropic {
		return map[string]any{
			"api_key":     s.AnthropicAPIKey,
			"model":       s.AnthropicModel,
			"temperature": s.AnthropicTemperature,
			"max_tokens":  s.AnthropicMaxTokens,
		}
	}

	if s.UseAzure() {
		return map[string]any{
			"azure_endpoint":   s.AzureOpenAIEndpoint,
			"api_key":          s.AzureOpenAIAPIKey,
			"azure_deployment": s.AzureOpenAIDeployment,
			"api_version":      s.AzureOpenAIAPIVersion,
			"temperature":      s.OpenAITemperature,
			"max_tokens":       s.OpenAIMaxTokens,
		}
	}

	return map[string]any{
		"api_key":     s.OpenAIAPIKey,
		"model":       s.OpenAIModel,
		"temperature": s.OpenAITemperature,
		"max_tokens":  s.OpenAIMaxTokens,
	}
}

// String renders the settings without secrets.
func (s *Settings) String() string {
	model := s.OpenAIModel
	if s.Provider == ProviderAnthropic {
		model = s.AnthropicModel
	}

	return fmt.Sprintf("Settings(provider=%q, model=%q, env=%q, azure=%t, langsmith=%t, strategy=%q)",
		s.Provider, model, s.AppEnv, s.UseAzure(), s.LangSmithEnabled(), s.DefaultStrategy)
}
