package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
)

func noEnvFiles(o *LoadOptions) { o.EnvFiles = nil }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_TEMPERATURE", "0.5")
	t.Setenv("AGENT_TIMEOUT", "45s")
	t.Setenv("AGENT_DEFAULT_STRATEGY", "autonomous-graph")
	t.Setenv("LANGCHAIN_TRACING_V2", "true")

	s, err := Load(noEnvFiles)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", s.OpenAIAPIKey)
	assert.Equal(t, "gpt-4o", s.OpenAIModel)
	assert.InDelta(t, 0.5, s.OpenAITemperature, 1e-9)
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.Equal(t, core.StrategyAutonomousGraph, s.Strategy())
	assert.True(t, s.LangChainTracingV2)
	assert.False(t, s.LangSmithEnabled(), "tracing without api key stays off")
	assert.Equal(t, 2000, s.OpenAIMaxTokens)
	assert.True(t, s.IsDevelopment())
}

func TestLoad_YAMLWithExpansionAndEnvOverride(t *testing.T) {
	t.Setenv("NEOBANK_TEST_KEY", "sk-from-file")
	t.Setenv("OPENAI_MAX_TOKENS", "512")

	path := writeFile(t, "neobank.yaml", `
openai_api_key: ${NEOBANK_TEST_KEY}
openai_model: ${NEOBANK_TEST_MODEL:-gpt-4-turbo}
openai_max_tokens: 1000
app_env: staging
agent_max_iterations: 4
agent_tool_grace_period: 500ms
`)

	s, err := Load(noEnvFiles, func(o *LoadOptions) { o.File = path })
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", s.OpenAIAPIKey)
	assert.Equal(t, "gpt-4-turbo", s.OpenAIModel)
	assert.Equal(t, 512, s.OpenAIMaxTokens, "environment wins over file")
	assert.Equal(t, EnvStaging, s.AppEnv)
	assert.Equal(t, 4, s.MaxIterations)
	assert.Equal(t, 500*time.Millisecond, s.ToolGracePeriod)
}

func TestLoad_UnknownFileKey(t *testing.T) {
	path := writeFile(t, "bad.yaml", "openai_api_key: x\nopenai_modle: gpt-4o\n")

	_, err := Load(func(o *LoadOptions) {
		o.File = path
		o.SkipEnv = true
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "OPENAI_API_KEY=sk-dotenv\nLOG_LEVEL=debug\n")

	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("LOG_LEVEL", "ERROR")

	s, err := Load(func(o *LoadOptions) { o.EnvFiles = []string{path, "does-not-exist.env"} })
	require.NoError(t, err)

	assert.Equal(t, "sk-dotenv", s.OpenAIAPIKey)
	assert.Equal(t, "ERROR", s.LogLevel, "existing environment is not overwritten")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.OpenAIAPIKey = "sk"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(s *Settings)
		fields string
	}{
		{"missing key", func(s *Settings) { s.OpenAIAPIKey = "" }, "openai_api_key"},
		{"temperature", func(s *Settings) { s.OpenAITemperature = 2.5 }, "openai_temperature"},
		{"max tokens", func(s *Settings) { s.OpenAIMaxTokens = 0 }, "openai_max_tokens"},
		{"app env", func(s *Settings) { s.AppEnv = "qa" }, "app_env"},
		{"log level", func(s *Settings) { s.LogLevel = "TRACE" }, "log_level"},
		{"strategy", func(s *Settings) { s.DefaultStrategy = "swarm" }, "agent_default_strategy"},
		{"provider", func(s *Settings) { s.Provider = "cohere" }, "llm_provider"},
		{"anthropic key", func(s *Settings) { s.Provider = ProviderAnthropic }, "anthropic_api_key"},
		{"anthropic temperature", func(s *Settings) { s.AnthropicTemperature = 1.5 }, "anthropic_temperature"},
		{"anthropic max tokens", func(s *Settings) { s.AnthropicMaxTokens = 0 }, "anthropic_max_tokens"},
		{"several", func(s *Settings) {
			s.MaxIterations = 0
			s.Timeout = 0
		}, "agent_max_iterations,agent_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)

			err := s.Validate()
			require.ErrorIs(t, err, core.ErrConfiguration)

			var cerr *core.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.fields, cerr.Details[DetailFields])
		})
	}
}

func TestAzure(t *testing.T) {
	s := Default()
	s.AzureOpenAIEndpoint = "https://bank.openai.azure.com"
	s.AzureOpenAIAPIKey = "az-key"
	assert.False(t, s.UseAzure(), "deployment is required too")

	s.AzureOpenAIDeployment = "gpt4o-prod"
	assert.True(t, s.UseAzure())
	assert.NoError(t, s.Validate(), "azure replaces the openai key")

	opts := s.LLMOptions()
	assert.Equal(t, "az-key", opts["api_key"])
	assert.Equal(t, "gpt4o-prod", opts["azure_deployment"])
	assert.NotContains(t, opts, "model")
}

func TestLLMOptions_OpenAI(t *testing.T) {
	s := Default()
	s.OpenAIAPIKey = "sk"

	assert.Equal(t, map[string]any{
		"api_key":     "sk",
		"model":       "gpt-4o-mini",
		"temperature": 0.1,
		"max_tokens":  2000,
	}, s.LLMOptions())
}

func TestLLMOptions_AnthropicUsesItsOwnSampling(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("ANTHROPIC_TEMPERATURE", "0.7")
	t.Setenv("ANTHROPIC_MAX_TOKENS", "4096")
	t.Setenv("OPENAI_TEMPERATURE", "1.9")

	s, err := Load(noEnvFiles)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"api_key":     "ak",
		"model":       "claude-3-5-sonnet-20241022",
		"temperature": 0.7,
		"max_tokens":  4096,
	}, s.LLMOptions())
}

func TestString_RedactsSecrets(t *testing.T) {
	s := Default()
	s.OpenAIAPIKey = "sk-very-secret"
	s.LangChainAPIKey = "ls-secret"
	s.LangChainTracingV2 = true
	s.AppEnv = EnvProduction

	out := s.String()
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, `env="production"`)
	assert.Contains(t, out, "langsmith=true")
	assert.True(t, s.IsProduction())
}

func TestLoggerConfig(t *testing.T) {
	s := Default()
	s.LogLevel = "warning"
	s.LogFormat = "console"

	cfg := s.LoggerConfig()
	assert.Equal(t, logging.LogLevelWarn, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Development)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("NEOBANK_SET", "value")

	assert.Equal(t, "value", expandEnv("${NEOBANK_SET}"))
	assert.Equal(t, "value", expandEnv("${NEOBANK_SET:-fallback}"))
	assert.Equal(t, "fallback", expandEnv("${NEOBANK_UNSET_VAR:-fallback}"))
	assert.Equal(t, "", expandEnv("${NEOBANK_UNSET_VAR}"))
	assert.Equal(t, "plain $text", expandEnv("plain $text"))

	data := expandEnvInData(map[string]any{"list": []any{"${NEOBANK_SET}", 3}})
	assert.Equal(t, map[string]any{"list": []any{"value", 3}}, data)
}
