package neobank_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/neobank"
	"github.com/hupe1980/neobank/agent"
	"github.com/hupe1980/neobank/config"
	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/internal/testutil"
	"github.com/hupe1980/neobank/metrics"
	"github.com/hupe1980/neobank/model"
	"github.com/hupe1980/neobank/tool"
)

func newAssistant(t *testing.T, m model.Model, reg *tool.Registry, optFns ...func(o *neobank.Options)) *neobank.Assistant {
	t.Helper()

	a, err := neobank.New(model.NewGateway(m), reg, optFns...)
	require.NoError(t, err)

	return a
}

func TestAssistant_DefaultStrategy(t *testing.T) {
	bal, rec := testutil.NewTool("get_balance").Returns(map[string]any{"balance": 42.0}).Build()

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(bal))

	m := testutil.NewScript().
		Call("get_balance", `{}`).Then().
		Text("You have 42 EUR").
		Model()

	a := newAssistant(t, m, reg)
	assert.Equal(t, core.StrategyAgentic, a.DefaultStrategy())

	req := core.NewRequest("balance?", map[string]string{core.ContextAccountID: "acc-9"})
	res, err := a.Run(context.Background(), req, "")
	require.NoError(t, err)

	assert.Equal(t, core.StrategyAgentic, res.Strategy)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "You have 42 EUR", res.Answer)
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant, core.RoleTool, core.RoleAssistant}, testutil.Roles(res.Transcript))

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "acc-9", calls[0].AccountID)
	assert.Equal(t, core.StrategyAgentic, calls[0].Strategy)
}

func TestAssistant_RunsEachStrategy(t *testing.T) {
	tests := []struct {
		kind   core.StrategyKind
		script *testutil.ScriptBuilder
		answer string
	}{
		{core.StrategyNonAgentic, testutil.NewScript().Text("direct"), "direct"},
		{core.StrategyAgentic, testutil.NewScript().Text("react"), "react"},
		{core.StrategyAutonomousGraph, testutil.NewScript().Text("draft").Then().Verdict(true, "graph", ""), "graph"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			a := newAssistant(t, tt.script.Model(), nil)

			res, err := a.Run(context.Background(), core.NewRequest("q", nil), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, res.Strategy)
			assert.Equal(t, tt.answer, res.Answer)
		})
	}
}

func TestAssistant_KindIsParsedLeniently(t *testing.T) {
	a := newAssistant(t, testutil.NewScript().Text("ok").Model(), nil)

	res, err := a.Run(context.Background(), core.NewRequest("q", nil), "Non-Agentic")
	require.NoError(t, err)
	assert.Equal(t, core.StrategyNonAgentic, res.Strategy)
}

func TestAssistant_UnknownKind(t *testing.T) {
	m := testutil.NewScript().Text("never").Model()
	a := newAssistant(t, m, nil)

	res, err := a.Run(context.Background(), core.NewRequest("q", nil), "swarm")

	assert.ErrorIs(t, err, core.ErrConfiguration)
	require.NotNil(t, res)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Zero(t, m.Calls())
}

func TestNew_Validation(t *testing.T) {
	_, err := neobank.New(nil, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = neobank.New(model.NewGateway(model.NewMockModel("m", "mock")), nil, func(o *neobank.Options) {
		o.DefaultStrategy = "swarm"
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNew_FreezesRegistry(t *testing.T) {
	reg := tool.NewRegistry()
	newAssistant(t, model.NewMockModel("m", "mock"), reg)

	late, _ := testutil.NewTool("late").Build()
	assert.ErrorIs(t, reg.Register(late), core.ErrConfiguration)
}

func TestAssistant_TimeoutExhausts(t *testing.T) {
	slow, _ := testutil.NewTool("list_transactions").Delay(5 * time.Second).Build()

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(slow))

	m := testutil.NewScript().Text("looking").Call("list_transactions", `{}`).Repeat().Model()
	a := newAssistant(t, m, reg, func(o *neobank.Options) {
		o.Timeout = 100 * time.Millisecond
		o.Agent = append(o.Agent, func(ao *agent.Options) { ao.ToolGracePeriod = 10 * time.Millisecond })
	})

	start := time.Now()
	res, err := a.Run(context.Background(), core.NewRequest("q", nil), core.StrategyAgentic)

	require.NoError(t, err)
	assert.Equal(t, core.StatusExhausted, res.Status)
	assert.Equal(t, "looking", res.Answer)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAssistant_FailureKeepsTranscript(t *testing.T) {
	m := testutil.NewScript().Fail(errors.New("provider down")).Repeat().Model()
	a := newAssistant(t, m, nil, func(o *neobank.Options) {
		o.Agent = append(o.Agent, func(ao *agent.Options) {
			ao.ModelRetries = 1
		})
	})

	res, err := a.Run(context.Background(), core.NewRequest("q", nil), core.StrategyNonAgentic)

	assert.ErrorIs(t, err, core.ErrNonAgentic)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, []core.Role{core.RoleUser}, testutil.Roles(res.Transcript))
}

func TestAssistant_MetricsAndSpans(t *testing.T) {
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(func(o *metrics.Options) { o.Registerer = promReg })

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	m := testutil.NewScript().Text("draft").Then().Verdict(true, "done", "").Model()
	a := newAssistant(t, m, nil, func(o *neobank.Options) {
		o.Metrics = collector
		o.TracerProvider = tp
	})

	_, err := a.Run(context.Background(), core.NewRequest("q", nil), core.StrategyAutonomousGraph)
	require.NoError(t, err)

	count, err := promtestutil.GatherAndCount(promReg, "neobank_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	transitions, err := promtestutil.GatherAndCount(promReg, "neobank_graph_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, transitions, "reflect and finish")

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}

	assert.Contains(t, names, "assistant.run")
	assert.Contains(t, names, "graph.node")
}

func TestAssistant_ConcurrentRuns(t *testing.T) {
	m := testutil.NewScript().Text("ok").Repeat().Model()
	a := newAssistant(t, m, nil, func(o *neobank.Options) { o.MaxConcurrentRuns = 2 })

	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := a.Run(context.Background(), core.NewRequest("q", nil), core.StrategyNonAgentic)
			errs <- err
		}()
	}

	for i := 0; i < 6; i++ {
		assert.NoError(t, <-errs)
	}

	assert.Equal(t, 6, m.Calls())
}

func TestNewModel(t *testing.T) {
	s := config.Default()
	s.OpenAIAPIKey = "sk"

	m, err := neobank.NewModel(&s)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)

	s.AzureOpenAIEndpoint = "https://bank.openai.azure.com"
	s.AzureOpenAIAPIKey = "az"
	s.AzureOpenAIDeployment = "prod"

	m, err = neobank.NewModel(&s)
	require.NoError(t, err)
	assert.Equal(t, "azure_openai", m.Info().Provider)

	s.Provider = config.ProviderAnthropic
	s.AnthropicAPIKey = "ak"

	m, err = neobank.NewModel(&s)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	s.Provider = "cohere"
	_, err = neobank.NewModel(&s)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNewFromSettings(t *testing.T) {
	s := config.Default()
	s.OpenAIAPIKey = "sk"
	s.DefaultStrategy = "autonomous_graph"

	a, err := neobank.NewFromSettings(&s, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StrategyAutonomousGraph, a.DefaultStrategy())

	s.OpenAIAPIKey = ""
	_, err = neobank.NewFromSettings(&s, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
