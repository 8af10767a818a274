package model

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/logging"
)

// Model call outcomes reported to the Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalid     = "invalid"
)

// Observer receives one notification per gateway call. metrics.Collector
// implements it.
type Observer interface {
	ObserveModelCall(outcome string, duration time.Duration)
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Logger         logging.Logger
	Observer       Observer
	TracerProvider trace.TracerProvider

	// RequestsPerSecond enables a client-side rate limit when > 0.
	RequestsPerSecond float64
	// Burst is the limiter bucket size. Defaults to 1.
	Burst int
}

// CallOptions tune a single Complete call.
type CallOptions struct {
	Instructions string
}

// WithInstructions sets the system instructions for one call.
func WithInstructions(s string) func(o *CallOptions) {
	return func(o *CallOptions) { o.Instructions = s }
}

// Gateway is the single point through which strategies call a model.
// It is stateless apart from the optional rate limiter and safe for
// concurrent use by independent runs.
type Gateway struct {
	model   Model
	limiter *rate.Limiter
	logger  logging.Logger
	obs     Observer
	tracer  trace.Tracer
}

// NewGateway wraps m.
func NewGateway(m Model, optFns ...func(o *GatewayOptions)) *Gateway {
	opts := GatewayOptions{
		Logger: logging.NoOpLogger{},
		Burst:  1,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	g := &Gateway{
		model:  m,
		logger: opts.Logger,
		obs:    opts.Observer,
		tracer: opts.TracerProvider.Tracer("github.com/hupe1980/neobank/model"),
	}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}

		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return g
}

// Info returns the wrapped model's metadata.
func (g *Gateway) Info() Info { return g.model.Info() }

// Complete sends the transcript and tool catalog to the model and returns its
// final response: text, tool calls, or both.
//
// Transport and provider failures are returned as ModelUnavailable errors; a
// response with neither text nor tool calls is a Data error. Complete does not
// retry.
func (g *Gateway) Complete(ctx context.Context, transcript []core.Message, tools []ToolDefinition, optFns ...func(o *CallOptions)) (*Response, error) {
	opts := CallOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	info := g.model.Info()

	ctx, span := g.tracer.Start(ctx, "model.complete", trace.WithAttributes(
		attribute.String("model.name", info.Name),
		attribute.String("model.provider", info.Provider),
		attribute.Int("model.messages", len(transcript)),
		attribute.Int("model.tools", len(tools)),
	))
	defer span.End()

	start := time.Now()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, g.fail(span, info, start, OutcomeUnavailable,
				core.NewModelUnavailableError("rate limiter wait failed", info.Provider, err))
		}
	}

	g.logger.Debug("model.call.start", "model", info.Name, "messages", len(transcript), "tools", len(tools))

	respCh, errCh := g.model.Generate(ctx, Request{
		Instructions: opts.Instructions,
		Messages:     transcript,
		Tools:        tools,
	})

	var final *Response

	for resp := range respCh {
		if resp.Partial {
			continue
		}

		r := resp
		final = &r
	}

	if err := <-errCh; err != nil {
		return nil, g.fail(span, info, start, OutcomeUnavailable,
			core.NewModelUnavailableError("model call failed", info.Provider, err))
	}

	if final == nil {
		return nil, g.fail(span, info, start, OutcomeUnavailable,
			core.NewModelUnavailableError("model returned no response", info.Provider, nil))
	}

	if final.Text == "" && len(final.ToolCalls) == 0 {
		return nil, g.fail(span, info, start, OutcomeInvalid,
			core.NewDataError("model returned neither text nor tool calls", info.Name, "content", nil))
	}

	final.ToolCalls = normalizeToolCalls(final.ToolCalls)

	dur := time.Since(start)

	span.SetAttributes(
		attribute.Int("model.tool_calls", len(final.ToolCalls)),
		attribute.String("model.finish_reason", final.FinishReason),
	)

	fields := []any{
		"model", info.Name,
		"duration_ms", dur.Milliseconds(),
		"tool_calls", len(final.ToolCalls),
		"finish_reason", final.FinishReason,
	}
	if final.Usage != nil {
		fields = append(fields, "total_tokens", final.Usage.TotalTokens)
	}

	g.logger.Info("model.call.success", fields...)

	if g.obs != nil {
		g.obs.ObserveModelCall(OutcomeSuccess, dur)
	}

	return final, nil
}

func (g *Gateway) fail(span trace.Span, info Info, start time.Time, outcome string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	g.logger.Warn("model.call.error", "model", info.Name, "provider", info.Provider, "outcome", outcome, "error", err.Error())

	if g.obs != nil {
		g.obs.ObserveModelCall(outcome, time.Since(start))
	}

	return err
}

// normalizeToolCalls returns a copy of calls with missing correlation ids
// and empty arguments filled in.
func normalizeToolCalls(calls []core.ToolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	out := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = core.NewID()
		}

		if len(c.Arguments) == 0 {
			c.Arguments = json.RawMessage(`{}`)
		}

		out[i] = c
	}

	return out
}
