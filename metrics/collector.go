// Package metrics exposes Prometheus instrumentation for runs, model calls,
// tool calls and graph transitions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "neobank"

// Collector records orchestration metrics. A nil *Collector is a valid no-op,
// so components can hold one unconditionally.
type Collector struct {
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	modelCallsTotal   *prometheus.CounterVec
	modelCallDuration prometheus.Histogram
	toolCallsTotal    *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	graphTransitions  *prometheus.CounterVec
	reactIterations   prometheus.Histogram
}

// Options configures a Collector.
type Options struct {
	Namespace string
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// NewCollector creates and registers the metrics.
func NewCollector(optFns ...func(o *Options)) *Collector {
	opts := Options{
		Namespace:  DefaultNamespace,
		Registerer: prometheus.DefaultRegisterer,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	f := promauto.With(opts.Registerer)
	ns := opts.Namespace

	return &Collector{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Total number of orchestration runs by strategy and terminal status",
		}, []string{"strategy", "status"}),

		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Run wall-clock duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"strategy"}),

		modelCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "model_calls_total",
			Help:      "Total number of model gateway calls by outcome",
		}, []string{"outcome"}),

		modelCallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "model_call_duration_seconds",
			Help:      "Model gateway call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		toolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),

		toolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		graphTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "graph_transitions_total",
			Help:      "Total number of autonomous graph transitions by target node",
		}, []string{"node"}),

		reactIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "react_iterations",
			Help:      "ReAct iterations used per agentic run",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(strategy, status string, d time.Duration) {
	if c == nil {
		return
	}

	c.runsTotal.WithLabelValues(strategy, status).Inc()
	c.runDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveModelCall implements model.Observer.
func (c *Collector) ObserveModelCall(outcome string, d time.Duration) {
	if c == nil {
		return
	}

	c.modelCallsTotal.WithLabelValues(outcome).Inc()
	c.modelCallDuration.Observe(d.Seconds())
}

// ObserveToolCall implements tool.Observer.
func (c *Collector) ObserveToolCall(toolName, outcome string, d time.Duration) {
	if c == nil {
		return
	}

	c.toolCallsTotal.WithLabelValues(toolName, outcome).Inc()
	c.toolCallDuration.WithLabelValues(toolName).Observe(d.Seconds())
}

// ObserveGraphTransition implements graph.Observer.
func (c *Collector) ObserveGraphTransition(node string) {
	if c == nil {
		return
	}

	c.graphTransitions.WithLabelValues(node).Inc()
}

// ObserveReactIterations records the iterations used by one agentic run.
func (c *Collector) ObserveReactIterations(n int) {
	if c == nil {
		return
	}

	c.reactIterations.Observe(float64(n))
}
