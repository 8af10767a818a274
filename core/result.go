package core

import (
	"fmt"
	"strings"
	"time"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means a definitive answer was produced.
	StatusCompleted Status = "completed"
	// StatusExhausted means an iteration or time budget ran out first. Not an error.
	StatusExhausted Status = "exhausted"
	// StatusFailed means the run ended with a typed error.
	StatusFailed Status = "failed"
)

// StrategyKind names one of the orchestration strategies.
type StrategyKind string

const (
	// StrategyNonAgentic is a single model call without tools.
	StrategyNonAgentic StrategyKind = "non_agentic"
	// StrategyAgentic is the ReAct think/act/observe loop.
	StrategyAgentic StrategyKind = "agentic"
	// StrategyAutonomousGraph is the plan/act/observe/reflect state graph.
	StrategyAutonomousGraph StrategyKind = "autonomous_graph"
)

// Strategies lists all strategy kinds.
func Strategies() []StrategyKind {
	return []StrategyKind{StrategyNonAgentic, StrategyAgentic, StrategyAutonomousGraph}
}

// ParseStrategy parses a strategy name. Hyphens and case are tolerated
// ("Autonomous-Graph" parses as autonomous_graph).
func ParseStrategy(s string) (StrategyKind, error) {
	norm := StrategyKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, k := range Strategies() {
		if k == norm {
			return k, nil
		}
	}
	return "", NewConfigurationError(fmt.Sprintf("unknown strategy %q", s), map[string]any{
		DetailStrategyKind: s,
	})
}

// RunResult is the outcome of a run. It is returned for every run, including
// failed ones, so the transcript is always available for external logging.
type RunResult struct {
	RunID      string
	RequestID  string
	Strategy   StrategyKind
	Status     Status
	Answer     string
	Transcript []Message
	Iterations int
	// LastNode is the last graph node or ReAct phase visited.
	LastNode   string
	Duration   time.Duration
	Err        error
}

// Completed reports whether the run produced a definitive answer.
func (r *RunResult) Completed() bool { return r != nil && r.Status == StatusCompleted }
