package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an Error so callers can branch on a single enum instead of
// matching concrete types.
type Kind int

const (
	// KindUnknown is the zero Kind; never produced by constructors.
	KindUnknown Kind = iota
	// KindConfiguration marks invalid or missing configuration. Always fatal at startup.
	KindConfiguration
	// KindToolExecution marks argument validation or tool-internal failure.
	KindToolExecution
	// KindToolNotFound marks an invocation of an unregistered tool.
	KindToolNotFound
	// KindModelUnavailable marks a transport/provider failure of the model gateway.
	KindModelUnavailable
	// KindNonAgentic marks a failed single-call run.
	KindNonAgentic
	// KindAgentic marks a ReAct loop that could not make progress.
	KindAgentic
	// KindAIAgent marks a graph node failure.
	KindAIAgent
	// KindData marks malformed domain data found while folding a tool result.
	KindData
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindToolExecution:
		return "ToolExecutionError"
	case KindToolNotFound:
		return "ToolNotFound"
	case KindModelUnavailable:
		return "ModelUnavailableError"
	case KindNonAgentic:
		return "NonAgenticError"
	case KindAgentic:
		return "AgenticError"
	case KindAIAgent:
		return "AIAgentError"
	case KindData:
		return "DataError"
	default:
		return "Error"
	}
}

// IsWorkflow reports whether the kind belongs to the workflow family
// (non-agentic, agentic, ai agent).
func (k Kind) IsWorkflow() bool {
	return k == KindNonAgentic || k == KindAgentic || k == KindAIAgent
}

// Detail keys used by the typed constructors.
const (
	DetailToolName     = "tool_name"
	DetailInputArgs    = "input_args"
	DetailIteration    = "iteration"
	DetailLastAction   = "last_action"
	DetailCurrentNode  = "current_node"
	DetailStateKeys    = "state_keys"
	DetailModelName    = "model_name"
	DetailField        = "field"
	DetailProvider     = "provider"
	DetailAttempts     = "attempts"
	DetailStrategyKind = "strategy"
)

// Error is the single error type of the orchestration core. Every failure
// carries a human-readable message and a details map so callers can log
// uniformly without inspecting kind-specific fields.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrToolExecution    = &Error{Kind: KindToolExecution}
	ErrToolNotFound     = &Error{Kind: KindToolNotFound}
	ErrModelUnavailable = &Error{Kind: KindModelUnavailable}
	ErrNonAgentic       = &Error{Kind: KindNonAgentic}
	ErrAgentic          = &Error{Kind: KindAgentic}
	ErrAIAgent          = &Error{Kind: KindAIAgent}
	ErrData             = &Error{Kind: KindData}
)

// NewError constructs an Error of the given kind. The details map is copied.
func NewError(kind Kind, message string, details map[string]any) *Error {
	d := make(map[string]any, len(details))
	for k, v := range details {
		d[k] = v
	}
	return &Error{Kind: kind, Message: message, Details: d}
}

// Error renders "message | details: k=v, ..." with keys sorted.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" | details: ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinels (no message) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && len(t.Details) == 0 && t.Cause == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// WithCause sets the cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Detail returns a single detail value.
func (e *Error) Detail(key string) (any, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NewConfigurationError reports invalid or missing configuration.
func NewConfigurationError(message string, details map[string]any) *Error {
	return NewError(KindConfiguration, message, details)
}

// NewToolExecutionError reports a tool validation or execution failure.
func NewToolExecutionError(message, toolName string, inputArgs map[string]any, cause error) *Error {
	e := NewError(KindToolExecution, message, map[string]any{
		DetailToolName:  toolName,
		DetailInputArgs: inputArgs,
	})
	return e.WithCause(cause)
}

// NewToolNotFoundError reports an invocation of an unregistered tool.
func NewToolNotFoundError(toolName string) *Error {
	return NewError(KindToolNotFound, "tool not found", map[string]any{DetailToolName: toolName})
}

// NewModelUnavailableError reports a gateway transport or provider failure.
func NewModelUnavailableError(message, provider string, cause error) *Error {
	e := NewError(KindModelUnavailable, message, map[string]any{DetailProvider: provider})
	return e.WithCause(cause)
}

// NewNonAgenticError reports a failed single-call run.
func NewNonAgenticError(message string, cause error) *Error {
	return NewError(KindNonAgentic, message, nil).WithCause(cause)
}

// NewAgenticError reports a ReAct loop failure with the iteration and last action.
func NewAgenticError(message string, iteration int, lastAction string, cause error) *Error {
	e := NewError(KindAgentic, message, map[string]any{
		DetailIteration:  iteration,
		DetailLastAction: lastAction,
	})
	return e.WithCause(cause)
}

// NewAIAgentError reports a graph node failure. Only the state key set is
// recorded, never slot values.
func NewAIAgentError(message, currentNode string, stateKeys []string, cause error) *Error {
	keys := append([]string(nil), stateKeys...)
	sort.Strings(keys)
	e := NewError(KindAIAgent, message, map[string]any{
		DetailCurrentNode: currentNode,
		DetailStateKeys:   keys,
	})
	return e.WithCause(cause)
}

// NewDataError reports malformed domain data.
func NewDataError(message, modelName, field string, cause error) *Error {
	e := NewError(KindData, message, map[string]any{
		DetailModelName: modelName,
		DetailField:     field,
	})
	return e.WithCause(cause)
}
