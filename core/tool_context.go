package core

import (
	"context"

	"github.com/hupe1980/neobank/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by a strategy: the ambient cancellation context, the correlation id of the
// call, read access to the originating Request and a logger scoped to the
// call.
type ToolContext struct {
	ctx      context.Context
	callID   string
	toolName string
	request  Request
	strategy StrategyKind

	*loggerAdapter
}

// NewToolContext constructs a tool context for one invocation.
func NewToolContext(ctx context.Context, call ToolCall, req Request, strategy StrategyKind, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:      ctx,
		callID:   call.ID,
		toolName: call.Name,
		request:  req,
		strategy: strategy,
		loggerAdapter: newLoggerAdapter(logging.With(logger,
			"tool", call.Name,
			"fc_id", call.ID,
		)),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// FunctionCallID returns the correlation id of the call being served.
func (tc *ToolContext) FunctionCallID() string { return tc.callID }

// ToolName returns the invoked tool's name.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// Request returns the originating request.
func (tc *ToolContext) Request() Request { return tc.request }

// AccountID is a shortcut for Request().AccountID().
func (tc *ToolContext) AccountID() string { return tc.request.AccountID() }

// Strategy returns the strategy that issued the call.
func (tc *ToolContext) Strategy() StrategyKind { return tc.strategy }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// loggerAdapter guarantees a non-nil logger and adds Log* shortcuts.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

// LogDebug logs a debug message.
func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError logs an error message.
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
