package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	// RoleSystem carries instructions for the model.
	RoleSystem Role = "system"
	// RoleUser carries the end user's input.
	RoleUser Role = "user"
	// RoleAssistant carries model output (text and/or tool calls).
	RoleAssistant Role = "assistant"
	// RoleTool carries a tool result.
	RoleTool Role = "tool"
)

// ToolCall is a request to invoke a named tool. ID correlates the call with
// its eventual ToolResult.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// DecodeArguments unmarshals the raw arguments into a map. Empty arguments
// decode to an empty map.
func (c ToolCall) DecodeArguments() (map[string]any, error) {
	args := map[string]any{}
	if len(c.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, fmt.Errorf("decode arguments of %s: %w", c.Name, err)
	}
	return args, nil
}

// ToolResult is the outcome of a ToolCall. Exactly one of Payload (success)
// or Error (failure) is meaningful.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err is the typed failure, kept for callers that branch on Kind.
	Err error `json:"-"`
}

// SucceededResult builds a successful ToolResult.
func SucceededResult(call ToolCall, payload any) ToolResult {
	return ToolResult{CallID: call.ID, Name: call.Name, Success: true, Payload: payload}
}

// FailedResult builds a failed ToolResult from err.
func FailedResult(call ToolCall, err error) ToolResult {
	r := ToolResult{CallID: call.ID, Name: call.Name, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Message is one turn of a conversation.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Timestamp: time.Now().UTC()}
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolMessage wraps a ToolResult as a tool-role message.
func NewToolMessage(result ToolResult) Message {
	r := result
	return Message{Role: RoleTool, ToolResult: &r, Timestamp: time.Now().UTC()}
}

// ResultText renders a tool result for model consumption: the JSON payload on
// success, "error: ..." on failure.
func (r ToolResult) ResultText() string {
	if !r.Success {
		return "error: " + r.Error
	}
	switch v := r.Payload.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
