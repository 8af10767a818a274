package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AppendKeepsCausalOrder(t *testing.T) {
	tr, err := NewTranscript(NewUserMessage("what is my balance?"))
	require.NoError(t, err)

	call := ToolCall{ID: "c1", Name: "get_balance"}
	require.NoError(t, tr.Append(NewAssistantMessage("", call)))
	assert.Equal(t, []string{"c1"}, tr.Pending())

	require.NoError(t, tr.Append(NewToolMessage(SucceededResult(call, 42.5))))
	require.NoError(t, tr.Append(NewAssistantMessage("Your balance is 42.50")))

	msgs := tr.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, RoleTool, msgs[2].Role)
	assert.Equal(t, "Your balance is 42.50", tr.LastAssistantText())
	assert.Empty(t, tr.Pending())
}

func TestTranscript_MessagesIsACopy(t *testing.T) {
	tr, err := NewTranscript(NewUserMessage("hi"))
	require.NoError(t, err)

	msgs := tr.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "hi", tr.Messages()[0].Content)
}

func TestTranscript_RejectsUncorrelatedResults(t *testing.T) {
	tr, err := NewTranscript()
	require.NoError(t, err)

	orphan := NewToolMessage(ToolResult{CallID: "missing", Name: "x", Success: true})
	assert.Error(t, tr.Append(orphan))

	call := ToolCall{ID: "c1", Name: "x"}
	require.NoError(t, tr.Append(NewAssistantMessage("", call)))
	require.NoError(t, tr.Append(NewToolMessage(SucceededResult(call, "ok"))))

	// second result for the same call
	assert.Error(t, tr.Append(NewToolMessage(SucceededResult(call, "again"))))
	// reused id
	assert.Error(t, tr.Append(NewAssistantMessage("", call)))
	// missing id
	assert.Error(t, tr.Append(NewAssistantMessage("", ToolCall{Name: "x"})))
	assert.Equal(t, 2, tr.Len())
}

func TestTranscript_LastAssistantTextEmpty(t *testing.T) {
	tr, err := NewTranscript(NewUserMessage("q"))
	require.NoError(t, err)
	require.NoError(t, tr.Append(NewAssistantMessage("", ToolCall{ID: "c", Name: "t"})))
	assert.Equal(t, "", tr.LastAssistantText())

	var nilTr *Transcript
	assert.Equal(t, "", nilTr.LastAssistantText())
	assert.Zero(t, nilTr.Len())
}

func TestTranscript_CloneIsIndependent(t *testing.T) {
	tr, err := NewTranscript(NewUserMessage("q"))
	require.NoError(t, err)

	c := tr.Clone()
	require.NoError(t, c.Append(NewAssistantMessage("a")))
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 2, c.Len())
}

func TestRequest_IsImmutable(t *testing.T) {
	ctxMap := map[string]string{ContextAccountID: "acc-1"}
	req := NewRequest("balance?", ctxMap)
	ctxMap[ContextAccountID] = "acc-2"

	assert.Equal(t, "acc-1", req.AccountID())

	got := req.Context()
	got[ContextAccountID] = "acc-3"
	assert.Equal(t, "acc-1", req.AccountID())
	assert.NotEmpty(t, req.ID())
	assert.Equal(t, "balance?", req.Text())

	empty := NewRequest("x", nil)
	assert.NotNil(t, empty.Context())
	_, ok := empty.Value(ContextAccountID)
	assert.False(t, ok)
}

func TestParseStrategy(t *testing.T) {
	k, err := ParseStrategy("Autonomous-Graph")
	require.NoError(t, err)
	assert.Equal(t, StrategyAutonomousGraph, k)

	_, err = ParseStrategy("swarm")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestToolResult_ResultText(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "list_transactions"}

	ok := SucceededResult(call, map[string]any{"count": 2})
	assert.Equal(t, `{"count":2}`, ok.ResultText())

	failed := FailedResult(call, errors.New("ledger offline"))
	assert.False(t, failed.Success)
	assert.Equal(t, "error: ledger offline", failed.ResultText())
}

func TestToolCall_DecodeArguments(t *testing.T) {
	args, err := ToolCall{Name: "t"}.DecodeArguments()
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = ToolCall{Name: "t", Arguments: json.RawMessage(`{"limit":3}`)}.DecodeArguments()
	require.NoError(t, err)
	assert.Equal(t, 3.0, args["limit"])

	_, err = ToolCall{Name: "t", Arguments: json.RawMessage(`{`)}.DecodeArguments()
	assert.Error(t, err)
}

func TestIterationBudget(t *testing.T) {
	b := NewIterationBudget(2)
	assert.False(t, b.Exhausted())
	b.Increment()
	assert.Equal(t, 1, b.Remaining())
	b.Increment()
	assert.True(t, b.Exhausted())
	assert.Equal(t, 2, b.Count())

	unlimited := NewIterationBudget(0)
	unlimited.Increment()
	assert.False(t, unlimited.Exhausted())
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestToolContext_ExposesRequest(t *testing.T) {
	req := NewRequest("q", map[string]string{ContextAccountID: "acc-9"})
	tc := NewToolContext(context.Background(), ToolCall{ID: "fc1", Name: "get_balance"}, req, StrategyAgentic, nil)

	assert.Equal(t, "acc-9", tc.AccountID())
	assert.Equal(t, "fc1", tc.FunctionCallID())
	assert.Equal(t, "get_balance", tc.ToolName())
	assert.Equal(t, StrategyAgentic, tc.Strategy())
	assert.NotNil(t, tc.Logger())
	assert.NoError(t, tc.Context().Err())
}
