package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/tool"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, l *Ledger) *tool.Registry {
	t.Helper()

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(l.Tools()...))

	return reg
}

func invoke(t *testing.T, reg *tool.Registry, name, args, account string) core.ToolResult {
	t.Helper()

	req := core.NewRequest("q", map[string]string{core.ContextAccountID: account})
	res, _ := reg.Invoke(context.Background(), core.ToolCall{ID: "fc-1", Name: name, Arguments: json.RawMessage(args)},
		tool.WithRequest(req))

	return res
}

func TestGetBalance(t *testing.T) {
	reg := newRegistry(t, Demo(now))

	res := invoke(t, reg, "get_balance", `{}`, "acc-demo")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, BalanceResult{AccountID: "acc-demo", Balance: 3223.04, Currency: "EUR"}, res.Payload)
	assert.NoError(t, reg.ValidateResult("get_balance", res.Payload))
}

func TestGetBalance_UnknownAccount(t *testing.T) {
	reg := newRegistry(t, Demo(now))

	res := invoke(t, reg, "get_balance", `{"account_id":"acc-nope"}`, "acc-demo")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)
	assert.Contains(t, res.Error, "unknown account")

	res = invoke(t, reg, "get_balance", `{}`, "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no account id")
}

func TestListTransactions_FilterAndOrder(t *testing.T) {
	reg := newRegistry(t, Demo(now))

	res := invoke(t, reg, "list_transactions", `{"category":"Groceries"}`, "acc-demo")
	require.True(t, res.Success, res.Error)

	payload, ok := res.Payload.(TransactionsResult)
	require.True(t, ok)
	require.Len(t, payload.Transactions, 2)
	assert.Equal(t, "tx-5", payload.Transactions[0].ID, "newest first")
	assert.Equal(t, "tx-3", payload.Transactions[1].ID)
	assert.InDelta(t, 140.47, payload.TotalDebit, 1e-9)
	assert.Zero(t, payload.TotalCredit)
	assert.NoError(t, reg.ValidateResult("list_transactions", res.Payload))
}

func TestListTransactions_Limit(t *testing.T) {
	reg := newRegistry(t, Demo(now))

	res := invoke(t, reg, "list_transactions", `{"limit":2}`, "acc-demo")
	require.True(t, res.Success, res.Error)

	payload := res.Payload.(TransactionsResult)
	require.Len(t, payload.Transactions, 2)
	assert.Equal(t, []string{"tx-6", "tx-5"}, []string{payload.Transactions[0].ID, payload.Transactions[1].ID})

	res = invoke(t, reg, "list_transactions", `{"limit":0}`, "acc-demo")
	assert.False(t, res.Success, "limit below minimum is rejected by the schema")

	res = invoke(t, reg, "list_transactions", `{"limit":"ten"}`, "acc-demo")
	assert.False(t, res.Success)
}

func TestBook(t *testing.T) {
	l := Demo(now)

	require.NoError(t, l.Book("acc-demo", Transaction{BookedAt: now, Amount: -100, Category: "transfer"}))
	assert.ErrorIs(t, l.Book("acc-x", Transaction{}), ErrUnknownAccount)

	a, err := l.Account("acc-demo")
	require.NoError(t, err)
	assert.InDelta(t, 3123.04, a.Balance(), 1e-9)

	last := a.Transactions[len(a.Transactions)-1]
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, "EUR", last.Currency)

	a.Transactions[0].Amount = 1e9
	again, _ := l.Account("acc-demo")
	assert.InDelta(t, 3123.04, again.Balance(), 1e-9, "Account returns a copy")
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.24, round(1.236))
	assert.Equal(t, -1.24, round(-1.236))
	assert.Equal(t, 0.0, round(0.001))
}
