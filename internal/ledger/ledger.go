// Package ledger is an in-memory account ledger exposed as assistant tools.
// The CLI uses it so the strategies have real data to reason about.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/tool"
)

// ErrUnknownAccount is returned for account ids the ledger does not hold.
var ErrUnknownAccount = errors.New("unknown account")

// Transaction is one booked movement. Negative amounts are debits.
type Transaction struct {
	ID       string    `json:"id"`
	BookedAt time.Time `json:"booked_at"`
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
	Category string    `json:"category"`
	Merchant string    `json:"merchant"`
}

// Account is a customer account.
type Account struct {
	ID           string
	Owner        string
	Currency     string
	Opening      float64
	Transactions []Transaction
}

// Balance returns the opening balance plus all bookings.
func (a *Account) Balance() float64 {
	b := a.Opening
	for _, t := range a.Transactions {
		b += t.Amount
	}

	return b
}

// Ledger holds accounts. Safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// New creates a ledger with the given accounts.
func New(accounts ...*Account) *Ledger {
	l := &Ledger{accounts: map[string]*Account{}}
	for _, a := range accounts {
		l.accounts[a.ID] = a
	}

	return l
}

// Account returns a copy of the account with id.
func (l *Ledger) Account(id string) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}

	cp := *a
	cp.Transactions = append([]Transaction(nil), a.Transactions...)

	return cp, nil
}

// Book appends a transaction to the account.
func (l *Ledger) Book(id string, t Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}

	if t.ID == "" {
		t.ID = core.NewID()
	}

	if t.Currency == "" {
		t.Currency = a.Currency
	}

	a.Transactions = append(a.Transactions, t)

	return nil
}

// BalanceArgs are the arguments of get_balance.
type BalanceArgs struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"description=Account to query; defaults to the customer's account"`
}

// BalanceResult is the payload of get_balance.
type BalanceResult struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
}

// TransactionsArgs are the arguments of list_transactions.
type TransactionsArgs struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"description=Account to query; defaults to the customer's account"`
	Category  string `json:"category,omitempty" jsonschema:"description=Only return transactions of this category such as groceries"`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Maximum number of transactions to return,minimum=1,maximum=100"`
}

// TransactionsResult is the payload of list_transactions.
type TransactionsResult struct {
	AccountID    string        `json:"account_id"`
	Transactions []Transaction `json:"transactions"`
	TotalDebit   float64       `json:"total_debit"`
	TotalCredit  float64       `json:"total_credit"`
}

// DefaultLimit caps list_transactions when no limit is given.
const DefaultLimit = 20

// Tools returns the ledger tools: get_balance and list_transactions.
func (l *Ledger) Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionToolFromStruct("get_balance",
			"Return the current balance and currency of a customer account.",
			l.getBalance,
			tool.WithResultSchema(tool.SchemaFor[BalanceResult]()),
		),
		tool.NewFunctionToolFromStruct("list_transactions",
			"List booked transactions of a customer account, newest first, optionally filtered by category.",
			l.listTransactions,
			tool.WithResultSchema(tool.SchemaFor[TransactionsResult]()),
		),
	}
}

func accountID(tc *core.ToolContext, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}

	if id := tc.AccountID(); id != "" {
		return id, nil
	}

	return "", errors.New("no account id in request or arguments")
}

func (l *Ledger) getBalance(tc *core.ToolContext, args BalanceArgs) (any, error) {
	id, err := accountID(tc, args.AccountID)
	if err != nil {
		return nil, err
	}

	a, err := l.Account(id)
	if err != nil {
		return nil, err
	}

	tc.LogDebug("ledger.balance", "account_id", id)

	return BalanceResult{AccountID: id, Balance: round(a.Balance()), Currency: a.Currency}, nil
}

func (l *Ledger) listTransactions(tc *core.ToolContext, args TransactionsArgs) (any, error) {
	id, err := accountID(tc, args.AccountID)
	if err != nil {
		return nil, err
	}

	a, err := l.Account(id)
	if err != nil {
		return nil, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	txs := make([]Transaction, 0, len(a.Transactions))
	for _, t := range a.Transactions {
		if args.Category != "" && !strings.EqualFold(t.Category, args.Category) {
			continue
		}

		txs = append(txs, t)
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].BookedAt.After(txs[j].BookedAt) })

	if len(txs) > limit {
		txs = txs[:limit]
	}

	res := TransactionsResult{AccountID: id, Transactions: txs}
	for _, t := range txs {
		if t.Amount < 0 {
			res.TotalDebit += -t.Amount
		} else {
			res.TotalCredit += t.Amount
		}
	}

	res.TotalDebit = round(res.TotalDebit)
	res.TotalCredit = round(res.TotalCredit)

	return res, nil
}

func round(v float64) float64 {
	if v < 0 {
		return -round(-v)
	}

	return float64(int64(v*100+0.5)) / 100
}

// Demo returns a ledger with one seeded account, "acc-demo".
func Demo(now time.Time) *Ledger {
	day := 24 * time.Hour

	return New(&Account{
		ID:       "acc-demo",
		Owner:    "Demo Customer",
		Currency: "EUR",
		Opening:  1500,
		Transactions: []Transaction{
			{ID: "tx-1", BookedAt: now.Add(-9 * day), Amount: 2850, Currency: "EUR", Category: "salary", Merchant: "Employer GmbH"},
			{ID: "tx-2", BookedAt: now.Add(-8 * day), Amount: -950, Currency: "EUR", Category: "rent", Merchant: "Landlord"},
			{ID: "tx-3", BookedAt: now.Add(-6 * day), Amount: -84.37, Currency: "EUR", Category: "groceries", Merchant: "Fresh Market"},
			{ID: "tx-4", BookedAt: now.Add(-4 * day), Amount: -12.99, Currency: "EUR", Category: "subscriptions", Merchant: "StreamFlix"},
			{ID: "tx-5", BookedAt: now.Add(-2 * day), Amount: -56.10, Currency: "EUR", Category: "groceries", Merchant: "Corner Shop"},
			{ID: "tx-6", BookedAt: now.Add(-1 * day), Amount: -23.50, Currency: "EUR", Category: "transport", Merchant: "City Rail"},
		},
	})
}
