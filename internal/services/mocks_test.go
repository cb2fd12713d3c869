package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xpense/backend/internal/audit"
	"github.com/xpense/backend/internal/exchangeapi"
	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

type MockQuoteSource struct {
	mock.Mock
}

func (m *MockQuoteSource) Convert(ctx context.Context, to, from string, amount decimal.Decimal) (*exchangeapi.Response, error) {
	args := m.Called(ctx, to, from, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchangeapi.Response), args.Error(1)
}

func okQuote(from, to, rate string) *exchangeapi.Response {
	r := decimal.RequireFromString(rate)
	return &exchangeapi.Response{
		StatusCode: 200,
		Body: &exchangeapi.ConvertResponse{
			Date:    "2024-02-01",
			Info:    exchangeapi.Info{Rate: r, Timestamp: 1706745600},
			Query:   exchangeapi.Query{Amount: decimal.NewFromInt(1), From: from, To: to},
			Result:  r,
			Success: true,
		},
	}
}

// hookQueries lets a test interfere with single store calls.
type hookQueries struct {
	repository.Queries
	afterUpdateAccount func() error
	beforeUpsertRate   func(models.CurrencyRate) error
}

func (h *hookQueries) UpdateAccountAmount(ctx context.Context, id int64, amount decimal.Decimal) error {
	if err := h.Queries.UpdateAccountAmount(ctx, id, amount); err != nil {
		return err
	}
	if h.afterUpdateAccount != nil {
		return h.afterUpdateAccount()
	}
	return nil
}

func (h *hookQueries) UpsertRate(ctx context.Context, r models.CurrencyRate) error {
	if h.beforeUpsertRate != nil {
		if err := h.beforeUpsertRate(r); err != nil {
			return err
		}
	}
	return h.Queries.UpsertRate(ctx, r)
}

type hookStore struct {
	repository.Store
	hooks hookQueries
}

func (s *hookStore) RunAtomically(ctx context.Context, fn func(q repository.Queries) error) error {
	return s.Store.RunAtomically(ctx, func(q repository.Queries) error {
		h := s.hooks
		h.Queries = q
		return fn(&h)
	})
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

type ledger struct {
	store    repository.Store
	accounts *AccountService
	expenses *ExpenseService
	category int64
}

func newLedger(t *testing.T, store repository.Store) *ledger {
	t.Helper()
	log := nullLogger()
	auditLogger := audit.NewLogger(log)

	l := &ledger{
		store:    store,
		accounts: NewAccountService(store, auditLogger, log),
		expenses: NewExpenseService(store, auditLogger, log),
	}

	id, err := NewCategoryService(store, log).AddCategory(context.Background(), "general")
	require.NoError(t, err)
	l.category = id
	return l
}

func (l *ledger) addAccount(t *testing.T, name string, amount int64) int64 {
	t.Helper()
	id, err := l.accounts.AddNewAccount(context.Background(), models.Account{
		Type:         models.AccountTypeCash,
		Amount:       decimal.NewFromInt(amount),
		CurrencyCode: "RUB",
		Name:         name,
	})
	require.NoError(t, err)
	return id
}

func (l *ledger) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	account, err := l.accounts.GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return account.Amount
}

func (l *ledger) total(t *testing.T) decimal.Decimal {
	t.Helper()
	total, err := l.accounts.GetTotalAmount(context.Background())
	require.NoError(t, err)
	return total
}

// requireConsistent checks that the total equals the sum of all balances.
func (l *ledger) requireConsistent(t *testing.T) {
	t.Helper()
	accounts, err := l.accounts.GetAllAccounts(context.Background())
	require.NoError(t, err)

	sum := decimal.Zero
	for _, a := range accounts {
		sum = sum.Add(a.Amount)
	}
	total := l.total(t)
	require.Truef(t, sum.Equal(total), "total %s != sum of accounts %s", total, sum)
}

func (l *ledger) expense(accountID int64, amount string) models.Expense {
	return models.Expense{
		Date:       time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString(amount),
		CategoryID: l.category,
		AccountID:  accountID,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// next reads one value from ch or fails after a second.
func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}
