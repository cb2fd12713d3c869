// Package repository persists the ledger tables. It holds no business rules:
// balance arithmetic and invariants live in the services package.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xpense/backend/internal/models"
)

var (
	// ErrNotFound is returned when a point lookup, update or delete matches no row.
	ErrNotFound = errors.New("row not found")
	// ErrConstraint is matched by every referential or uniqueness failure.
	ErrConstraint = errors.New("constraint violation")
)

// ConstraintError describes a write rejected by the store's integrity rules.
type ConstraintError struct {
	Table      Table
	Constraint string
	Detail     string
}

func (e *ConstraintError) Error() string {
	msg := fmt.Sprintf("constraint violation on %s", e.Table)
	if e.Constraint != "" {
		msg += " (" + e.Constraint + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}

// Table names a persisted table; subscriptions are per table.
type Table string

const (
	TableAccounts      Table = "accounts"
	TableTotalAmount   Table = "total_amount"
	TableCategories    Table = "categories"
	TableExpenses      Table = "expenses"
	TableDebts         Table = "debts"
	TableCurrencyRates Table = "currency_rates"
)

// ExpenseFilter narrows ListExpenses. Nil fields do not filter.
// From and To are inclusive.
type ExpenseFilter struct {
	From       *time.Time
	To         *time.Time
	CategoryID *int64
	AccountID  *int64
	IsEarning  *bool
}

// Reader is the read side of the store.
type Reader interface {
	GetAccount(ctx context.Context, id int64) (models.Account, error)
	GetAccountsForType(ctx context.Context, t models.AccountType) ([]models.Account, error)
	GetAllAccounts(ctx context.Context) ([]models.Account, error)
	GetTotalAmount(ctx context.Context) (models.TotalAmount, error)

	GetExpense(ctx context.Context, id int64) (models.Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error)

	GetCategories(ctx context.Context) ([]models.Category, error)

	ListDebts(ctx context.Context, from, to *time.Time) ([]models.Debt, error)

	GetRate(ctx context.Context, from, to string) (models.CurrencyRate, error)
	ListRatesFrom(ctx context.Context, base string) ([]models.CurrencyRate, error)
}

// Writer is the write side of the store. Writes are only reachable inside
// Store.RunAtomically.
type Writer interface {
	InsertAccount(ctx context.Context, account models.Account) (int64, error)
	UpdateAccountAmount(ctx context.Context, id int64, amount decimal.Decimal) error
	DeleteAccount(ctx context.Context, id int64) error
	DeleteAllAccounts(ctx context.Context) error

	// EnsureTotalAmount creates the total at zero unless it exists.
	EnsureTotalAmount(ctx context.Context) error
	UpdateTotalAmount(ctx context.Context, amount decimal.Decimal) error

	InsertExpense(ctx context.Context, expense models.Expense) (int64, error)
	DeleteExpense(ctx context.Context, id int64) error
	// DeleteExpenses removes the listed records. Unknown ids are ignored.
	DeleteExpenses(ctx context.Context, ids []int64) error

	InsertCategory(ctx context.Context, category models.Category) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error

	InsertDebt(ctx context.Context, debt models.Debt) (int64, error)
	DeleteDebt(ctx context.Context, id int64) error
	DeleteAllDebts(ctx context.Context) error

	UpsertRate(ctx context.Context, rate models.CurrencyRate) error
}

// Queries is everything available inside a unit of work. Rows read through
// Queries inside RunAtomically are locked until the unit of work ends.
type Queries interface {
	Reader
	Writer
}

// Store is the transactional ledger store.
type Store interface {
	// RunAtomically commits every write fn makes, or none of them. The unit of
	// work is rolled back when fn returns an error, panics, or ctx is done; in
	// the last case ctx.Err() is returned as is.
	RunAtomically(ctx context.Context, fn func(q Queries) error) error
	// View runs fn against committed state.
	View(ctx context.Context, fn func(r Reader) error) error
	// Subscribe delivers a signal after each commit touching any of tables.
	Subscribe(tables ...Table) *Subscription
	StorageType() string
}

// contextErr prefers the context error over err once ctx is done, so that
// cancellation is reported as cancellation and not as a data error.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
