package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/audit"
	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

// ExpenseService records spends and earnings. Every operation changes the
// account, the total and the record in one unit of work.
type ExpenseService struct {
	store repository.Store
	audit *audit.Logger
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewExpenseService(store repository.Store, auditLogger *audit.Logger, log logrus.FieldLogger) *ExpenseService {
	return &ExpenseService{
		store: store,
		audit: auditLogger,
		log:   log,
		now:   time.Now,
	}
}

// SpendMoney takes expense.Amount from the account. It fails with
// InsufficientFundsError, before any write, when the balance is lower.
func (s *ExpenseService) SpendMoney(ctx context.Context, expense models.Expense) (int64, error) {
	return s.record(ctx, "SPEND", expense, false)
}

// AddMoney credits expense.Amount to the account as an earning.
func (s *ExpenseService) AddMoney(ctx context.Context, expense models.Expense) (int64, error) {
	return s.record(ctx, "EARN", expense, true)
}

func (s *ExpenseService) record(ctx context.Context, operation string, expense models.Expense, earning bool) (int64, error) {
	if err := validateExpense(expense); err != nil {
		return 0, err
	}
	expense.IsEarning = earning
	if expense.Date.IsZero() {
		expense.Date = s.now().UTC()
	}

	delta := expense.Amount
	if !earning {
		delta = delta.Neg()
	}

	opID := audit.NewOperationID()
	var id int64
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		account, err := loadAccountTx(ctx, q, expense.AccountID)
		if err != nil {
			return err
		}
		if !earning && account.Amount.LessThan(expense.Amount) {
			return &InsufficientFundsError{
				AccountID: account.ID,
				Need:      expense.Amount,
				Available: account.Amount,
			}
		}

		if _, err := addToAccount(ctx, q, account, delta); err != nil {
			return err
		}
		if err := addToTotal(ctx, q, delta); err != nil {
			return err
		}
		id, err = q.InsertExpense(ctx, expense)
		return err
	})
	if err != nil {
		err = translateError(ctx, "record "+operationName(earning), err)
		s.audit.LogError(opID, expense.AccountID, operation, err)
		return 0, err
	}

	s.audit.LogOperation(opID, expense.AccountID, operation, expense.Amount)
	return id, nil
}

// DeleteExpense removes a record and reverses its effect using the stored
// amount and kind.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	opID := audit.NewOperationID()
	var stored models.Expense
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		var err error
		stored, err = q.GetExpense(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(EntityExpense, id)
		}
		if err != nil {
			return err
		}

		account, err := loadAccountTx(ctx, q, stored.AccountID)
		if err != nil {
			return err
		}

		delta := reversal(stored)
		if _, err := addToAccount(ctx, q, account, delta); err != nil {
			return err
		}
		if err := addToTotal(ctx, q, delta); err != nil {
			return err
		}
		if err := q.DeleteExpense(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound(EntityExpense, id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		err = translateError(ctx, "delete expense", err)
		s.audit.LogError(opID, stored.AccountID, "DELETE_EXPENSE", err)
		return err
	}

	s.audit.LogOperation(opID, stored.AccountID, "DELETE_EXPENSE", stored.Amount)
	return nil
}

// ClearAllExpensesAndEarnings reverses every record on its account, deletes
// all records and writes the reconciled total once. Nothing changes if an
// account is missing.
func (s *ExpenseService) ClearAllExpensesAndEarnings(ctx context.Context) error {
	opID := audit.NewOperationID()
	var reconciled decimal.Decimal
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		expenses, err := q.ListExpenses(ctx, repository.ExpenseFilter{})
		if err != nil {
			return err
		}
		if len(expenses) == 0 {
			return nil
		}

		deltas := make(map[int64]decimal.Decimal)
		ids := make([]int64, 0, len(expenses))
		for _, e := range expenses {
			deltas[e.AccountID] = deltas[e.AccountID].Add(reversal(e))
			ids = append(ids, e.ID)
		}

		accountIDs := make([]int64, 0, len(deltas))
		for id := range deltas {
			accountIDs = append(accountIDs, id)
		}
		sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i] < accountIDs[j] })

		for _, accountID := range accountIDs {
			account, err := loadAccountTx(ctx, q, accountID)
			if err != nil {
				return err
			}
			if _, err := addToAccount(ctx, q, account, deltas[accountID]); err != nil {
				return err
			}
			reconciled = reconciled.Add(deltas[accountID])
		}

		// Only the reversed records go; anything added since the listing stays.
		if err := q.DeleteExpenses(ctx, ids); err != nil {
			return err
		}
		return addToTotal(ctx, q, reconciled)
	})
	if err != nil {
		err = translateError(ctx, "clear expenses", err)
		s.audit.LogError(opID, 0, "CLEAR_EXPENSES", err)
		return err
	}

	s.audit.LogOperation(opID, 0, "CLEAR_EXPENSES", reconciled)
	return nil
}

// Reads. All results are ordered by date ascending; period bounds are
// inclusive.

func (s *ExpenseService) GetExpensesAndEarningsForPeriod(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	return s.list(ctx, "get expenses for period", repository.ExpenseFilter{From: &from, To: &to})
}

func (s *ExpenseService) GetExpensesAndEarningsForCategory(ctx context.Context, categoryID int64) ([]models.Expense, error) {
	return s.list(ctx, "get expenses for category", repository.ExpenseFilter{CategoryID: &categoryID})
}

func (s *ExpenseService) GetExpensesAndEarningsForAccount(ctx context.Context, accountID int64) ([]models.Expense, error) {
	return s.list(ctx, "get expenses for account", repository.ExpenseFilter{AccountID: &accountID})
}

func (s *ExpenseService) GetAllEarningsForAccount(ctx context.Context, accountID int64) ([]models.Expense, error) {
	earning := true
	return s.list(ctx, "get earnings for account", repository.ExpenseFilter{AccountID: &accountID, IsEarning: &earning})
}

func (s *ExpenseService) GetAllExpensesAndEarnings(ctx context.Context) ([]models.Expense, error) {
	return s.list(ctx, "get expenses", repository.ExpenseFilter{})
}

func (s *ExpenseService) GetAllExpensesOnly(ctx context.Context) ([]models.Expense, error) {
	earning := false
	return s.list(ctx, "get expenses only", repository.ExpenseFilter{IsEarning: &earning})
}

func (s *ExpenseService) GetAllEarningsOnly(ctx context.Context) ([]models.Expense, error) {
	earning := true
	return s.list(ctx, "get earnings only", repository.ExpenseFilter{IsEarning: &earning})
}

// Find runs an arbitrary filter.
func (s *ExpenseService) Find(ctx context.Context, filter repository.ExpenseFilter) ([]models.Expense, error) {
	return s.list(ctx, "find expenses", filter)
}

func (s *ExpenseService) ObserveAllExpensesAndEarnings(ctx context.Context) (<-chan []models.Expense, error) {
	return observe(ctx, s.store, s.log, s.GetAllExpensesAndEarnings, repository.TableExpenses)
}

func (s *ExpenseService) list(ctx context.Context, op string, filter repository.ExpenseFilter) ([]models.Expense, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, &ValidationError{Field: "from", Message: "must not be after to"}
	}

	var expenses []models.Expense
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		expenses, err = r.ListExpenses(ctx, filter)
		return err
	})
	return expenses, translateError(ctx, op, err)
}

// reversal is the balance change that undoes e.
func reversal(e models.Expense) decimal.Decimal {
	if e.IsEarning {
		return e.Amount.Neg()
	}
	return e.Amount
}

func operationName(earning bool) string {
	if earning {
		return "earning"
	}
	return "expense"
}

func validateExpense(e models.Expense) error {
	if !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if e.AccountID <= 0 {
		return &ValidationError{Field: "account_id", Message: "is required"}
	}
	if e.CategoryID <= 0 {
		return &ValidationError{Field: "category_id", Message: "is required"}
	}
	return nil
}
