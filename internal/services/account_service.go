package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/audit"
	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

// AccountService maintains account balances together with the total amount.
type AccountService struct {
	store repository.Store
	audit *audit.Logger
	log   logrus.FieldLogger
}

func NewAccountService(store repository.Store, auditLogger *audit.Logger, log logrus.FieldLogger) *AccountService {
	return &AccountService{
		store: store,
		audit: auditLogger,
		log:   log,
	}
}

// AddNewAccount stores account and adds its opening balance to the total.
func (s *AccountService) AddNewAccount(ctx context.Context, account models.Account) (int64, error) {
	account.Name = strings.TrimSpace(account.Name)
	account.CurrencyCode = models.NormalizeCurrency(account.CurrencyCode)
	if err := validateAccount(account); err != nil {
		return 0, err
	}

	opID := audit.NewOperationID()
	var id int64
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		if err := addToTotalOrCreate(ctx, q, account.Amount); err != nil {
			return err
		}
		var err error
		id, err = q.InsertAccount(ctx, account)
		return err
	})
	if err != nil {
		err = translateError(ctx, "add account", err)
		s.audit.LogError(opID, 0, "ADD_ACCOUNT", err)
		return 0, err
	}

	s.audit.LogOperation(opID, id, "ADD_ACCOUNT", account.Amount)
	return id, nil
}

// DeleteAccount removes the account, its expense history and its balance
// from the total.
func (s *AccountService) DeleteAccount(ctx context.Context, id int64) error {
	opID := audit.NewOperationID()
	var amount decimal.Decimal
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		account, err := loadAccountTx(ctx, q, id)
		if err != nil {
			return err
		}
		amount = account.Amount
		if err := addToTotal(ctx, q, account.Amount.Neg()); err != nil {
			return err
		}
		return q.DeleteAccount(ctx, id)
	})
	if err != nil {
		err = translateError(ctx, "delete account", err)
		s.audit.LogError(opID, id, "DELETE_ACCOUNT", err)
		return err
	}

	s.audit.LogOperation(opID, id, "DELETE_ACCOUNT", amount)
	return nil
}

// ClearAllAccounts deletes every account and resets the total to zero.
func (s *AccountService) ClearAllAccounts(ctx context.Context) error {
	opID := audit.NewOperationID()
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		if err := q.UpdateTotalAmount(ctx, decimal.Zero); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Entity: EntityTotalAmount}
			}
			return err
		}
		return q.DeleteAllAccounts(ctx)
	})
	if err != nil {
		err = translateError(ctx, "clear accounts", err)
		s.audit.LogError(opID, 0, "CLEAR_ACCOUNTS", err)
		return err
	}

	s.audit.LogOperation(opID, 0, "CLEAR_ACCOUNTS", decimal.Zero)
	return nil
}

// TransferMoney moves amount from one account to another. The total does
// not change. The source balance is not checked and may go negative.
func (s *AccountService) TransferMoney(ctx context.Context, fromID, toID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	opID := audit.NewOperationID()
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		// Lock accounts in id order to prevent deadlocks
		firstID, secondID := fromID, toID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}

		first, err := loadAccountTx(ctx, q, firstID)
		if err != nil {
			return err
		}
		if fromID == toID {
			return nil
		}
		second, err := loadAccountTx(ctx, q, secondID)
		if err != nil {
			return err
		}

		from, to := first, second
		if firstID != fromID {
			from, to = second, first
		}

		if _, err := addToAccount(ctx, q, from, amount.Neg()); err != nil {
			return err
		}
		_, err = addToAccount(ctx, q, to, amount)
		return err
	})
	if err != nil {
		err = translateError(ctx, "transfer money", err)
		s.audit.LogTransfer(opID, fromID, toID, amount, audit.StatusFailed)
		return err
	}

	s.audit.LogTransfer(opID, fromID, toID, amount, audit.StatusSuccess)
	return nil
}

func (s *AccountService) GetAccountByID(ctx context.Context, id int64) (models.Account, error) {
	var account models.Account
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		account, err = r.GetAccount(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(EntityAccount, id)
		}
		return err
	})
	return account, translateError(ctx, "get account", err)
}

func (s *AccountService) GetAccountsForType(ctx context.Context, t models.AccountType) ([]models.Account, error) {
	var accounts []models.Account
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		accounts, err = r.GetAccountsForType(ctx, t)
		return err
	})
	return accounts, translateError(ctx, "get accounts for type", err)
}

func (s *AccountService) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		accounts, err = r.GetAllAccounts(ctx)
		return err
	})
	return accounts, translateError(ctx, "get accounts", err)
}

// GetAmountsGroupedByAccounts pairs every account with its balance, ordered
// by account id.
func (s *AccountService) GetAmountsGroupedByAccounts(ctx context.Context) ([]models.AccountAmount, error) {
	accounts, err := s.GetAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.AccountAmount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.AccountAmount{Account: a, Amount: a.Amount})
	}
	return out, nil
}

// GetTotalAmount returns zero before the first account is created.
func (s *AccountService) GetTotalAmount(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.store.View(ctx, func(r repository.Reader) error {
		t, err := r.GetTotalAmount(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		total = t.Amount
		return nil
	})
	return total, translateError(ctx, "get total amount", err)
}

func (s *AccountService) ObserveTotalAmount(ctx context.Context) (<-chan decimal.Decimal, error) {
	return observe(ctx, s.store, s.log, s.GetTotalAmount, repository.TableTotalAmount)
}

func (s *AccountService) ObserveAmountsGroupedByAccounts(ctx context.Context) (<-chan []models.AccountAmount, error) {
	return observe(ctx, s.store, s.log, s.GetAmountsGroupedByAccounts, repository.TableAccounts)
}

func validateAccount(a models.Account) error {
	if !a.Type.Valid() {
		return &ValidationError{Field: "type", Message: "must be one of CASH, CARD, BANK_ACCOUNT"}
	}
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(a.CurrencyCode) != 3 {
		return &ValidationError{Field: "currency", Message: "must be a 3 letter ISO code"}
	}
	if a.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Message: "must not be negative"}
	}
	return nil
}
