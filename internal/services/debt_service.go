package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

type DebtService struct {
	store repository.Store
	log   logrus.FieldLogger
}

func NewDebtService(store repository.Store, log logrus.FieldLogger) *DebtService {
	return &DebtService{store: store, log: log}
}

func (s *DebtService) AddDebt(ctx context.Context, debt models.Debt) (int64, error) {
	debt.Name = strings.TrimSpace(debt.Name)
	debt.CurrencyCode = models.NormalizeCurrency(debt.CurrencyCode)
	switch {
	case debt.Name == "":
		return 0, &ValidationError{Field: "name", Message: "is required"}
	case debt.Amount.IsNegative():
		return 0, &ValidationError{Field: "amount", Message: "must not be negative"}
	case len(debt.CurrencyCode) != 3:
		return 0, &ValidationError{Field: "currency", Message: "must be a 3 letter ISO code"}
	case debt.DueDate.IsZero():
		return 0, &ValidationError{Field: "due_date", Message: "is required"}
	}

	var id int64
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		var err error
		id, err = q.InsertDebt(ctx, debt)
		return err
	})
	return id, translateError(ctx, "add debt", err)
}

// GetAllDebts returns every debt by ascending due date.
func (s *DebtService) GetAllDebts(ctx context.Context) ([]models.Debt, error) {
	return s.list(ctx, nil, nil)
}

// GetAllDebtsForPeriod returns the debts due within [from, to].
func (s *DebtService) GetAllDebtsForPeriod(ctx context.Context, from, to time.Time) ([]models.Debt, error) {
	if from.After(to) {
		return nil, &ValidationError{Field: "from", Message: "must not be after to"}
	}
	return s.list(ctx, &from, &to)
}

func (s *DebtService) DeleteDebt(ctx context.Context, id int64) error {
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		err := q.DeleteDebt(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(EntityDebt, id)
		}
		return err
	})
	return translateError(ctx, "delete debt", err)
}

func (s *DebtService) ClearAllDebts(ctx context.Context) error {
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		return q.DeleteAllDebts(ctx)
	})
	return translateError(ctx, "clear debts", err)
}

func (s *DebtService) ObserveAllDebts(ctx context.Context) (<-chan []models.Debt, error) {
	return observe(ctx, s.store, s.log, s.GetAllDebts, repository.TableDebts)
}

func (s *DebtService) list(ctx context.Context, from, to *time.Time) ([]models.Debt, error) {
	var debts []models.Debt
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		debts, err = r.ListDebts(ctx, from, to)
		return err
	})
	return debts, translateError(ctx, "get debts", err)
}
