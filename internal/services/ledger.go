package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

// Balance primitives shared by the account and expense ledgers. They only
// run inside a unit of work.

func loadAccountTx(ctx context.Context, q repository.Queries, id int64) (models.Account, error) {
	account, err := q.GetAccount(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Account{}, notFound(EntityAccount, id)
	}
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

// addToAccount moves the balance of account by delta and persists it.
func addToAccount(ctx context.Context, q repository.Queries, account models.Account, delta decimal.Decimal) (decimal.Decimal, error) {
	balance := account.Amount.Add(delta)
	if err := q.UpdateAccountAmount(ctx, account.ID, balance); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return decimal.Zero, notFound(EntityAccount, account.ID)
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// addToTotal moves the total by delta. The total must exist.
func addToTotal(ctx context.Context, q repository.Queries, delta decimal.Decimal) error {
	total, err := q.GetTotalAmount(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Entity: EntityTotalAmount}
	}
	if err != nil {
		return err
	}
	return q.UpdateTotalAmount(ctx, total.Amount.Add(delta))
}

// addToTotalOrCreate is addToTotal, creating the total at zero first when it
// does not exist yet.
func addToTotalOrCreate(ctx context.Context, q repository.Queries, delta decimal.Decimal) error {
	if err := q.EnsureTotalAmount(ctx); err != nil {
		return err
	}
	return addToTotal(ctx, q, delta)
}
