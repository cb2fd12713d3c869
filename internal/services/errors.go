package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

const (
	EntityAccount      = "account"
	EntityTotalAmount  = "total amount"
	EntityExpense      = "expense"
	EntityCategory     = "category"
	EntityDebt         = "debt"
	EntityCurrencyRate = "currency rate"
)

// domainError marks the typed errors of this package so they pass through
// translateError untouched.
type domainError interface {
	error
	domain()
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (*NotFoundError) domain() {}

func notFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// RateNotFound is returned by conversions for a pair with no cached rate.
func RateNotFound(pair models.Pair) *NotFoundError {
	return &NotFoundError{Entity: EntityCurrencyRate, ID: pair.String()}
}

// InsufficientFundsError reports a spend larger than the account balance.
type InsufficientFundsError struct {
	AccountID int64
	Need      decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %d: need %s, available %s",
		e.AccountID, e.Need.String(), e.Available.String())
}

func (*InsufficientFundsError) domain() {}

// ConstraintViolationError reports a write the store refused, such as an
// expense pointing at an unknown category.
type ConstraintViolationError struct {
	Op  string
	Err error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

func (*ConstraintViolationError) domain() {}

// NetworkError reports a failed or unsuccessful call to the quote API.
// StatusCode is zero when no response was received.
type NetworkError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	return e.Message
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (*NetworkError) domain() {}

// StoreError wraps any other persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (*StoreError) domain() {}

// ValidationError reports invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (*ValidationError) domain() {}

// IsCancellation reports whether err is a context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// translateError turns whatever came out of a unit of work into one of the
// typed errors. Cancellation is returned as is.
func translateError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if IsCancellation(err) {
		return err
	}

	var de domainError
	if errors.As(err, &de) {
		return err
	}

	if errors.Is(err, repository.ErrConstraint) {
		return &ConstraintViolationError{Op: op, Err: err}
	}
	return &StoreError{Op: op, Err: err}
}
