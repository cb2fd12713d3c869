package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups expenses and earnings.
type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"category_name"`
}

// Expense is a spend or, when IsEarning is set, an earning on an account.
// Amount is always a non-negative magnitude.
type Expense struct {
	ID         int64           `json:"id" db:"id"`
	Date       time.Time       `json:"date" db:"date"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	CategoryID int64           `json:"category_id" db:"category_id"`
	AccountID  int64           `json:"account_id" db:"account_id"`
	IsEarning  bool            `json:"is_earning" db:"is_earning"`
}

// Debt is money owed, due at a given date.
type Debt struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"debt_name"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	CurrencyCode string          `json:"currency" db:"currency"`
	DueDate      time.Time       `json:"due_date" db:"due_date"`
}
