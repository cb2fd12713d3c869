package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TotalAmountID is the id of the single total_amount row.
const TotalAmountID int64 = 1

// AccountType classifies where the money of an account is held.
type AccountType string

const (
	AccountTypeCash        AccountType = "CASH"
	AccountTypeCard        AccountType = "CARD"
	AccountTypeBankAccount AccountType = "BANK_ACCOUNT"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeCash, AccountTypeCard, AccountTypeBankAccount:
		return true
	}
	return false
}

// ParseAccountType parses a case-insensitive account type name.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown account type %q", s)
	}
	return t, nil
}

// Account is a place money is kept in, in a single currency.
type Account struct {
	ID           int64           `json:"id" db:"id"`
	Type         AccountType     `json:"type" db:"type"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	CurrencyCode string          `json:"currency" db:"currency_code"`
	Name         string          `json:"name" db:"account_name"`
}

// TotalAmount holds the sum of all account balances at the last commit.
type TotalAmount struct {
	ID     int64           `json:"id" db:"id"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
}

// AccountAmount associates an account with its current balance.
type AccountAmount struct {
	Account Account         `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}
