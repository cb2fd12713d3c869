package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Pair is an ordered (from, to) currency code tuple.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewPair returns the pair with both codes upper-cased.
func NewPair(from, to string) Pair {
	return Pair{From: NormalizeCurrency(from), To: NormalizeCurrency(to)}
}

func (p Pair) String() string {
	return p.From + "/" + p.To
}

// CurrencyRate is the last known rate for a pair: 1 From = Rate To.
type CurrencyRate struct {
	From string          `json:"from" db:"from_currency"`
	To   string          `json:"to" db:"to_currency"`
	Rate decimal.Decimal `json:"rate" db:"rate"`
}

// Pair returns the key of the rate.
func (r CurrencyRate) Pair() Pair {
	return Pair{From: r.From, To: r.To}
}

// NormalizeCurrency trims and upper-cases an ISO currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
