package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

// RateCache holds the last known rate of every currency pair.
type RateCache struct {
	store repository.Store
}

func NewRateCache(store repository.Store) *RateCache {
	return &RateCache{store: store}
}

// UpsertRate overwrites the rate of the pair; the last write wins.
func (c *RateCache) UpsertRate(ctx context.Context, from, to string, rate decimal.Decimal) error {
	pair := models.NewPair(from, to)
	if len(pair.From) != 3 || len(pair.To) != 3 {
		return &ValidationError{Field: "currency", Message: "must be a 3 letter ISO code"}
	}
	if !rate.IsPositive() {
		return &ValidationError{Field: "rate", Message: "must be positive"}
	}

	err := c.store.RunAtomically(ctx, func(q repository.Queries) error {
		return q.UpsertRate(ctx, models.CurrencyRate{From: pair.From, To: pair.To, Rate: rate})
	})
	return translateError(ctx, "upsert rate "+pair.String(), err)
}

// GetRate looks the pair up. A miss is reported with ok=false, not an error.
func (c *RateCache) GetRate(ctx context.Context, from, to string) (rate decimal.Decimal, ok bool, err error) {
	pair := models.NewPair(from, to)
	err = c.store.View(ctx, func(r repository.Reader) error {
		cached, err := r.GetRate(ctx, pair.From, pair.To)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rate, ok = cached.Rate, true
		return nil
	})
	if err != nil {
		return decimal.Zero, false, translateError(ctx, "get rate "+pair.String(), err)
	}
	return rate, ok, nil
}

// GetRatesForCurrency returns every cached pair converting from base.
func (c *RateCache) GetRatesForCurrency(ctx context.Context, base string) ([]models.CurrencyRate, error) {
	base = models.NormalizeCurrency(base)
	var rates []models.CurrencyRate
	err := c.store.View(ctx, func(r repository.Reader) error {
		var err error
		rates, err = r.ListRatesFrom(ctx, base)
		return err
	})
	return rates, translateError(ctx, "get rates for "+base, err)
}
