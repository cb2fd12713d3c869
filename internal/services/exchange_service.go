package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/exchangeapi"
	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/settings"
)

const quotaExceededMessage = "Sorry, current plan doesn't allow so many requests. Please try again in a month :("

// QuoteSource is the remote conversion API.
type QuoteSource interface {
	Convert(ctx context.Context, to, from string, amount decimal.Decimal) (*exchangeapi.Response, error)
}

// ExchangeService converts amounts with cached rates and refreshes the cache
// from the quote source.
type ExchangeService struct {
	rates    *RateCache
	source   QuoteSource
	settings settings.Provider
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewExchangeService(rates *RateCache, source QuoteSource, provider settings.Provider, log logrus.FieldLogger) *ExchangeService {
	return &ExchangeService{
		rates:    rates,
		source:   source,
		settings: provider,
		log:      log,
		now:      time.Now,
	}
}

// Convert multiplies amount by the cached rate of (from, to). It never calls
// the network; a missing rate is a NotFoundError.
func (s *ExchangeService) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	pair := models.NewPair(from, to)
	rate, ok, err := s.rates.GetRate(ctx, pair.From, pair.To)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, RateNotFound(pair)
	}
	return amount.Mul(rate), nil
}

// SyncExchangeRate refreshes one pair when forced or when the last sync is
// older than the sync interval. The last sync time is recorded once a rate
// was received, and the result of storing it is returned.
func (s *ExchangeService) SyncExchangeRate(ctx context.Context, from, to string, force bool) error {
	pair := models.NewPair(from, to)
	if len(pair.From) != 3 || len(pair.To) != 3 {
		return &ValidationError{Field: "currency", Message: "must be a 3 letter ISO code"}
	}

	due, err := s.due(ctx, force)
	if err != nil || !due {
		return err
	}

	rate, err := s.fetchRate(ctx, pair)
	if err != nil {
		return err
	}

	upsertErr := s.rates.UpsertRate(ctx, pair.From, pair.To, rate)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err := s.recordSync(ctx); err != nil {
		return err
	}
	return upsertErr
}

// SyncAllExchangeRates refreshes every cached pair of the base currency, one
// pair at a time. The first network failure stops the batch. A successful
// response without a usable rate, or a failure to store a single rate, is
// logged and the batch goes on. The last sync time is recorded only when the
// batch ran to the end.
func (s *ExchangeService) SyncAllExchangeRates(ctx context.Context, force bool) error {
	due, err := s.due(ctx, force)
	if err != nil || !due {
		return err
	}

	base, err := s.settings.BaseCurrencyCode(ctx)
	if err != nil {
		return translateError(ctx, "read base currency", err)
	}

	cached, err := s.rates.GetRatesForCurrency(ctx, base)
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		return nil
	}

	for _, r := range cached {
		if err := ctx.Err(); err != nil {
			return err
		}

		pair := r.Pair()
		rate, err := s.fetchRate(ctx, pair)
		if errors.Is(err, errNoQuote) {
			s.log.WithError(err).WithField("pair", pair.String()).Warn("No rate in quote response, skipping pair")
			continue
		}
		if err != nil {
			return err
		}

		if err := s.rates.UpsertRate(ctx, pair.From, pair.To, rate); err != nil {
			if IsCancellation(err) {
				return err
			}
			s.log.WithError(err).WithField("pair", pair.String()).Warn("Failed to store exchange rate, continuing")
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.recordSync(ctx)
}

// RunBackgroundSync calls SyncAllExchangeRates(false) now and then on every
// tick until ctx is done. The staleness gate decides whether a tick fetches.
func (s *ExchangeService) RunBackgroundSync(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.log.WithField("every", every.String()).Info("Background rate sync started")
	for {
		if err := s.SyncAllExchangeRates(ctx, false); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("Background rate sync failed")
		}

		select {
		case <-ctx.Done():
			s.log.Info("Background rate sync stopped")
			return
		case <-ticker.C:
		}
	}
}

// BaseCurrencyCode returns the currency batch syncs run for.
func (s *ExchangeService) BaseCurrencyCode(ctx context.Context) (string, error) {
	code, err := s.settings.BaseCurrencyCode(ctx)
	return code, translateError(ctx, "read base currency", err)
}

func (s *ExchangeService) SetBaseCurrencyCode(ctx context.Context, code string) error {
	code = models.NormalizeCurrency(code)
	if len(code) != 3 {
		return &ValidationError{Field: "currency", Message: "must be a 3 letter ISO code"}
	}
	return translateError(ctx, "store base currency", s.settings.SetBaseCurrencyCode(ctx, code))
}

// LastSyncTime is the zero time before the first completed sync.
func (s *ExchangeService) LastSyncTime(ctx context.Context) (time.Time, error) {
	t, err := s.settings.GetLastSyncTime(ctx)
	return t, translateError(ctx, "read last sync time", err)
}

func (s *ExchangeService) due(ctx context.Context, force bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if force {
		return true, nil
	}
	due, err := s.settings.ShouldSyncNow(ctx)
	if err != nil {
		return false, translateError(ctx, "read last sync time", err)
	}
	return due, nil
}

func (s *ExchangeService) recordSync(ctx context.Context) error {
	if err := s.settings.SetLastSyncTime(ctx, s.now()); err != nil {
		return translateError(ctx, "record last sync time", err)
	}
	return nil
}

// errNoQuote marks a successful response that carried no usable rate.
var errNoQuote = errors.New("quote response carried no rate")

// fetchRate asks the quote source for the value of one unit of pair.From in
// pair.To.
func (s *ExchangeService) fetchRate(ctx context.Context, pair models.Pair) (decimal.Decimal, error) {
	failure := fmt.Sprintf("Error happened while retrieving data for currencies: %s, %s from network", pair.From, pair.To)

	resp, err := s.source.Convert(ctx, pair.To, pair.From, decimal.NewFromInt(1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, ctxErr
		}
		if IsCancellation(err) {
			return decimal.Zero, err
		}
		return decimal.Zero, &NetworkError{Message: failure, Err: err}
	}

	if !resp.IsSuccessful() {
		if resp.StatusCode == http.StatusTooManyRequests {
			return decimal.Zero, &NetworkError{Message: quotaExceededMessage, StatusCode: resp.StatusCode}
		}
		return decimal.Zero, &NetworkError{Message: failure, StatusCode: resp.StatusCode}
	}

	if resp.Body == nil {
		return decimal.Zero, &NetworkError{
			Message:    fmt.Sprintf("Request for currencies: %s, %s returned empty response", pair.From, pair.To),
			StatusCode: resp.StatusCode,
			Err:        errNoQuote,
		}
	}
	if !resp.Body.Success {
		return decimal.Zero, &NetworkError{Message: failure, StatusCode: resp.StatusCode, Err: errNoQuote}
	}

	rate := resp.Body.Info.Rate
	if rate.IsZero() {
		rate = resp.Body.Result
	}
	if !rate.IsPositive() {
		return decimal.Zero, &NetworkError{
			Message:    fmt.Sprintf("Request for currencies: %s, %s returned empty response", pair.From, pair.To),
			StatusCode: resp.StatusCode,
			Err:        errNoQuote,
		}
	}
	return rate, nil
}
