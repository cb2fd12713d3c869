package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xpense/backend/internal/exchangeapi"
	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
	"github.com/xpense/backend/internal/settings"
)

var syncNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

type exchangeFixture struct {
	store    repository.Store
	rates    *RateCache
	source   *MockQuoteSource
	settings *settings.MemoryProvider
	service  *ExchangeService
}

func newExchangeFixture(t *testing.T, store repository.Store) *exchangeFixture {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryStore()
	}
	f := &exchangeFixture{
		store:  store,
		rates:  NewRateCache(store),
		source: new(MockQuoteSource),
		settings: settings.NewMemoryProvider(settings.Options{
			Now: func() time.Time { return syncNow },
		}),
	}
	f.service = NewExchangeService(f.rates, f.source, f.settings, nullLogger())
	f.service.now = func() time.Time { return syncNow }
	t.Cleanup(func() { f.source.AssertExpectations(t) })
	return f
}

func (f *exchangeFixture) seed(t *testing.T, from, to, rate string) {
	t.Helper()
	require.NoError(t, f.rates.UpsertRate(context.Background(), from, to, dec(rate)))
}

func (f *exchangeFixture) rate(t *testing.T, from, to string) (decimal.Decimal, bool) {
	t.Helper()
	rate, ok, err := f.rates.GetRate(context.Background(), from, to)
	require.NoError(t, err)
	return rate, ok
}

func (f *exchangeFixture) lastSync(t *testing.T) time.Time {
	t.Helper()
	last, err := f.service.LastSyncTime(context.Background())
	require.NoError(t, err)
	return last
}

func (f *exchangeFixture) expectQuote(from, to string) *mock.Call {
	return f.source.On("Convert", mock.Anything, to, from, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.NewFromInt(1))
	}))
}

func TestExchangeService_Convert(t *testing.T) {
	f := newExchangeFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Convert(ctx, "USD", "RUB", dec("10"))
	var notFoundErr *NotFoundError
	require.True(t, errors.As(err, &notFoundErr))
	assert.Equal(t, EntityCurrencyRate, notFoundErr.Entity)
	assert.Equal(t, "USD/RUB", notFoundErr.ID)

	f.seed(t, "USD", "RUB", "71.4")

	got, err := f.service.Convert(ctx, "usd", "rub", dec("10"))
	require.NoError(t, err)
	assert.True(t, dec("714").Equal(got))

	_, err = f.service.Convert(ctx, "RUB", "USD", dec("10"))
	assert.True(t, errors.As(err, &notFoundErr), "the inverse pair is not derived")
}

func TestExchangeService_SyncExchangeRate(t *testing.T) {
	ctx := context.Background()

	t.Run("stale settings fetch and store the rate", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.expectQuote("USD", "RUB").Return(okQuote("USD", "RUB", "71.4"), nil).Once()

		require.NoError(t, f.service.SyncExchangeRate(ctx, "USD", "RUB", false))

		rate, ok := f.rate(t, "USD", "RUB")
		require.True(t, ok)
		assert.True(t, dec("71.4").Equal(rate))
		assert.True(t, syncNow.Equal(f.lastSync(t)))
	})

	t.Run("fresh settings skip the network", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		require.NoError(t, f.settings.SetLastSyncTime(ctx, syncNow.Add(-time.Hour)))

		require.NoError(t, f.service.SyncExchangeRate(ctx, "USD", "RUB", false))

		_, ok := f.rate(t, "USD", "RUB")
		assert.False(t, ok)
		f.source.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("force ignores the interval", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		require.NoError(t, f.settings.SetLastSyncTime(ctx, syncNow.Add(-time.Minute)))
		f.expectQuote("EUR", "RUB").Return(okQuote("EUR", "RUB", "80"), nil).Once()

		require.NoError(t, f.service.SyncExchangeRate(ctx, "EUR", "RUB", true))

		_, ok := f.rate(t, "EUR", "RUB")
		assert.True(t, ok)
	})

	t.Run("rate falls back to the result", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		resp := okQuote("USD", "RUB", "71.4")
		resp.Body.Info.Rate = decimal.Zero
		f.expectQuote("USD", "RUB").Return(resp, nil).Once()

		require.NoError(t, f.service.SyncExchangeRate(ctx, "USD", "RUB", true))
		rate, _ := f.rate(t, "USD", "RUB")
		assert.True(t, dec("71.4").Equal(rate))
	})

	t.Run("quota exceeded", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "USD", "RUB", "70")
		f.expectQuote("USD", "RUB").Return(&exchangeapi.Response{StatusCode: http.StatusTooManyRequests}, nil).Once()

		err := f.service.SyncExchangeRate(ctx, "USD", "RUB", true)

		var networkErr *NetworkError
		require.True(t, errors.As(err, &networkErr))
		assert.Equal(t, http.StatusTooManyRequests, networkErr.StatusCode)
		assert.Equal(t, "Sorry, current plan doesn't allow so many requests. Please try again in a month :(", networkErr.Message)

		rate, _ := f.rate(t, "USD", "RUB")
		assert.True(t, dec("70").Equal(rate), "cached rate stays")
		assert.True(t, f.lastSync(t).IsZero())
	})

	t.Run("server error", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.expectQuote("USD", "RUB").Return(&exchangeapi.Response{StatusCode: http.StatusBadGateway}, nil).Once()

		err := f.service.SyncExchangeRate(ctx, "USD", "RUB", true)

		var networkErr *NetworkError
		require.True(t, errors.As(err, &networkErr))
		assert.Equal(t, "Error happened while retrieving data for currencies: USD, RUB from network", networkErr.Message)
	})

	t.Run("empty body", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.expectQuote("USD", "RUB").Return(&exchangeapi.Response{StatusCode: http.StatusOK}, nil).Once()

		err := f.service.SyncExchangeRate(ctx, "USD", "RUB", true)

		var networkErr *NetworkError
		require.True(t, errors.As(err, &networkErr))
		assert.Equal(t, "Request for currencies: USD, RUB returned empty response", networkErr.Message)
		assert.True(t, f.lastSync(t).IsZero())
	})

	t.Run("unsuccessful body", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		resp := okQuote("USD", "RUB", "71.4")
		resp.Body.Success = false
		f.expectQuote("USD", "RUB").Return(resp, nil).Once()

		err := f.service.SyncExchangeRate(ctx, "USD", "RUB", true)
		var networkErr *NetworkError
		assert.True(t, errors.As(err, &networkErr))
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		dialErr := errors.New("dial tcp: connection refused")
		f.expectQuote("USD", "RUB").Return(nil, dialErr).Once()

		err := f.service.SyncExchangeRate(ctx, "USD", "RUB", true)

		var networkErr *NetworkError
		require.True(t, errors.As(err, &networkErr))
		assert.Zero(t, networkErr.StatusCode)
		assert.ErrorIs(t, err, dialErr)
	})

	t.Run("invalid codes", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		err := f.service.SyncExchangeRate(ctx, "US", "RUB", true)
		var validationErr *ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})

	t.Run("store failure still records the sync", func(t *testing.T) {
		memory := repository.NewMemoryStore()
		storeFailure := errors.New("disk full")
		hooked := &hookStore{Store: memory, hooks: hookQueries{
			beforeUpsertRate: func(models.CurrencyRate) error { return storeFailure },
		}}
		f := newExchangeFixture(t, hooked)
		f.expectQuote("USD", "RUB").Return(okQuote("USD", "RUB", "71.4"), nil).Once()

		err := f.service.SyncExchangeRate(ctx, "USD", "RUB", true)

		var storeErr *StoreError
		require.True(t, errors.As(err, &storeErr))
		assert.ErrorIs(t, err, storeFailure)
		assert.True(t, syncNow.Equal(f.lastSync(t)))
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := f.service.SyncExchangeRate(cctx, "USD", "RUB", true)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExchangeService_SyncAllExchangeRates(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes every pair of the base currency", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "RUB", "EUR", "0.01")
		f.seed(t, "RUB", "USD", "0.013")
		f.seed(t, "USD", "EUR", "0.9")

		f.expectQuote("RUB", "EUR").Return(okQuote("RUB", "EUR", "0.011"), nil).Once()
		f.expectQuote("RUB", "USD").Return(okQuote("RUB", "USD", "0.014"), nil).Once()

		require.NoError(t, f.service.SyncAllExchangeRates(ctx, false))

		eur, _ := f.rate(t, "RUB", "EUR")
		usd, _ := f.rate(t, "RUB", "USD")
		other, _ := f.rate(t, "USD", "EUR")
		assert.True(t, dec("0.011").Equal(eur))
		assert.True(t, dec("0.014").Equal(usd))
		assert.True(t, dec("0.9").Equal(other), "pairs of other bases are left alone")
		assert.True(t, syncNow.Equal(f.lastSync(t)))
	})

	t.Run("network failure stops the batch", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "RUB", "EUR", "0.01")
		f.seed(t, "RUB", "USD", "0.013")

		f.expectQuote("RUB", "EUR").Return(&exchangeapi.Response{StatusCode: http.StatusInternalServerError}, nil).Once()

		err := f.service.SyncAllExchangeRates(ctx, true)
		var networkErr *NetworkError
		require.True(t, errors.As(err, &networkErr))

		usd, _ := f.rate(t, "RUB", "USD")
		assert.True(t, dec("0.013").Equal(usd))
		assert.True(t, f.lastSync(t).IsZero())
	})

	t.Run("response without a rate skips one pair", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "RUB", "EUR", "0.01")
		f.seed(t, "RUB", "GBP", "0.009")
		f.seed(t, "RUB", "USD", "0.013")

		unsuccessful := okQuote("RUB", "GBP", "0.0085")
		unsuccessful.Body.Success = false
		f.expectQuote("RUB", "EUR").Return(&exchangeapi.Response{StatusCode: http.StatusOK}, nil).Once()
		f.expectQuote("RUB", "GBP").Return(unsuccessful, nil).Once()
		f.expectQuote("RUB", "USD").Return(okQuote("RUB", "USD", "0.014"), nil).Once()

		require.NoError(t, f.service.SyncAllExchangeRates(ctx, true))

		eur, _ := f.rate(t, "RUB", "EUR")
		gbp, _ := f.rate(t, "RUB", "GBP")
		usd, _ := f.rate(t, "RUB", "USD")
		assert.True(t, dec("0.01").Equal(eur))
		assert.True(t, dec("0.009").Equal(gbp))
		assert.True(t, dec("0.014").Equal(usd))
		assert.True(t, syncNow.Equal(f.lastSync(t)))
	})

	t.Run("store failure skips one pair", func(t *testing.T) {
		memory := repository.NewMemoryStore()
		hooked := &hookStore{Store: memory, hooks: hookQueries{
			beforeUpsertRate: func(r models.CurrencyRate) error {
				if r.To == "EUR" {
					return errors.New("write failed")
				}
				return nil
			},
		}}
		f := newExchangeFixture(t, memory)
		f.seed(t, "RUB", "EUR", "0.01")
		f.seed(t, "RUB", "USD", "0.013")
		f.rates = NewRateCache(hooked)
		f.service = NewExchangeService(f.rates, f.source, f.settings, nullLogger())
		f.service.now = func() time.Time { return syncNow }

		f.expectQuote("RUB", "EUR").Return(okQuote("RUB", "EUR", "0.011"), nil).Once()
		f.expectQuote("RUB", "USD").Return(okQuote("RUB", "USD", "0.014"), nil).Once()

		require.NoError(t, f.service.SyncAllExchangeRates(ctx, true))

		eur, _ := f.rate(t, "RUB", "EUR")
		usd, _ := f.rate(t, "RUB", "USD")
		assert.True(t, dec("0.01").Equal(eur))
		assert.True(t, dec("0.014").Equal(usd))
		assert.True(t, syncNow.Equal(f.lastSync(t)))
	})

	t.Run("no cached pairs", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "USD", "EUR", "0.9")

		require.NoError(t, f.service.SyncAllExchangeRates(ctx, true))
		assert.True(t, f.lastSync(t).IsZero())
	})

	t.Run("follows the base currency setting", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "USD", "EUR", "0.9")
		require.NoError(t, f.service.SetBaseCurrencyCode(ctx, "usd"))

		f.expectQuote("USD", "EUR").Return(okQuote("USD", "EUR", "0.92"), nil).Once()

		require.NoError(t, f.service.SyncAllExchangeRates(ctx, true))
		rate, _ := f.rate(t, "USD", "EUR")
		assert.True(t, dec("0.92").Equal(rate))
	})

	t.Run("not due", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "RUB", "EUR", "0.01")
		require.NoError(t, f.settings.SetLastSyncTime(ctx, syncNow.Add(-23*time.Hour)))

		require.NoError(t, f.service.SyncAllExchangeRates(ctx, false))
	})

	t.Run("cancelled during a fetch", func(t *testing.T) {
		f := newExchangeFixture(t, nil)
		f.seed(t, "RUB", "EUR", "0.01")
		f.seed(t, "RUB", "USD", "0.013")

		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		f.expectQuote("RUB", "EUR").
			Run(func(mock.Arguments) { cancel() }).
			Return(nil, context.Canceled).Once()

		err := f.service.SyncAllExchangeRates(cctx, true)
		assert.ErrorIs(t, err, context.Canceled)

		var networkErr *NetworkError
		assert.False(t, errors.As(err, &networkErr))
		assert.True(t, f.lastSync(t).IsZero())
	})
}

func TestExchangeService_RunBackgroundSync(t *testing.T) {
	f := newExchangeFixture(t, nil)
	f.seed(t, "RUB", "USD", "0.013")

	fetched := make(chan struct{}, 1)
	f.expectQuote("RUB", "USD").
		Run(func(mock.Arguments) { fetched <- struct{}{} }).
		Return(okQuote("RUB", "USD", "0.014"), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.service.RunBackgroundSync(ctx, time.Hour)
	}()

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("first sync did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background sync did not stop")
	}
}
