package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpense/backend/internal/audit"
	"github.com/xpense/backend/internal/exchangeapi"
	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
	"github.com/xpense/backend/internal/services"
	"github.com/xpense/backend/internal/settings"
)

type apiFixture struct {
	server *httptest.Server
	quotes *httptest.Server

	mu sync.Mutex
	// quote answers the remote convert calls.
	quote http.HandlerFunc
}

func (f *apiFixture) setQuote(h http.HandlerFunc) {
	f.mu.Lock()
	f.quote = h
	f.mu.Unlock()
}

func newAPI(t *testing.T, secret string) *apiFixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &apiFixture{}

	f.quotes = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		quote := f.quote
		f.mu.Unlock()
		if quote == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		quote(w, r)
	}))
	t.Cleanup(f.quotes.Close)

	store := repository.NewMemoryStore()
	auditLogger := audit.NewLogger(log)
	rates := services.NewRateCache(store)
	client := exchangeapi.NewClient(f.quotes.URL, "test-key", 5*time.Second, log)

	svc := Services{
		Accounts:   services.NewAccountService(store, auditLogger, log),
		Expenses:   services.NewExpenseService(store, auditLogger, log),
		Categories: services.NewCategoryService(store, log),
		Debts:      services.NewDebtService(store, log),
		Exchange:   services.NewExchangeService(rates, client, settings.NewMemoryProvider(settings.Options{}), log),
		Rates:      rates,
	}

	f.server = httptest.NewServer(NewRouter(svc, RouterConfig{JWTSecret: secret, StorageType: store.StorageType()}, log))
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (f *apiFixture) create(t *testing.T, path, body string) int64 {
	t.Helper()
	status, out := f.do(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, status, "%s", out["error"])
	var id int64
	require.NoError(t, json.Unmarshal(out["id"], &id))
	return id
}

func decodeDecimal(t *testing.T, raw json.RawMessage) decimal.Decimal {
	t.Helper()
	var d decimal.Decimal
	require.NoError(t, json.Unmarshal(raw, &d))
	return d
}

func (f *apiFixture) total(t *testing.T) decimal.Decimal {
	t.Helper()
	status, out := f.do(t, http.MethodGet, "/api/v1/accounts/total", "")
	require.Equal(t, http.StatusOK, status)
	return decodeDecimal(t, out["amount"])
}

func TestRouter_Health(t *testing.T) {
	api := newAPI(t, "")

	resp, err := http.Get(api.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestRouter_LedgerFlow(t *testing.T) {
	api := newAPI(t, "")

	x := api.create(t, "/api/v1/accounts", `{"type":"cash","amount":"10","currency":"rub","name":"wallet"}`)
	y := api.create(t, "/api/v1/accounts", `{"type":"CARD","amount":10,"currency":"RUB","name":"card"}`)
	category := api.create(t, "/api/v1/categories", `{"name":"food"}`)
	assert.True(t, decimal.NewFromInt(20).Equal(api.total(t)))

	spend := fmt.Sprintf(`{"amount":"11","category_id":%d,"account_id":%d}`, category, x)
	status, out := api.do(t, http.MethodPost, "/api/v1/expenses/spend", spend)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(out["error"]), "insufficient funds")

	spend = fmt.Sprintf(`{"amount":"1","category_id":%d,"account_id":%d,"date":"2024-01-31T18:00:00Z"}`, category, x)
	expenseID := api.create(t, "/api/v1/expenses/spend", spend)
	assert.True(t, decimal.NewFromInt(19).Equal(api.total(t)))

	status, out = api.do(t, http.MethodGet, "/api/v1/expenses?kind=expense&from=2024-01-01&to=2024-01-31", "")
	require.Equal(t, http.StatusOK, status)
	var listed []struct{ ID int64 }
	require.NoError(t, json.Unmarshal(out["expenses"], &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, expenseID, listed[0].ID)

	status, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/categories/%d", category), "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(t, http.MethodPost, "/api/v1/accounts/transfer", fmt.Sprintf(`{"from_id":%d,"to_id":%d,"amount":"4"}`, y, x))
	assert.Equal(t, http.StatusOK, status)

	status, out = api.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", x), "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decimal.NewFromInt(13).Equal(decodeDecimal(t, out["amount"])))

	status, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/expenses/%d", expenseID), "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.True(t, decimal.NewFromInt(20).Equal(api.total(t)))

	status, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/accounts/%d", x), "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.True(t, decimal.NewFromInt(6).Equal(api.total(t)))

	status, _ = api.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", x), "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_BadRequests(t *testing.T) {
	api := newAPI(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"unknown field", http.MethodPost, "/api/v1/categories", `{"name":"x","color":"red"}`},
		{"two objects", http.MethodPost, "/api/v1/categories", `{"name":"x"}{"name":"y"}`},
		{"missing ids", http.MethodPost, "/api/v1/expenses/spend", `{"amount":"1"}`},
		{"unknown account type", http.MethodPost, "/api/v1/accounts", `{"type":"wallet","amount":"1","currency":"RUB","name":"x"}`},
		{"bad path id", http.MethodGet, "/api/v1/accounts/abc", ""},
		{"bad kind", http.MethodGet, "/api/v1/expenses?kind=other", ""},
		{"reversed period", http.MethodGet, "/api/v1/expenses?from=2024-02-01&to=2024-01-01", ""},
		{"bad amount", http.MethodGet, "/api/v1/rates/convert?from=USD&to=RUB&amount=ten", ""},
		{"half a debt period", http.MethodGet, "/api/v1/debts?from=2024-01-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status, "%s", out["error"])
		})
	}
}

func TestRouter_Rates(t *testing.T) {
	api := newAPI(t, "")

	status, _ := api.do(t, http.MethodGet, "/api/v1/rates/convert?from=USD&to=RUB&amount=10", "")
	assert.Equal(t, http.StatusNotFound, status)

	seen := make(chan *http.Request, 1)
	api.setQuote(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"date":"2024-02-01","info":{"rate":71.4,"timestamp":1706745600},"query":{"amount":1,"from":"USD","to":"RUB"},"result":71.4,"success":true}`)
	})

	status, out := api.do(t, http.MethodPost, "/api/v1/rates/sync", `{"from":"usd","to":"rub","force":true}`)
	require.Equal(t, http.StatusOK, status, "%s", out["error"])
	assert.NotEqual(t, "null", string(out["last_sync"]))
	quoted := <-seen
	assert.Equal(t, "test-key", quoted.Header.Get(exchangeapi.APIKeyHeader))
	assert.Contains(t, quoted.URL.RawQuery, "from=USD")

	status, out = api.do(t, http.MethodGet, "/api/v1/rates/convert?from=USD&to=RUB&amount=10", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decimal.NewFromInt(714).Equal(decodeDecimal(t, out["result"])))

	api.setQuote(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	status, out = api.do(t, http.MethodPost, "/api/v1/rates/sync", `{"from":"USD","to":"RUB","force":true}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, string(out["error"]), "Please try again in a month")

	status, _ = api.do(t, http.MethodPut, "/api/v1/rates", `{"from":"RUB","to":"EUR","rate":"0.01"}`)
	assert.Equal(t, http.StatusOK, status)

	status, out = api.do(t, http.MethodGet, "/api/v1/rates", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"RUB"`, string(out["base"]))
	var rates []struct{ From, To string }
	require.NoError(t, json.Unmarshal(out["rates"], &rates))
	require.Len(t, rates, 1)
	assert.Equal(t, "EUR", rates[0].To)

	status, out = api.do(t, http.MethodPut, "/api/v1/settings/base-currency", `{"currency":"usd"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"USD"`, string(out["currency"]))
}

func TestRouter_Auth(t *testing.T) {
	const secret = "s3cret"
	api := newAPI(t, secret)

	get := func(token string) int {
		req, err := http.NewRequest(http.MethodGet, api.server.URL+"/api/v1/accounts", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	sign := func(key string, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return token
	}

	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusUnauthorized, get(sign("other", jwt.MapClaims{"sub": "me"})))
	assert.Equal(t, http.StatusUnauthorized, get(sign(secret, jwt.MapClaims{"sub": "me", "exp": time.Now().Add(-time.Hour).Unix()})))
	assert.Equal(t, http.StatusOK, get(sign(secret, jwt.MapClaims{"sub": "me", "exp": time.Now().Add(time.Hour).Unix()})))

	resp, err := http.Get(api.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")
}

// openStream subscribes to an event stream and yields the data lines. The
// stream is closed when the test ends.
func (f *apiFixture) openStream(t *testing.T, path string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				events <- data
			}
		}
		close(events)
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan string, dst any) {
	t.Helper()
	select {
	case data, ok := <-events:
		require.True(t, ok, "stream closed")
		require.NoError(t, json.Unmarshal([]byte(data), dst))
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
}

func TestRouter_StreamTotal(t *testing.T) {
	api := newAPI(t, "")
	api.create(t, "/api/v1/accounts", `{"type":"CASH","amount":"10","currency":"RUB","name":"cash"}`)

	events := api.openStream(t, "/api/v1/accounts/total/stream")
	readTotal := func() decimal.Decimal {
		var d decimal.Decimal
		nextEvent(t, events, &d)
		return d
	}

	assert.True(t, decimal.NewFromInt(10).Equal(readTotal()))
	api.create(t, "/api/v1/accounts", `{"type":"CARD","amount":"5","currency":"RUB","name":"card"}`)
	assert.True(t, decimal.NewFromInt(15).Equal(readTotal()))
}

func TestRouter_StreamDebts(t *testing.T) {
	api := newAPI(t, "")
	events := api.openStream(t, "/api/v1/debts/stream")

	var debts []models.Debt
	nextEvent(t, events, &debts)
	assert.Empty(t, debts)

	api.create(t, "/api/v1/debts", `{"name":"rent","amount":"300","currency":"usd","due_date":"2024-03-01T00:00:00Z"}`)

	nextEvent(t, events, &debts)
	require.Len(t, debts, 1)
	assert.Equal(t, "rent", debts[0].Name)
	assert.Equal(t, "USD", debts[0].CurrencyCode)
}
