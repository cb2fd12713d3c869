package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/services"
)

type RateHandler struct {
	exchange  *services.ExchangeService
	rates     *services.RateCache
	validator *ValidationHelper
	log       logrus.FieldLogger
}

func NewRateHandler(exchange *services.ExchangeService, rates *services.RateCache, log logrus.FieldLogger) *RateHandler {
	return &RateHandler{
		exchange:  exchange,
		rates:     rates,
		validator: NewValidationHelper(),
		log:       log,
	}
}

// Convert answers from the cache only: GET /rates/convert?from=&to=&amount=.
func (h *RateHandler) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		sendServiceError(w, h.log, r, &services.ValidationError{Field: "amount", Message: "must be a decimal number"})
		return
	}

	pair := models.NewPair(q.Get("from"), q.Get("to"))
	result, err := h.exchange.Convert(r.Context(), pair.From, pair.To, amount)
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":   pair.From,
		"to":     pair.To,
		"amount": amount,
		"result": result,
	})
}

// List returns the cached rates from ?base=, defaulting to the base currency.
func (h *RateHandler) List(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		var err error
		if base, err = h.exchange.BaseCurrencyCode(r.Context()); err != nil {
			sendServiceError(w, h.log, r, err)
			return
		}
	}
	rates, err := h.rates.GetRatesForCurrency(r.Context(), base)
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"base": models.NormalizeCurrency(base), "rates": nonNil(rates)})
}

// Upsert stores a rate by hand.
func (h *RateHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string          `json:"from" validate:"required,len=3"`
		To   string          `json:"to" validate:"required,len=3"`
		Rate decimal.Decimal `json:"rate"`
	}
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	if err := h.rates.UpsertRate(r.Context(), req.From, req.To, req.Rate); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *RateHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From  string `json:"from" validate:"required,len=3"`
		To    string `json:"to" validate:"required,len=3"`
		Force bool   `json:"force"`
	}
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	if err := h.exchange.SyncExchangeRate(r.Context(), req.From, req.To, req.Force); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	h.writeSyncState(w, r)
}

func (h *RateHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	if err := h.exchange.SyncAllExchangeRates(r.Context(), req.Force); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	h.writeSyncState(w, r)
}

func (h *RateHandler) BaseCurrency(w http.ResponseWriter, r *http.Request) {
	code, err := h.exchange.BaseCurrencyCode(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currency": code})
}

func (h *RateHandler) SetBaseCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency string `json:"currency" validate:"required,len=3"`
	}
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	if err := h.exchange.SetBaseCurrencyCode(r.Context(), req.Currency); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	h.BaseCurrency(w, r)
}

func (h *RateHandler) writeSyncState(w http.ResponseWriter, r *http.Request) {
	last, err := h.exchange.LastSyncTime(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	resp := map[string]any{"success": true, "last_sync": nil}
	if !last.IsZero() {
		resp["last_sync"] = last.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}
