package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/services"
)

type AccountHandler struct {
	service   *services.AccountService
	validator *ValidationHelper
	log       logrus.FieldLogger
}

func NewAccountHandler(service *services.AccountService, log logrus.FieldLogger) *AccountHandler {
	return &AccountHandler{
		service:   service,
		validator: NewValidationHelper(),
		log:       log,
	}
}

type createAccountRequest struct {
	Type     string          `json:"type" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Name     string          `json:"name" validate:"required,max=100"`
}

type transferRequest struct {
	FromID int64           `json:"from_id" validate:"required,gt=0"`
	ToID   int64           `json:"to_id" validate:"required,gt=0"`
	Amount decimal.Decimal `json:"amount"`
}

// List returns every account, or those of one type with ?type=.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		accounts []models.Account
		err      error
	)
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, parseErr := models.ParseAccountType(raw)
		if parseErr != nil {
			SendErrorResponse(w, parseErr.Error(), http.StatusBadRequest, nil)
			return
		}
		accounts, err = h.service.GetAccountsForType(r.Context(), t)
	} else {
		accounts, err = h.service.GetAllAccounts(r.Context())
	}
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": nonNil(accounts)})
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}

	t, err := models.ParseAccountType(req.Type)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	id, err := h.service.AddNewAccount(r.Context(), models.Account{
		Type:         t,
		Amount:       req.Amount,
		CurrencyCode: req.Currency,
		Name:         req.Name,
	})
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	account, err := h.service.GetAccountByID(r.Context(), id)
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAllAccounts(r.Context()); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	if err := h.service.TransferMoney(r.Context(), req.FromID, req.ToID, req.Amount); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AccountHandler) Total(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.GetTotalAmount(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": total})
}

func (h *AccountHandler) Amounts(w http.ResponseWriter, r *http.Request) {
	amounts, err := h.service.GetAmountsGroupedByAccounts(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amounts": nonNil(amounts)})
}

func (h *AccountHandler) StreamTotal(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ObserveTotalAmount(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	stream(w, r, h.log, "total", updates)
}

func (h *AccountHandler) StreamAmounts(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ObserveAmountsGroupedByAccounts(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	stream(w, r, h.log, "amounts", updates)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
