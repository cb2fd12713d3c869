package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
	"github.com/xpense/backend/internal/services"
)

type ExpenseHandler struct {
	service   *services.ExpenseService
	validator *ValidationHelper
	log       logrus.FieldLogger
}

func NewExpenseHandler(service *services.ExpenseService, log logrus.FieldLogger) *ExpenseHandler {
	return &ExpenseHandler{
		service:   service,
		validator: NewValidationHelper(),
		log:       log,
	}
}

type expenseRequest struct {
	// Date defaults to now when omitted.
	Date       *time.Time      `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	CategoryID int64           `json:"category_id" validate:"required,gt=0"`
	AccountID  int64           `json:"account_id" validate:"required,gt=0"`
}

func (req expenseRequest) expense() models.Expense {
	e := models.Expense{
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
		AccountID:  req.AccountID,
	}
	if req.Date != nil {
		e.Date = req.Date.UTC()
	}
	return e
}

// Spend records an expense and debits the account.
func (h *ExpenseHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	id, err := h.service.SpendMoney(r.Context(), req.expense())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

// Earn records an earning and credits the account.
func (h *ExpenseHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	id, err := h.service.AddMoney(r.Context(), req.expense())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	if err := h.service.DeleteExpense(r.Context(), id); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExpenseHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAllExpensesAndEarnings(r.Context()); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List filters records by ?from=&to=&category=&account=&kind=, where kind is
// expense, earning or all.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := expenseFilter(r)
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	expenses, err := h.service.Find(r.Context(), filter)
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": nonNil(expenses)})
}

func (h *ExpenseHandler) Stream(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ObserveAllExpensesAndEarnings(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	stream(w, r, h.log, "expenses", updates)
}

func expenseFilter(r *http.Request) (repository.ExpenseFilter, error) {
	var (
		filter repository.ExpenseFilter
		err    error
	)
	if filter.From, err = queryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryPeriodEnd(r, "to"); err != nil {
		return filter, err
	}
	if filter.CategoryID, err = queryID(r, "category"); err != nil {
		return filter, err
	}
	if filter.AccountID, err = queryID(r, "account"); err != nil {
		return filter, err
	}

	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "all":
	case "expense":
		earning := false
		filter.IsEarning = &earning
	case "earning":
		earning := true
		filter.IsEarning = &earning
	default:
		return filter, &services.ValidationError{Field: "kind", Message: "must be expense, earning or all"}
	}
	return filter, nil
}
