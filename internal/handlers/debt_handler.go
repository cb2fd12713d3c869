package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/services"
)

type DebtHandler struct {
	service   *services.DebtService
	validator *ValidationHelper
	log       logrus.FieldLogger
}

func NewDebtHandler(service *services.DebtService, log logrus.FieldLogger) *DebtHandler {
	return &DebtHandler{
		service:   service,
		validator: NewValidationHelper(),
		log:       log,
	}
}

// List returns all debts, or those due within ?from=&to= when both are set.
func (h *DebtHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	to, err := queryPeriodEnd(r, "to")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}

	var debts []models.Debt
	switch {
	case from != nil && to != nil:
		debts, err = h.service.GetAllDebtsForPeriod(r.Context(), *from, *to)
	case from != nil || to != nil:
		err = &services.ValidationError{Field: "from", Message: "from and to must be given together"}
	default:
		debts, err = h.service.GetAllDebts(r.Context())
	}
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"debts": nonNil(debts)})
}

func (h *DebtHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name" validate:"required,max=100"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency" validate:"required,len=3"`
		DueDate  time.Time       `json:"due_date"`
	}
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	id, err := h.service.AddDebt(r.Context(), models.Debt{
		Name:         req.Name,
		Amount:       req.Amount,
		CurrencyCode: req.Currency,
		DueDate:      req.DueDate,
	})
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (h *DebtHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	if err := h.service.DeleteDebt(r.Context(), id); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DebtHandler) Stream(w http.ResponseWriter, r *http.Request) {
	updates, err := h.service.ObserveAllDebts(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	stream(w, r, h.log, "debts", updates)
}

func (h *DebtHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAllDebts(r.Context()); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
