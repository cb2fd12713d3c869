package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/services"
)

type CategoryHandler struct {
	service   *services.CategoryService
	validator *ValidationHelper
	log       logrus.FieldLogger
}

func NewCategoryHandler(service *services.CategoryService, log logrus.FieldLogger) *CategoryHandler {
	return &CategoryHandler{
		service:   service,
		validator: NewValidationHelper(),
		log:       log,
	}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.GetAllCategories(r.Context())
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": nonNil(categories)})
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,max=100"`
	}
	if !h.validator.decodeBody(w, r, &req) {
		return
	}
	id, err := h.service.AddCategory(r.Context(), req.Name)
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		sendServiceError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
