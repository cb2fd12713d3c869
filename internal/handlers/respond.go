package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response. Field failures of a
// validator error are listed in Details.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string, len(fieldErrs))
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a single JSON object into dst and validates it. It writes
// the error response itself and reports whether the handler may go on.
func (vh *ValidationHelper) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var (
		notFound   *services.NotFoundError
		funds      *services.InsufficientFundsError
		constraint *services.ConstraintViolationError
		validation *services.ValidationError
		network    *services.NetworkError
	)

	switch {
	case services.IsCancellation(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &funds):
		return http.StatusUnprocessableEntity
	case errors.As(err, &constraint):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &network):
		if network.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// sendServiceError writes err with its mapped status. Internal failures are
// logged and their details hidden from the client.
func sendServiceError(w http.ResponseWriter, log logrus.FieldLogger, r *http.Request, err error) {
	status := StatusFor(err)
	message := err.Error()

	switch status {
	case http.StatusInternalServerError:
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		message = "Internal server error"
	case http.StatusServiceUnavailable:
		message = "Request cancelled"
	}
	SendErrorResponse(w, message, status, nil)
}
