package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xpense/backend/internal/services"
)

const dateLayout = "2006-01-02"

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &services.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// queryID returns nil when the parameter is absent.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, &services.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return &id, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates, read as UTC
// midnight. It returns nil when the parameter is absent.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	t, _, err := parseQueryTime(r, name)
	return t, err
}

// queryPeriodEnd is queryTime for the upper bound of an inclusive period: a
// plain date covers the whole day.
func queryPeriodEnd(r *http.Request, name string) (*time.Time, error) {
	t, dateOnly, err := parseQueryTime(r, name)
	if err != nil || t == nil || !dateOnly {
		return t, err
	}
	end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &end, nil
}

func parseQueryTime(r *http.Request, name string) (*time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, false, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, false, &services.ValidationError{Field: name, Message: "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp"}
	}
	return &t, true, nil
}
