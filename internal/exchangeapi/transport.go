package exchangeapi

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// authTransport adds the API key header to every request.
type authTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set(APIKeyHeader, t.apiKey)
	return t.base.RoundTrip(req)
}

// loggingTransport logs each exchange. The API key is never logged.
type loggingTransport struct {
	log  logrus.FieldLogger
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	entry := t.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"host":     req.URL.Host,
		"path":     req.URL.Path,
		"query":    req.URL.RawQuery,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("exchange api request failed")
		return nil, err
	}

	entry.WithField("status", resp.StatusCode).Debug("exchange api request")
	return resp, nil
}
