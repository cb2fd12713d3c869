// Package exchangeapi is a client for the remote currency conversion API.
package exchangeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// APIKeyHeader carries the account key on every request.
const APIKeyHeader = "apikey"

// ConvertResponse is the body of a successful /convert call.
type ConvertResponse struct {
	Date    string          `json:"date"`
	Info    Info            `json:"info"`
	Query   Query           `json:"query"`
	Result  decimal.Decimal `json:"result"`
	Success bool            `json:"success"`
}

type Info struct {
	Rate      decimal.Decimal `json:"rate"`
	Timestamp int64           `json:"timestamp"`
}

type Query struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

// Response is the outcome of a call that reached the server. Body is only
// decoded for 2xx responses and is nil when the server sent nothing.
type Response struct {
	StatusCode int
	Body       *ConvertResponse
}

// IsSuccessful reports a 2xx status.
func (r *Response) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client whose requests carry apiKey and are logged to log.
func NewClient(baseURL, apiKey string, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &authTransport{
				apiKey: apiKey,
				base: &loggingTransport{
					log:  log,
					base: http.DefaultTransport,
				},
			},
		},
	}
}

// NewClientWithHTTP uses httpClient as is.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, http: httpClient}
}

// Convert asks the server how much amount of from is worth in to.
// A non-nil error means no response was received.
func (c *Client) Convert(ctx context.Context, to, from string, amount decimal.Decimal) (*Response, error) {
	q := url.Values{}
	q.Set("to", to)
	q.Set("from", from)
	q.Set("amount", amount.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/convert?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode}
	if !out.IsSuccessful() {
		io.Copy(io.Discard, resp.Body)
		return out, nil
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read convert response: %w", err)
	}
	if len(content) == 0 {
		return out, nil
	}

	var body ConvertResponse
	if err := json.Unmarshal(content, &body); err != nil {
		return nil, fmt.Errorf("decode convert response: %w", err)
	}
	out.Body = &body
	return out, nil
}
