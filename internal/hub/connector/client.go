package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

const maxResponseBytes = 1 << 20

// apiClient is the resilient HTTP client shared by connector implementations.
// A circuit breaker guards each instance so a dead downstream fails fast
// instead of tying up engine workers.
type apiClient struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	headers map[string]string
}

func newAPIClient(name string, timeout time.Duration, headers map[string]string) *apiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &apiClient{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		headers: headers,
	}
}

type apiResponse struct {
	Status     int
	Body       []byte
	RetryAfter time.Duration
}

// doJSON performs one JSON request through the breaker and classifies
// failures per the connector error taxonomy.
func (c *apiClient) doJSON(ctx context.Context, method, url string, payload any) (*apiResponse, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Internal("encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, errors.InvalidInput("url", err.Error())
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Timeout(c.name)
			}
			return nil, errors.ConnectorFailure(c.name, true, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, errors.ConnectorFailure(c.name, true, err)
		}
		return &apiResponse{
			Status:     resp.StatusCode,
			Body:       raw,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.ConnectorFailure(c.name, true, err)
		}
		return nil, err
	}

	resp := result.(*apiResponse)
	return resp, c.classify(resp)
}

// classify maps non-2xx statuses to the error taxonomy. The response is still
// returned to the caller so diagnostics can surface the body.
func (c *apiClient) classify(resp *apiResponse) error {
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return nil
	case resp.Status == http.StatusTooManyRequests:
		return errors.RateLimited(retryAfterHint(resp))
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return errors.ConnectorFailure(c.name, false, statusError(resp.Status))
	case resp.Status >= 500:
		return errors.ConnectorFailure(c.name, true, statusError(resp.Status))
	default:
		return errors.ConnectorFailure(c.name, false, statusError(resp.Status))
	}
}

func retryAfterHint(resp *apiResponse) time.Duration {
	if resp.RetryAfter > 0 {
		return resp.RetryAfter
	}
	return 5 * time.Second
}

// parseRetryAfter handles the delta-seconds form of the header; the HTTP-date
// form is rare on API gateways and falls back to zero.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

type statusError int

func (e statusError) Error() string {
	return strconv.Itoa(int(e)) + " " + http.StatusText(int(e))
}

// decodeBody best-effort parses a JSON response body into a Result.
func decodeBody(raw []byte) Result {
	out := Result{}
	if len(raw) == 0 {
		return out
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		out["raw"] = string(raw)
		return out
	}
	return parsed
}

// probe measures the latency of a cheap GET used by Test implementations.
func (c *apiClient) probe(ctx context.Context, url string) (resultOK bool, latency time.Duration, diag string) {
	start := time.Now()
	resp, err := c.doJSON(ctx, http.MethodGet, url, nil)
	latency = time.Since(start)
	if err != nil {
		return false, latency, err.Error()
	}
	return true, latency, http.StatusText(resp.Status)
}
