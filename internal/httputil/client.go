package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/powerwallcost/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

// ErrUnauthorized is returned when a provider rejects the credentials.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return NewClientWithTimeout(DefaultTimeout)
}

// NewClientWithTimeout returns an HTTP client with the given timeout. A
// non-positive timeout falls back to DefaultTimeout.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// Requester issues GET requests against one provider and decodes JSON
// responses. Retries is the number of extra attempts made for rate-limit
// and server errors; zero means a single attempt.
type Requester struct {
	Client   *http.Client
	Provider string
	Retries  uint64
}

// GetJSON fetches url with the given headers and decodes the body into v.
// Numbers decoded into interface values are kept as json.Number.
func (r *Requester) GetJSON(ctx context.Context, endpoint, url string, header http.Header, v any) error {
	client := r.Client
	if client == nil {
		client = NewClient()
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		for k, vals := range header {
			for _, val := range vals {
				req.Header.Add(k, val)
			}
		}

		start := time.Now()
		resp, err := client.Do(req)
		metrics.ProviderAPILatency.WithLabelValues(r.Provider, endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ProviderAPICallsTotal.WithLabelValues(r.Provider, endpoint, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", endpoint, err))
		}
		defer resp.Body.Close()
		metrics.ProviderAPICallsTotal.WithLabelValues(r.Provider, endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w: status %d", endpoint, ErrUnauthorized, resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(resp.Body)
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("fetch %s: %w", endpoint, statusErr)
			}
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", endpoint, statusErr))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, r.Retries), ctx)); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", endpoint, err)
	}
	return nil
}
