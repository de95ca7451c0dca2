package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKey is matched by errors.Is when data.gov.in rejects the api-key.
var ErrInvalidKey = errors.New("agmarknet: invalid api key")

// APIError is a failed resource request. data.gov.in reports some failures
// in-band with HTTP 200 and {"status":"error","message":...}; those carry
// StatusCode 200 and Status "error".
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	RetryAfter time.Duration
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agmarknet api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// Unwrap maps key rejections to ErrInvalidKey.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrInvalidKey
	}
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "api key") || strings.Contains(msg, "api-key") {
		return ErrInvalidKey
	}
	return nil
}

// envelope is the status block every resource response carries.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// fetch issues one GET against the resource API. The api-key and format
// travel as query parameters.
func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	q := make(url.Values, len(query)+2)
	for k, v := range query {
		q[k] = v
	}
	if q.Get("format") == "" {
		q.Set("format", "json")
	}
	if c.apiKey != "" {
		q.Set("api-key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decoded := json.Unmarshal(body, &env) == nil

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		if decoded && env.Message != "" {
			msg = env.Message
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     env.Status,
			Message:    msg,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       body,
		}
	}

	if decoded && strings.EqualFold(env.Status, "error") {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     env.Status,
			Message:    env.Message,
			Body:       body,
		}
	}

	return body, nil
}

// parseRetryAfter reads a delay-seconds Retry-After value.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryDelay is the jittered exponential delay before retry attempt+1,
// stretched to the server's Retry-After when that is longer.
func (c *Client) retryDelay(attempt int, apiErr *APIError) time.Duration {
	base := c.retryBackoff << attempt
	delay := base / 2
	if base > 0 {
		delay += time.Duration(rand.Int64N(int64(base)))
	}
	if apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
	}
	return delay
}

// fetchWithRetry repeats fetch on retryable failures up to maxRetries times.
func (c *Client) fetchWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := c.fetch(ctx, path, query)
		if err == nil {
			return body, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("max retries exceeded: %w", err)
		}

		delay := c.retryDelay(attempt, apiErr)
		c.logger.Debug("retrying request",
			"attempt", attempt+1,
			"delay", delay,
			"status", apiErr.StatusCode,
			"path", path,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// get fetches path with retries and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.fetchWithRetry(ctx, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
