package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/graceworks/missionsync/internal/auth"
	"github.com/graceworks/missionsync/pkg/infra"
	"github.com/graceworks/missionsync/pkg/metrics"
)

// TokenSource supplies a bearer token for outgoing requests. Invalidate
// marks the current token unusable so the next AccessToken call fetches a
// fresh one; the client calls it after a 401.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// Client wraps an http.Client with bearer auth, client-side rate limiting
// and a fixed-delay retry loop. 401 invalidates the token and retries,
// 5xx and transport errors retry, any other 4xx fails immediately.
type Client struct {
	system      string
	baseURL     string
	tokens      TokenSource
	httpc       *http.Client
	limiter     *rate.Limiter
	headers     map[string]string
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

func NewClient(system, baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		system:      system,
		baseURL:     baseURL,
		tokens:      tokens,
		httpc:       &http.Client{},
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
		headers:     make(map[string]string),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		logger:      logger.With("component", "api", "system", system),
	}
}

// SetHeader adds a header to every request, e.g. the CRM's subscription key.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetRateLimit caps outgoing requests at rps per second with a burst of rps.
func (c *Client) SetRateLimit(rps int) {
	if rps < 1 {
		rps = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// SetRetryPolicy overrides the attempt budget and the delay between
// attempts. Tests shrink the delay; production keeps the defaults.
func (c *Client) SetRetryPolicy(maxAttempts int, delay time.Duration) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	c.maxAttempts = maxAttempts
	c.retryDelay = delay
}

// Do executes one API call and returns the raw response body. A 204 or an
// empty body returns (nil, nil). The request body is marshalled once and
// replayed on every attempt.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire %s token: %w", c.system, err)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		c.logger.Debug("API request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"headers", redactHeaders(req.Header))

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = &TransientError{System: c.system, Err: err}
			if attempt < c.maxAttempts {
				c.logger.Warn("Request failed, retrying",
					"method", method, "path", path, "attempt", attempt, "error", err)
				metrics.APIRetries.WithLabelValues(c.system, "network").Inc()
				if serr := infra.Sleep(ctx, c.retryDelay); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		metrics.APIRequests.WithLabelValues(c.system, method, strconv.Itoa(resp.StatusCode)).Inc()
		if readErr != nil {
			return nil, fmt.Errorf("read %s %s response: %w", method, path, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			c.tokens.Invalidate()
			lastErr = &auth.Error{
				System: c.system,
				Reason: fmt.Sprintf("access token rejected %d times in a row", attempt),
			}
			if attempt < c.maxAttempts {
				c.logger.Warn("Unauthorized, refreshing token and retrying",
					"method", method, "path", path, "attempt", attempt)
				metrics.APIRetries.WithLabelValues(c.system, "unauthorized").Inc()
				if serr := infra.Sleep(ctx, c.retryDelay); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, lastErr

		case resp.StatusCode >= 500:
			lastErr = newRequestError(c.system, resp.StatusCode, respBody)
			if attempt < c.maxAttempts {
				c.logger.Warn("Server error, retrying",
					"method", method, "path", path, "status", resp.StatusCode, "attempt", attempt)
				metrics.APIRetries.WithLabelValues(c.system, "server_error").Inc()
				if serr := infra.Sleep(ctx, c.retryDelay); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, lastErr

		case resp.StatusCode >= 400:
			reqErr := newRequestError(c.system, resp.StatusCode, respBody)
			c.logger.Error("API request rejected",
				"method", method,
				"path", path,
				"status", resp.StatusCode,
				"details", reqErr.Details)
			return nil, reqErr
		}

		c.logger.Debug("API response",
			"method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody))

		if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
			return nil, nil
		}
		return respBody, nil
	}
	return nil, lastErr
}

// GetJSON performs a GET and decodes the body into out. A nil out or empty
// body is fine, callers that only care about the status pass nil.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decodeInto(path, body, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	respBody, err := c.Do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decodeInto(path, respBody, out)
}

func (c *Client) PatchJSON(ctx context.Context, path string, body, out any) error {
	respBody, err := c.Do(ctx, http.MethodPatch, path, nil, body)
	if err != nil {
		return err
	}
	return decodeInto(path, respBody, out)
}

func decodeInto(path string, body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// redactHeaders copies the request headers with the bearer token masked so
// debug logging never leaks a credential.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if k == "Authorization" {
			out[k] = "Bearer [REDACTED]"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}
