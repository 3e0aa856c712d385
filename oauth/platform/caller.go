package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultHTTPTimeout bounds every provider request.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultMaxTries caps attempts for transient failures.
	DefaultMaxTries = 3

	maxBodyBytes = 1 << 20
)

// Caller sends provider API requests. Transport failures, 429 and 5xx responses are
// retried with exponential backoff; other non-2xx responses fail fast with *APIError.
type Caller struct {
	platform Platform
	client   *http.Client
	logger   *slog.Logger
	maxTries uint
	interval time.Duration
}

// Option configures adapters and callers.
type Option func(*Caller)

// WithHTTPClient sets the client used for provider requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Caller) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Caller) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithMaxTries sets how many attempts a transient failure gets. 1 disables retries.
func WithMaxTries(n uint) Option {
	return func(cl *Caller) {
		if n > 0 {
			cl.maxTries = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(cl *Caller) {
		if d > 0 {
			cl.interval = d
		}
	}
}

// NewCaller returns a Caller tagged with p for error reporting.
func NewCaller(p Platform, opts ...Option) *Caller {
	c := &Caller{
		platform: p,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
		logger:   slog.Default(),
		maxTries: DefaultMaxTries,
		interval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Platform returns the platform this caller reports errors for.
func (c *Caller) Platform() Platform { return c.platform }

// HTTPClient returns the underlying client.
func (c *Caller) HTTPClient() *http.Client { return c.client }

// Logger returns the configured logger.
func (c *Caller) Logger() *slog.Logger { return c.logger }

// RequestFunc builds a fresh request for every attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do executes the request and decodes a 2xx JSON body into out when out is non-nil.
func (c *Caller) Do(ctx context.Context, newReq RequestFunc, out any) error {
	_, err := retry(ctx, c, func() (struct{}, error) {
		return struct{}{}, c.once(ctx, newReq, out)
	})
	return err
}

// Raw executes the request and returns the status and body of a 2xx response.
func (c *Caller) Raw(ctx context.Context, newReq RequestFunc) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
	}
	res, err := retry(ctx, c, func() (result, error) {
		status, body, err := c.send(ctx, newReq)
		if err != nil {
			return result{}, err
		}
		return result{status: status, body: body}, nil
	})
	return res.status, res.body, err
}

func (c *Caller) once(ctx context.Context, newReq RequestFunc, out any) error {
	_, body, err := c.send(ctx, newReq)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Platform: c.platform, StatusCode: http.StatusOK, Body: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func (c *Caller) send(ctx context.Context, newReq RequestFunc) (int, []byte, error) {
	req, err := newReq(ctx)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, &ProviderUnavailableError{Platform: c.platform, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &ProviderUnavailableError{Platform: c.platform, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, body, nil
	}
	if transientStatus(resp.StatusCode) {
		return resp.StatusCode, body, &ProviderUnavailableError{
			Platform:   c.platform,
			StatusCode: resp.StatusCode,
			Err:        errors.New(truncate(string(body))),
		}
	}
	return resp.StatusCode, body, &APIError{Platform: c.platform, StatusCode: resp.StatusCode, Body: string(body)}
}

// retry runs op until it succeeds, returns a non transient error, or runs out of tries.
func retry[T any](ctx context.Context, c *Caller, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		var unavailable *ProviderUnavailableError
		if !errors.As(err, &unavailable) || ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		c.logger.Warn("provider request failed", "platform", c.platform, "attempt", attempt, "error", err)
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func truncate(s string) string {
	const limit = 512
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// NewJSONRequest returns a RequestFunc sending payload as JSON with an optional bearer token.
func NewJSONRequest(method, endpoint, token string, payload any, header http.Header) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	}
}

// NewFormRequest returns a RequestFunc that POSTs form as application/x-www-form-urlencoded.
func NewFormRequest(endpoint string, form url.Values) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
}

// NewGetRequest returns a RequestFunc for GET endpoint?query.
func NewGetRequest(endpoint string, query url.Values, token string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		u := endpoint
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}
}
