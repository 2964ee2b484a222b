package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/khushibohraAcc/smartscript-builder/pkg/config"
	"github.com/khushibohraAcc/smartscript-builder/pkg/logging"
)

const maxErrorBodyBytes int64 = 64 << 10

// Client issues typed HTTP calls against the automation backend with a
// bounded per-request timeout and a uniform error contract. Construct one
// per backend; it is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	retry      config.RetryPolicy
	limiter    *rate.Limiter
	logger     *logging.Logger
	tracer     trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The per-request
// timeout is still enforced via context deadlines.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New constructs a request client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	raw := strings.TrimSpace(cfg.Server.BaseURL)
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", raw)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.HTTP.InsecureTLS {
		transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.HTTP.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), 1)
	}

	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Transport: transport,
		},
		timeout: cfg.HTTP.RequestTimeout,
		retry:   cfg.RetryPolicy,
		limiter: limiter,
		tracer:  otel.Tracer("smartscript/api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return strings.TrimSuffix(c.baseURL.String(), "/")
}

func (c *Client) endpoint(p string) string {
	u := *c.baseURL
	rel, err := url.Parse(p)
	if err != nil {
		u.Path = strings.TrimSuffix(u.Path, "/") + p
		return u.String()
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + rel.Path
	q := u.Query()
	for key, vals := range rel.Query() {
		for _, val := range vals {
			q.Add(key, val)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// get issues a GET and decodes the response into out. Idempotent, so the
// configured retry policy applies.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out, true)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, body, out, false)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPut, path, body, out, false)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodDelete, path, nil, nil, false)
}

// call performs one logical API call. Idempotent calls are retried per the
// configured retry policy on transport failures and 5xx responses; the
// default policy performs no retries.
func (c *Client) call(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	var encoded []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		encoded = data
	}

	attempts := 1
	if idempotent && c.retry.MaxRetries > 0 {
		attempts += c.retry.MaxRetries
	}

	backoff := c.retry.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &Error{Message: ctx.Err().Error(), StatusCode: StatusTransport}
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retry.Multiplier)
			if c.retry.MaxBackoff > 0 && backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
			c.logger.Debug(logging.CategoryNetwork, "request.retry", "retrying idempotent request", map[string]any{
				"method": method, "path": path, "attempt": attempt,
			})
		}

		lastErr = c.doOnce(ctx, method, path, encoded, out)
		if lastErr == nil {
			return nil
		}
		if !idempotent || !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func retryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == StatusTransport || apiErr.StatusCode >= http.StatusInternalServerError
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Message: err.Error(), StatusCode: StatusTransport}
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	))
	defer span.End()

	start := time.Now()
	err := c.roundTrip(ctx, method, path, body, out)
	metricRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		var apiErr *Error
		outcome := "error"
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == StatusTransport:
				outcome = "network"
			case apiErr.StatusCode == http.StatusRequestTimeout:
				outcome = "timeout"
			default:
				outcome = fmt.Sprintf("http_%d", apiErr.StatusCode)
			}
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
		}
		metricRequests.WithLabelValues(method, outcome).Inc()
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn(logging.CategoryNetwork, "request.failed", err.Error(), map[string]any{
			"method": method, "path": path, "outcome": outcome,
		})
		return err
	}
	metricRequests.WithLabelValues(method, "ok").Inc()
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any) error {
	// Every call carries its own deadline; expiry aborts the in-flight
	// request and surfaces as a 408.
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.endpoint(path), reader)
	if err != nil {
		return &Error{Message: err.Error(), StatusCode: StatusTransport}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &Error{
				Message:    fmt.Sprintf("no response within %s", c.timeout),
				StatusCode: http.StatusRequestTimeout,
			}
		}
		return &Error{Message: err.Error(), StatusCode: StatusTransport}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload := readBodyLimited(resp.Body, maxErrorBodyBytes)
		return &Error{
			Message:    errorMessage(payload, resp.Status),
			StatusCode: resp.StatusCode,
			Payload:    payload,
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Message: err.Error(), StatusCode: StatusTransport}
	}
	// An empty body is a valid content-free result.
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Message:    fmt.Sprintf("decoding response: %v", err),
			StatusCode: resp.StatusCode,
			Payload:    data,
		}
	}
	return nil
}

func readBodyLimited(r io.Reader, maxBytes int64) []byte {
	if r == nil || maxBytes <= 0 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(r, maxBytes))
	return data
}

// errorEnvelope is the backend's structured error body.
type errorEnvelope struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
	Code   string `json:"code"`
}

// errorMessage extracts a human-readable message from an error body on a
// best-effort basis, falling back to the HTTP status text.
func errorMessage(data []byte, statusText string) string {
	if len(bytes.TrimSpace(data)) == 0 {
		return statusText
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil {
		msg := strings.TrimSpace(envelope.Error)
		if msg == "" {
			if detail, ok := envelope.Detail.(string); ok {
				msg = strings.TrimSpace(detail)
			}
		}
		if msg != "" {
			if code := strings.TrimSpace(envelope.Code); code != "" {
				return fmt.Sprintf("%s (%s)", msg, code)
			}
			return msg
		}
	}
	return statusText
}
