// Package api provides an HTTP client for the content service.
package api

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/kayteedberserker/feedsync/internal/output"
	"github.com/kayteedberserker/feedsync/internal/version"
)

const (
	defaultMaxTries     = 3
	defaultBaseDelay    = 250 * time.Millisecond
	defaultTimeout      = 15 * time.Second
	maxResponseBodySize = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables throttling
	MaxTries  uint
	BaseDelay time.Duration // first retry delay; grows exponentially
	Logger    *slog.Logger

	// HTTPClient overrides the default transport (tests).
	HTTPClient *http.Client
}

// Client is an HTTP client for the content service.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	maxTries   uint
	baseDelay  time.Duration
	logger     *slog.Logger
}

// Response wraps an API response.
type Response struct {
	OK         bool
	StatusCode int
	Data       json.RawMessage
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// NewClient creates a new API client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, output.ErrUsageHint(fmt.Sprintf("invalid base_url %q", opts.BaseURL), "Set base_url to an absolute http(s) URL")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		limiter:    rate.NewLimiter(limit, 1),
		maxTries:   opts.MaxTries,
		baseDelay:  opts.BaseDelay,
		logger:     opts.Logger,
	}
	if c.maxTries == 0 {
		c.maxTries = defaultMaxTries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query)
}

// Post performs a body-less POST request.
func (c *Client) Post(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*Response, error) {
	target := c.buildURL(path, query)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = 8 * c.baseDelay

	// Side-effecting requests get one attempt: a lost response may still
	// have been applied by the server.
	tries := c.maxTries
	if method != http.MethodGet {
		tries = 1
	}

	attempt := 0
	return backoff.Retry(ctx, func() (*Response, error) {
		attempt++
		resp, err := c.singleRequest(ctx, method, target, attempt)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if apiErr := output.AsError(err); !apiErr.Retryable {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.logger.Debug("retrying request", "method", method, "url", target, "delay", delay, "error", err)
		}),
	)
}

func (c *Client) singleRequest(ctx context.Context, method, target string, attempt int) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Debug("request", "method", method, "url", target, "attempt", attempt, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, output.ErrNetwork(fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("response", "status", resp.StatusCode, "bytes", len(body), "request_id", requestID)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{
			OK:         true,
			StatusCode: resp.StatusCode,
			Data:       body,
			Headers:    resp.Header,
		}, nil
	}
	return nil, statusError(resp.StatusCode, resp.Header, body, req.URL.Path)
}

// statusError maps a non-2xx response onto a structured error.
func statusError(status int, header http.Header, body []byte, path string) error {
	switch {
	case status == http.StatusNotFound:
		return output.ErrNotFound("Resource", path)
	case status == http.StatusTooManyRequests:
		return output.ErrRateLimit(parseRetryAfter(header.Get("Retry-After")))
	case status >= 500:
		return output.ErrAPI(status, fmt.Sprintf("Server error (%d)", status))
	}

	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if msg := cmp.Or(apiErr.Error, apiErr.Message); msg != "" {
			return output.ErrAPI(status, msg)
		}
	}
	return output.ErrAPI(status, fmt.Sprintf("Request failed (HTTP %d)", status))
}

func (c *Client) buildURL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// parseRetryAfter parses the Retry-After header value.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
