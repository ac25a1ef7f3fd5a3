// Package api is the HTTP transport for the panel's client API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/http"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/metrics"
	"github.com/panelfs/panelfs/internal/ratelimit"
	"github.com/panelfs/panelfs/internal/version"
)

// Client represents the panel API client. It is stateless with respect to
// the connection: every call takes the base URL and Authorization header
// it should use, so the caller decides what "current" means.
type Client struct {
	httpClient *nethttp.Client
	readClient *retryablehttp.Client
	limiter    *ratelimit.RateLimiter
	rewrite    http.URLRewriter
	logger     *logging.Logger
}

// Options configures a Client. Zero values pick production defaults.
type Options struct {
	Proxy      config.ProxyConfig
	HTTPClient *nethttp.Client // overrides Proxy; used by tests
	Limiter    *ratelimit.RateLimiter
	Logger     *logging.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = http.NewPanelClient(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewPanelRateLimiter()
	}

	// Reads retry, so each attempt must pass through the limiter on its own
	readHTTP := *httpClient
	readHTTP.Transport = &limitedTransport{next: transportOf(httpClient), limiter: limiter}

	c := &Client{
		httpClient: httpClient,
		limiter:    limiter,
		rewrite:    http.NewURLRewriter(opts.Proxy.RewriteBase),
		logger:     logger,
	}
	c.readClient = http.NewReadClient(&readHTTP, logger, func(int) { metrics.RecordReadAttempt() })
	return c, nil
}

func transportOf(c *nethttp.Client) nethttp.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return nethttp.DefaultTransport
}

// limitedTransport waits on the rate limiter before every round trip.
type limitedTransport struct {
	next    nethttp.RoundTripper
	limiter *ratelimit.RateLimiter
}

func (t *limitedTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}
	return t.next.RoundTrip(req)
}

// request describes one panel call.
type request struct {
	op          string // metrics/log label
	method      string
	url         string // before rewriting
	auth        string
	body        io.Reader
	contentType string
}

// jsonBody marshals v for a request body.
func jsonBody(v interface{}) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func (c *Client) setHeaders(h nethttp.Header, r request) {
	h.Set("Authorization", r.auth)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", version.UserAgent())
	h.Set("X-Request-Id", uuid.NewString())
	if r.contentType != "" {
		h.Set("Content-Type", r.contentType)
	}
}

// doRequest performs one non-retried HTTP request with authentication and
// rate limiting. Non-2xx responses are returned as *StatusError with the
// body already consumed; on success the caller owns resp.Body.
func (c *Client) doRequest(ctx context.Context, r request) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, r.method, c.rewrite(r.url), r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req.Header, r)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(r.op, 0, time.Since(start))
		c.logger.Warn().Err(err).Str("op", r.op).Str("method", r.method).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	metrics.RecordAPIRequest(r.op, resp.StatusCode, time.Since(start))

	return c.checkResponse(r, resp)
}

// checkResponse turns non-2xx responses into *StatusError and reacts to
// throttling.
func (c *Client) checkResponse(r request, resp *nethttp.Response) (*nethttp.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.onThrottled(r, resp)
	}
	if resp.StatusCode == nethttp.StatusUnauthorized {
		metrics.RecordAuthFailure()
	}
	return nil, newStatusError(resp)
}

func (c *Client) onThrottled(r request, resp *nethttp.Response) {
	c.limiter.Drain()
	ev := c.logger.Warn().Str("op", r.op).Str("method", r.method)
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		ev = ev.Str("retry_after", retryAfter)
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			c.limiter.SetCooldown(time.Duration(secs) * time.Second)
		}
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		ev = ev.Str("ratelimit_remaining", remaining)
	}
	ev.Msg("throttled by panel")
}

// doRetryable performs a GET through the retrying read client.
func (c *Client) doRetryable(ctx context.Context, r request) (*nethttp.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, c.rewrite(r.url), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req.Header, r)

	start := time.Now()
	resp, err := c.readClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(r.op, 0, time.Since(start))
		c.logger.Warn().Err(err).Str("op", r.op).Msg("content fetch failed after retries")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	metrics.RecordAPIRequest(r.op, resp.StatusCode, time.Since(start))
	return c.checkResponse(r, resp)
}

// decodeJSON decodes and closes a successful response body.
func decodeJSON(resp *nethttp.Response, v interface{}, what string) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return nil
}

// discard drains and closes a response body so the connection is reused.
func discard(resp *nethttp.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
