package http

import (
	"context"
	"errors"
	"math"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/panelfs/panelfs/internal/constants"
	"github.com/panelfs/panelfs/internal/logging"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates a 2xx response
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (401, 403)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates transport failures (timeouts, resets, refused connections)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (429, 5xx)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that should not be retried (400, 404, 422)
	ErrorTypeFatal
)

// ClassifyResponse determines the error type of one HTTP exchange.
// err is the transport error from Do; resp may be nil when err is set.
func ClassifyResponse(resp *nethttp.Response, err error) ErrorType {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ErrorTypeFatal
		}
		return ErrorTypeNetwork
	}
	if resp == nil {
		return ErrorTypeNetwork
	}
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return ErrorTypeSuccess
	case code == nethttp.StatusUnauthorized, code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusTooManyRequests:
		return ErrorTypeRetryable
	case code >= 500 && code != nethttp.StatusNotImplemented:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// CalculateBackoff returns the delay before retry number attempt (1-based):
// 2^attempt * base, so 200ms then 400ms for a 100ms base. No jitter: the
// read policy is a fixed schedule.
func CalculateBackoff(attempt int, base time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(math.Pow(2, float64(attempt))) * base
}

// CheckRetry retries transport failures, 429 and 5xx. Credential and
// client errors surface immediately so a 401 reaches the auth hook once.
func CheckRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	switch ClassifyResponse(resp, err) {
	case ErrorTypeNetwork, ErrorTypeRetryable:
		return true, nil
	default:
		return false, nil
	}
}

// readBackoff adapts CalculateBackoff to retryablehttp, whose attemptNum
// is 0 for the first retry.
func readBackoff(_, _ time.Duration, attemptNum int, _ *nethttp.Response) time.Duration {
	return CalculateBackoff(attemptNum+1, constants.ReadRetryBaseDelay)
}

// OnAttempt is invoked before each content-fetch attempt (1-based).
type OnAttempt func(attempt int)

// NewReadClient wraps base in a retrying client for content reads:
// ReadMaxAttempts total attempts, backoff 200ms then 400ms, every attempt
// logged with its number. The final response is returned unconsumed so the
// caller can map its status.
func NewReadClient(base *nethttp.Client, logger *logging.Logger, onAttempt OnAttempt) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = constants.ReadMaxAttempts - 1
	rc.RetryWaitMin = CalculateBackoff(1, constants.ReadRetryBaseDelay)
	rc.RetryWaitMax = CalculateBackoff(constants.ReadMaxAttempts-1, constants.ReadRetryBaseDelay)
	rc.Backoff = readBackoff
	rc.CheckRetry = CheckRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logging.RetryLogger{L: logger}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *nethttp.Request, i int) {
		logger.Debug().
			Int("attempt", i+1).
			Int("max_attempts", constants.ReadMaxAttempts).
			Str("path", req.URL.Query().Get("file")).
			Msg("content fetch attempt")
		if onAttempt != nil {
			onAttempt(i + 1)
		}
	}
	return rc
}
