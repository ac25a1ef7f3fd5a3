package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/panelfs/panelfs/internal/models"
)

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 4096

// StatusError is returned for every non-2xx panel response.
type StatusError struct {
	StatusCode int
	Status     string // raw status line, e.g. "418 I'm a teapot"
	Detail     string // errors[0].detail from the panel, if any
	Body       string // truncated raw body, for diagnostic logs only
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Detail)
	}
	return e.Status
}

func newStatusError(resp *nethttp.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, nethttp.StatusText(resp.StatusCode))
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     status,
		Detail:     parseDetail(raw),
		Body:       string(raw),
	}
}

// parseDetail extracts the first error detail from the panel's envelope.
func parseDetail(body []byte) string {
	var env models.ErrorResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	for _, e := range env.Errors {
		if d := strings.TrimSpace(e.Detail); d != "" {
			return d
		}
	}
	return ""
}

// AsStatusError unwraps err to a *StatusError.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	ok := errors.As(err, &se)
	return se, ok
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if se, ok := AsStatusError(err); ok {
		return se.StatusCode
	}
	return 0
}
