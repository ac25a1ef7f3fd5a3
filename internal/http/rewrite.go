package http

import (
	"net/url"
	"strings"
)

// URLRewriter maps an outbound request URL to the URL actually dialled.
type URLRewriter func(original string) string

// NewURLRewriter returns the outbound proxy hook. With an empty base every
// URL passes through unchanged; otherwise the original URL is
// percent-encoded and appended to base.
func NewURLRewriter(base string) URLRewriter {
	base = strings.TrimSpace(base)
	if base == "" {
		return Passthrough
	}
	return func(original string) string {
		return base + url.QueryEscape(original)
	}
}

// Passthrough is the identity rewriter.
func Passthrough(original string) string { return original }
