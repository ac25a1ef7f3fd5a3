package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/panelfs/panelfs/internal/config"
)

// NewPanelClient creates the HTTP client used for every panel API call.
//
// It starts from ConfigureHTTPClient and then:
//   - enables HTTP/2 (DISABLE_HTTP2=true forces HTTP/1.1)
//   - disables HTTP/2 when a proxy is active, unless FORCE_HTTP2=true
//
// Proxies often mishandle HTTP/2 multiplexing, which shows up as stream
// errors in the middle of a file upload.
func NewPanelClient(p config.ProxyConfig) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(p)
	if err != nil {
		return nil, err
	}

	// NTLM wraps the transport in ntlmssp.Negotiator; leave it as built
	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		return client, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(p) && os.Getenv("FORCE_HTTP2") != "true") {
		disableHTTP2(tr)
	}

	client.Transport = tr
	return client, nil
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}

// proxyActive trusts the configured mode first and only consults the
// environment in system mode.
func proxyActive(p config.ProxyConfig) bool {
	switch p.Mode {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}
