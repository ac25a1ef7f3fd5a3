package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/constants"
)

// defaultProxyPort is used when the [proxy] section omits a port.
const defaultProxyPort = 8080

// ConfigureHTTPClient builds an HTTP client honouring the [proxy] settings.
func ConfigureHTTPClient(p config.ProxyConfig) (*nethttp.Client, error) {
	transport := newTransport()

	switch strings.ToLower(p.Mode) {
	case config.ProxyModeNone, "":
		transport.Proxy = nil

	case config.ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case config.ProxyModeNTLM:
		// Incomplete saved config falls back to direct so the user can reconfigure
		if p.Host == "" {
			log.Warn().Msg("proxy mode is ntlm but host is missing, falling back to no-proxy")
			return &nethttp.Client{Transport: transport, Timeout: constants.HTTPRequestTimeout}, nil
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(p), p.NoProxy)
		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{RoundTripper: transport},
			Timeout:   constants.HTTPRequestTimeout,
		}, nil

	case config.ProxyModeBasic:
		if p.Host == "" {
			log.Warn().Msg("proxy mode is basic but host is missing, falling back to no-proxy")
			return &nethttp.Client{Transport: transport, Timeout: constants.HTTPRequestTimeout}, nil
		}
		if p.User != "" && p.Password == "" {
			log.Warn().Msg("proxy user configured but password missing, proxy auth disabled until password is set")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(p), p.NoProxy)

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", p.Mode)
	}

	return &nethttp.Client{
		Transport: transport,
		Timeout:   constants.HTTPRequestTimeout,
	}, nil
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(p config.ProxyConfig) *url.URL {
	port := p.Port
	if port == 0 {
		port = defaultProxyPort
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, fmt.Sprint(port)),
	}

	// Empty password in URL can cause auth failures with some proxies
	if p.User != "" && p.Password != "" {
		proxyURL.User = url.UserPassword(p.User, p.Password)
	}

	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// If noProxy is empty, behaves identically to nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("proxy bypass (direct connection)")
		} else {
			log.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("proxied")
		}
		return result, err
	}
}

// NeedsProxyPassword returns true if the proxy configuration requires a password
// but one has not been provided. Used by the CLI to decide whether to prompt.
func NeedsProxyPassword(p config.ProxyConfig) bool {
	mode := strings.ToLower(p.Mode)
	if mode != config.ProxyModeBasic && mode != config.ProxyModeNTLM {
		return false
	}
	return p.User != "" && p.Password == ""
}
