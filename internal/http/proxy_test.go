package http

import (
	"net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/panelfs/panelfs/internal/config"
)

// TestProxyFuncWithBypass_EmptyNoProxy verifies that an empty noProxy always routes through proxy.
func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "")

	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_WildcardDomain verifies *.example.com bypasses api.example.com.
func TestProxyFuncWithBypass_WildcardDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com")

	// Subdomain should bypass proxy
	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result)
	}
}

// TestProxyFuncWithBypass_ExactDomain verifies example.com bypasses root and subdomains.
func TestProxyFuncWithBypass_ExactDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "example.com")

	// Root domain should bypass
	req, _ := http.NewRequest("GET", "https://example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for example.com, got %v", result)
	}

	// Subdomain should also bypass (per httpproxy spec, domain without leading dot matches subdomains)
	req2, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result2, err := proxyFunc(req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2 != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result2)
	}
}

// TestProxyFuncWithBypass_CIDR verifies IP/CIDR range matching.
func TestProxyFuncWithBypass_CIDR(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "10.0.0.0/8")

	// IP in range should bypass
	req, _ := http.NewRequest("GET", "http://10.1.2.3:8080/api", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for 10.1.2.3, got %v", result)
	}
}

// TestProxyFuncWithBypass_NonMatchingHost verifies non-matching hosts route through proxy.
func TestProxyFuncWithBypass_NonMatchingHost(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.internal.corp,10.0.0.0/8")

	// External host should use proxy
	req, _ := http.NewRequest("GET", "https://panel.example.net/api/client", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL for panel.example.net, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_MultiplePatterns verifies comma-separated patterns work.
func TestProxyFuncWithBypass_MultiplePatterns(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com, 192.168.0.0/16, internal.corp")

	tests := []struct {
		name       string
		url        string
		wantBypass bool
	}{
		{"wildcard match", "https://api.example.com/data", true},
		{"cidr match", "http://192.168.1.100/api", true},
		{"exact domain match", "https://internal.corp/status", true},
		{"non-match", "https://panel.example.net/api/client", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass && result == nil {
				t.Errorf("expected proxy for %s, got nil (bypass)", tt.url)
			}
		})
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	tests := []struct {
		name      string
		proxy     config.ProxyConfig
		wantErr   bool
		wantNTLM  bool
		wantProxy bool
	}{
		{"no-proxy", config.ProxyConfig{Mode: config.ProxyModeNone}, false, false, false},
		{"empty mode", config.ProxyConfig{}, false, false, false},
		{"system", config.ProxyConfig{Mode: config.ProxyModeSystem}, false, false, true},
		{"basic", config.ProxyConfig{Mode: config.ProxyModeBasic, Host: "proxy.corp", Port: 3128}, false, false, true},
		{"basic missing host falls back", config.ProxyConfig{Mode: config.ProxyModeBasic}, false, false, false},
		{"ntlm", config.ProxyConfig{Mode: config.ProxyModeNTLM, Host: "proxy.corp", Port: 3128, User: "u", Password: "p"}, false, true, false},
		{"unknown", config.ProxyConfig{Mode: "socks5"}, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := ConfigureHTTPClient(tt.proxy)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := client.Transport.(ntlmssp.Negotiator); ok != tt.wantNTLM {
				t.Errorf("NTLM negotiator = %v, want %v", ok, tt.wantNTLM)
			}
			if tr, ok := client.Transport.(*http.Transport); ok {
				if (tr.Proxy != nil) != tt.wantProxy {
					t.Errorf("proxy func set = %v, want %v", tr.Proxy != nil, tt.wantProxy)
				}
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	u := buildProxyURL(config.ProxyConfig{Host: "proxy.corp", User: "alice", Password: "pw"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("host = %q, want default port 8080", u.Host)
	}
	if u.User == nil || u.User.Username() != "alice" {
		t.Errorf("expected embedded credentials, got %v", u.User)
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "alice"})
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	tests := []struct {
		p    config.ProxyConfig
		want bool
	}{
		{config.ProxyConfig{Mode: config.ProxyModeBasic, User: "u"}, true},
		{config.ProxyConfig{Mode: config.ProxyModeNTLM, User: "u", Password: "p"}, false},
		{config.ProxyConfig{Mode: config.ProxyModeSystem, User: "u"}, false},
		{config.ProxyConfig{Mode: config.ProxyModeBasic}, false},
	}
	for _, tt := range tests {
		if got := NeedsProxyPassword(tt.p); got != tt.want {
			t.Errorf("NeedsProxyPassword(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestNewPanelClient_DisablesHTTP2BehindProxy(t *testing.T) {
	t.Setenv("FORCE_HTTP2", "")
	t.Setenv("DISABLE_HTTP2", "")

	client, err := NewPanelClient(config.ProxyConfig{Mode: config.ProxyModeBasic, Host: "proxy.corp", Port: 3128})
	if err != nil {
		t.Fatal(err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be disabled behind a proxy")
	}

	client, err = NewPanelClient(config.ProxyConfig{Mode: config.ProxyModeNone})
	if err != nil {
		t.Fatal(err)
	}
	if !client.Transport.(*http.Transport).ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be attempted without a proxy")
	}
}
