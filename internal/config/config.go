// Package config provides configuration management for panelfs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the persisted panelfs configuration.
//
// Config file location:
//   - Windows: %APPDATA%\PanelFS\config
//   - Unix: ~/.config/panelfs/config
//
// INI format:
//
//	[panel]
//	url = https://panel.example.com
//	server_id = a1b2c3
//	api_key = <client-api-key>
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 0
//	user =
//	password =
//	no_proxy =
//	rewrite_base =
//
//	[logging]
//	level = info
//	file =
//
//	[status]
//	enabled = true
//	notify_power = false
type Config struct {
	Panel   PanelConfig
	Proxy   ProxyConfig
	Logging LoggingConfig
	Status  StatusConfig
}

// PanelConfig holds the three values needed to hydrate a connection.
type PanelConfig struct {
	URL      string `ini:"url"`
	ServerID string `ini:"server_id"`
	APIKey   string `ini:"api_key"`
}

// ProxyConfig controls outbound HTTP routing.
type ProxyConfig struct {
	// Mode is one of "no-proxy", "system", "basic", "ntlm".
	Mode     string `ini:"mode"`
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`

	// NoProxy is a comma-separated list of hosts that bypass the proxy.
	NoProxy string `ini:"no_proxy"`

	// RewriteBase, when set, prefixes every request URL (percent-encoded).
	RewriteBase string `ini:"rewrite_base"`
}

// LoggingConfig controls log verbosity and the optional rotating log file.
type LoggingConfig struct {
	Level string `ini:"level"`
	File  string `ini:"file"`
}

// StatusConfig controls the status poller.
type StatusConfig struct {
	Enabled bool `ini:"enabled"`

	// NotifyPower shows a desktop notification after a successful power signal.
	NotifyPower bool `ini:"notify_power"`
}

// Proxy modes
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Validation errors
var (
	ErrMissingPanelURL   = errors.New("panel url is required")
	ErrInvalidPanelURL   = errors.New("panel url must be an absolute http(s) URL")
	ErrMissingServerID   = errors.New("server_id is required")
	ErrMissingAPIKey     = errors.New("api_key is required")
	ErrInvalidProxyMode  = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost  = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidProxyPort  = errors.New("proxy port must be between 1 and 65535")
	ErrInvalidRewriteURL = errors.New("proxy rewrite_base must be an absolute URL")
)

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Mode: ProxyModeNone,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Status: StatusConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	panel := iniFile.Section("panel")
	cfg.Panel.URL = strings.TrimSpace(panel.Key("url").String())
	cfg.Panel.ServerID = strings.TrimSpace(panel.Key("server_id").String())
	cfg.Panel.APIKey = strings.TrimSpace(panel.Key("api_key").String())

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(ProxyModeNone)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(0)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.Password = proxy.Key("password").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()
	cfg.Proxy.RewriteBase = proxy.Key("rewrite_base").String()

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString("info")
	cfg.Logging.File = logging.Key("file").String()

	status := iniFile.Section("status")
	cfg.Status.Enabled = status.Key("enabled").MustBool(true)
	cfg.Status.NotifyPower = status.Key("notify_power").MustBool(false)

	return cfg, nil
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist.
// The API key is stored in the file, so the file is created 0600.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	panel, err := iniFile.NewSection("panel")
	if err != nil {
		return fmt.Errorf("failed to create panel section: %w", err)
	}
	panel.Key("url").SetValue(cfg.Panel.URL)
	panel.Key("server_id").SetValue(cfg.Panel.ServerID)
	panel.Key("api_key").SetValue(cfg.Panel.APIKey)

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.Proxy.Mode)
	proxy.Key("host").SetValue(cfg.Proxy.Host)
	proxy.Key("port").SetValue(strconv.Itoa(cfg.Proxy.Port))
	proxy.Key("user").SetValue(cfg.Proxy.User)
	proxy.Key("password").SetValue(cfg.Proxy.Password)
	proxy.Key("no_proxy").SetValue(cfg.Proxy.NoProxy)
	proxy.Key("rewrite_base").SetValue(cfg.Proxy.RewriteBase)

	logging, err := iniFile.NewSection("logging")
	if err != nil {
		return fmt.Errorf("failed to create logging section: %w", err)
	}
	logging.Key("level").SetValue(cfg.Logging.Level)
	logging.Key("file").SetValue(cfg.Logging.File)

	status, err := iniFile.NewSection("status")
	if err != nil {
		return fmt.Errorf("failed to create status section: %w", err)
	}
	status.Key("enabled").SetValue(strconv.FormatBool(cfg.Status.Enabled))
	status.Key("notify_power").SetValue(strconv.FormatBool(cfg.Status.NotifyPower))

	// Temporary file + rename so watchers never observe a half-written file
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the whole configuration, including proxy settings.
func (cfg *Config) Validate() error {
	if err := cfg.ValidateForConnection(); err != nil {
		return err
	}
	return cfg.ValidateProxy()
}

// ValidateForConnection checks only the three connection values.
func (cfg *Config) ValidateForConnection() error {
	if strings.TrimSpace(cfg.Panel.URL) == "" {
		return ErrMissingPanelURL
	}
	u, err := url.Parse(cfg.Panel.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidPanelURL
	}
	if strings.TrimSpace(cfg.Panel.ServerID) == "" {
		return ErrMissingServerID
	}
	if strings.TrimSpace(cfg.Panel.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ValidateProxy checks the [proxy] section.
func (cfg *Config) ValidateProxy() error {
	switch cfg.Proxy.Mode {
	case "", ProxyModeNone, ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
		if cfg.Proxy.Port < 1 || cfg.Proxy.Port > 65535 {
			return ErrInvalidProxyPort
		}
	default:
		return ErrInvalidProxyMode
	}
	if cfg.Proxy.RewriteBase != "" {
		u, err := url.Parse(cfg.Proxy.RewriteBase)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ErrInvalidRewriteURL
		}
	}
	return nil
}

// HasConnection reports whether all three connection values are present.
// It does not validate them; see ValidateForConnection.
func (cfg *Config) HasConnection() bool {
	return cfg.Panel.URL != "" && cfg.Panel.ServerID != "" && cfg.Panel.APIKey != ""
}

// NormalizePanelURL trims whitespace and trailing slashes and adds an
// https:// scheme when none is given.
func NormalizePanelURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	if s != "" && !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	return s
}

// Keys lists the settable dotted keys, in display order.
var Keys = []string{
	"panel.url", "panel.server_id", "panel.api_key",
	"proxy.mode", "proxy.host", "proxy.port", "proxy.user", "proxy.password", "proxy.no_proxy", "proxy.rewrite_base",
	"logging.level", "logging.file",
	"status.enabled", "status.notify_power",
}

// Get returns the value of a dotted key such as "panel.url".
func (cfg *Config) Get(key string) (string, error) {
	switch key {
	case "panel.url":
		return cfg.Panel.URL, nil
	case "panel.server_id":
		return cfg.Panel.ServerID, nil
	case "panel.api_key":
		return cfg.Panel.APIKey, nil
	case "proxy.mode":
		return cfg.Proxy.Mode, nil
	case "proxy.host":
		return cfg.Proxy.Host, nil
	case "proxy.port":
		return strconv.Itoa(cfg.Proxy.Port), nil
	case "proxy.user":
		return cfg.Proxy.User, nil
	case "proxy.password":
		return cfg.Proxy.Password, nil
	case "proxy.no_proxy":
		return cfg.Proxy.NoProxy, nil
	case "proxy.rewrite_base":
		return cfg.Proxy.RewriteBase, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "status.enabled":
		return strconv.FormatBool(cfg.Status.Enabled), nil
	case "status.notify_power":
		return strconv.FormatBool(cfg.Status.NotifyPower), nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// Set assigns a dotted key from its string form.
func (cfg *Config) Set(key, value string) error {
	switch key {
	case "panel.url":
		cfg.Panel.URL = NormalizePanelURL(value)
	case "panel.server_id":
		cfg.Panel.ServerID = strings.TrimSpace(value)
	case "panel.api_key":
		cfg.Panel.APIKey = strings.TrimSpace(value)
	case "proxy.mode":
		cfg.Proxy.Mode = strings.ToLower(strings.TrimSpace(value))
	case "proxy.host":
		cfg.Proxy.Host = strings.TrimSpace(value)
	case "proxy.port":
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", value, err)
		}
		cfg.Proxy.Port = port
	case "proxy.user":
		cfg.Proxy.User = value
	case "proxy.password":
		cfg.Proxy.Password = value
	case "proxy.no_proxy":
		cfg.Proxy.NoProxy = value
	case "proxy.rewrite_base":
		cfg.Proxy.RewriteBase = strings.TrimSpace(value)
	case "logging.level":
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(value))
	case "logging.file":
		cfg.Logging.File = value
	case "status.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", value, err)
		}
		cfg.Status.Enabled = b
	case "status.notify_power":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q: %w", value, err)
		}
		cfg.Status.NotifyPower = b
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
