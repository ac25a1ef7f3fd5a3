package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// APIKeyEnvVar is the environment variable consulted last.
const APIKeyEnvVar = "PANELFS_API_KEY"

// API key sources, as reported by ResolveAPIKeySource.
const (
	SourceFlag        = "flag"
	SourceConfig      = "config"
	SourceTokenFile   = "token-file"
	SourceEnvironment = "environment"
)

// ResolveAPIKey returns an API key by checking multiple sources in priority order.
//
// Priority (highest to lowest):
//  1. Provided apiKey parameter (if non-empty), e.g. from --api-key
//  2. api_key in the config file at configPath (default path when empty)
//  3. Token file (~/.config/panelfs/token)
//  4. PANELFS_API_KEY environment variable
//
// Returns empty string if no API key found in any source.
func ResolveAPIKey(apiKey, configPath string) string {
	key, _ := ResolveAPIKeySource(apiKey, configPath)
	return key
}

// ResolveAPIKeySource returns the API key and where it came from, for
// --verbose output. Source is "" when nothing was found.
func ResolveAPIKeySource(apiKey, configPath string) (string, string) {
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		return apiKey, SourceFlag
	}

	if cfg, err := Load(configPath); err == nil && cfg.Panel.APIKey != "" {
		return cfg.Panel.APIKey, SourceConfig
	}

	if key, err := ReadTokenFile(DefaultTokenPath()); err == nil && key != "" {
		return key, SourceTokenFile
	}

	if envKey := strings.TrimSpace(os.Getenv(APIKeyEnvVar)); envKey != "" {
		return envKey, SourceEnvironment
	}

	return "", ""
}

// ReadTokenFile reads an API key from a file, trimming whitespace.
// A warning is logged when the file is readable by group or others.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0077 != 0 {
		log.Warn().Str("path", path).Msgf("token file has insecure permissions %04o, consider chmod 600", mode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}

// WriteTokenFile writes an API key to a file with 0600 permissions.
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
