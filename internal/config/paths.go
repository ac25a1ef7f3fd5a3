package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir is the configuration directory name under ~/.config
const ConfigDir = "panelfs"

// configDir returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\PanelFS
//   - Unix: ~/.config/panelfs
func configDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "PanelFS")
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming", "PanelFS")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ConfigDir)
	}
	return filepath.Join(home, ".config", ConfigDir)
}

// DefaultConfigPath returns the path of the INI config file.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config")
}

// DefaultTokenPath returns the path of the optional token file.
func DefaultTokenPath() string {
	return filepath.Join(configDir(), "token")
}

// LogDirectory returns the directory used for the default log file.
//   - Windows: %LOCALAPPDATA%\PanelFS\logs
//   - Unix: ~/.config/panelfs/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "PanelFS", "logs")
		}
	}
	return filepath.Join(configDir(), "logs")
}

// EnsureLogDirectory creates the log directory with owner-only permissions.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
