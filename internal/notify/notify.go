// Package notify sends desktop notifications for server events.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/panelfs/panelfs/internal/logging"
)

// sendFunc delivers one notification. Tests replace it.
type sendFunc func(title, message string) error

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	cfg     Config
	send    sendFunc
	mu      sync.RWMutex
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowPowerSignals confirms accepted power signals.
	ShowPowerSignals bool

	// ShowAuthFailures alerts when the panel rejects the API key.
	ShowAuthFailures bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		ShowPowerSignals: true,
		ShowAuthFailures: true,
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Notifier{
		logger:  logger,
		enabled: cfg.Enabled,
		cfg:     *cfg,
		send: func(title, message string) error {
			// Windows: toast, macOS: NSUserNotificationCenter, Linux: D-Bus
			return beeep.Notify(title, message, "")
		},
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// Confirm shows a confirmation. It satisfies status.Confirmer.
func (n *Notifier) Confirm(title, message string) error {
	if !n.IsEnabled() || !n.cfg.ShowPowerSignals {
		return nil
	}
	return n.send(title, truncate(message, 200))
}

// AuthFailed alerts that the API key was rejected. It falls back to a
// regular notification where alerts are unsupported.
func (n *Notifier) AuthFailed() {
	if !n.IsEnabled() || !n.cfg.ShowAuthFailures {
		return
	}

	title := "panelfs"
	message := "The panel rejected the API key. Run 'panelfs connect' to sign in again."
	if err := beeep.Alert(title, message, ""); err != nil {
		if err := n.send(title, message); err != nil {
			n.logger.Error().Err(err).Msg("Failed to send auth failure notification")
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
