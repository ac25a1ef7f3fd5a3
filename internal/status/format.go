package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/panelfs/panelfs/internal/models"
)

// FormatBytes returns a human-readable byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatUptime renders milliseconds of uptime at second precision.
func FormatUptime(millis int64) string {
	if millis <= 0 {
		return "-"
	}
	return (time.Duration(millis) * time.Millisecond).Truncate(time.Second).String()
}

// DisplayState maps a remote power state to its label. "starting" is shown
// as running.
func DisplayState(state string) string {
	state = strings.ToLower(strings.TrimSpace(state))
	if state == "starting" {
		state = "running"
	}
	if state == "" {
		return "Unknown"
	}
	return strings.ToUpper(state[:1]) + state[1:]
}

// Tooltip summarizes resource usage.
func Tooltip(r models.ResourceUsage) string {
	return fmt.Sprintf("CPU %.1f%% | Memory %s | Disk %s | Uptime %s",
		r.CPUAbsolute,
		FormatBytes(r.MemoryBytes),
		FormatBytes(r.DiskBytes),
		FormatUptime(r.UptimeMillis))
}
