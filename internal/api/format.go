package api

import (
	"fmt"
	"strings"
)

// formatBytes renders a byte count for the status panel.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}

// formatUptime turns RouterOS "HH:MM:SS" uptime into a readable form.
// Values in any other shape (like "1d2h3m") pass through unchanged.
func formatUptime(uptime string) string {
	parts := strings.Split(uptime, ":")
	if len(parts) != 3 {
		return uptime
	}
	return fmt.Sprintf("%sh %sm %ss", parts[0], parts[1], parts[2])
}
