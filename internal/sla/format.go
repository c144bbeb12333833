package sla

import "fmt"

// FormatDuration renders a minute count as a compact human string:
// "45m", "1h 30m", "2d 3h 15m". Negative input renders as "0m".
// Days are 24-hour wall-clock days regardless of the calendar in use.
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}

	days := minutes / (24 * 60)
	hours := (minutes % (24 * 60)) / 60
	mins := minutes % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
