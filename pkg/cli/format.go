package cli

import "fmt"

// FormatBytes formats a byte count as a human readable string.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSeconds formats a duration in seconds as a human readable
// string, for reporting total audio length.
func FormatSeconds(secs float64) string {
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs) / 60
	if mins < 60 {
		return fmt.Sprintf("%dm%.1fs", mins, secs-float64(mins*60))
	}
	return fmt.Sprintf("%dh%dm", mins/60, mins%60)
}
