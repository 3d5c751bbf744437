package humanize

import (
	"fmt"
	"time"
)

// Rate describes n bytes transferred within d, e.g. "2.5 MiB/s".
func Rate(n uint64, d time.Duration) string {
	if d <= 0 {
		return "0 B/s"
	}
	return Bytes(uint64(float64(n)/d.Seconds())) + "/s"
}

func Bytes(bytes uint64) string {
	switch {
	case bytes > (1024 * 1024):
		return fmt.Sprintf("%.1f MiB", float64(bytes)/1024/1024)
	case bytes > 1024:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// Blocks describes count blocks of size bytes, e.g. "256 × 1024 B (256.0 KiB)".
func Blocks(count, size int) string {
	return fmt.Sprintf("%d × %d B (%s)", count, size, Bytes(uint64(count)*uint64(size)))
}
