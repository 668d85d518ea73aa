package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/torosent/pagepulse/internal/metrics"
)

// Placeholder marks a metric that has no value yet.
const Placeholder = "-"

// Tile is one labelled metric as shown in the panels.
type Tile struct {
	Key   string
	Label string
	Value string
}

// Tiles renders the six snapshot fields in panel order.
func Tiles(s metrics.Snapshot) []Tile {
	return []Tile{
		{Key: "fcp", Label: "FCP", Value: FormatOptionalMs(s.FirstContentfulPaint)},
		{Key: "lcp", Label: "LCP", Value: FormatOptionalMs(s.LargestRenderTime)},
		{Key: "cls", Label: "CLS", Value: FormatCLS(s.CumulativeLayoutShift)},
		{Key: "tbt", Label: "TBT (≈)", Value: FormatBlocking(s.TotalBlockingTime)},
		{Key: "requests", Label: "Requests", Value: FormatCount(s.TotalRequests)},
		{Key: "bytes", Label: "Total weight", Value: FormatKB(s.TotalBytes)},
	}
}

// FormatOptionalMs prints whole milliseconds; unset is a placeholder but a
// measured zero is shown.
func FormatOptionalMs(d *time.Duration) string {
	if d == nil {
		return Placeholder
	}
	return formatMs(*d)
}

// FormatBlocking prints blocking time, with zero shown as a placeholder.
func FormatBlocking(d time.Duration) string {
	if d <= 0 {
		return Placeholder
	}
	return formatMs(d)
}

// FormatCLS prints the shift score with three decimals.
func FormatCLS(v float64) string {
	if !(v > 0) {
		return Placeholder
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// FormatCount prints a request count.
func FormatCount(n int) string {
	if n <= 0 {
		return Placeholder
	}
	return strconv.Itoa(n)
}

// FormatKB prints a byte total in kilobytes with one decimal.
func FormatKB(n int64) string {
	if n <= 0 {
		return Placeholder
	}
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}

func formatMs(d time.Duration) string {
	return fmt.Sprintf("%.0f ms", metrics.Milliseconds(d))
}
