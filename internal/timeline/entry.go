// Package timeline provides an in-process performance timeline: a single
// threaded event loop that records performance entries and delivers them to
// observers the way a browser's PerformanceObserver does.
package timeline

import "strings"

// EntryType names a stream of performance entries.
type EntryType string

const (
	TypePaint         EntryType = "paint"
	TypeLargestRender EntryType = "largest-contentful-paint"
	TypeLayoutShift   EntryType = "layout-shift"
	TypeLongTask      EntryType = "longtask"
	TypeResource      EntryType = "resource"
	TypeNavigation    EntryType = "navigation"
)

// KnownTypes lists every entry type a default Timeline supports.
var KnownTypes = []EntryType{
	TypePaint,
	TypeLargestRender,
	TypeLayoutShift,
	TypeLongTask,
	TypeResource,
	TypeNavigation,
}

// ParseEntryType normalizes a user-supplied entry type name.
func ParseEntryType(s string) (EntryType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "lcp", "largest-render":
		return TypeLargestRender, true
	case "cls", "layoutshift":
		return TypeLayoutShift, true
	case "long-task", "long_task":
		return TypeLongTask, true
	}
	for _, t := range KnownTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Entry is one performance entry. Field names follow the browser's
// PerformanceEntry JSON so recorded timelines can be replayed verbatim.
// Times are milliseconds relative to navigation start.
type Entry struct {
	EntryType       EntryType `json:"entryType" yaml:"entryType"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	StartTime       float64   `json:"startTime" yaml:"startTime"`
	Duration        float64   `json:"duration,omitempty" yaml:"duration,omitempty"`
	RenderTime      float64   `json:"renderTime,omitempty" yaml:"renderTime,omitempty"`
	LoadTime        float64   `json:"loadTime,omitempty" yaml:"loadTime,omitempty"`
	Value           float64   `json:"value,omitempty" yaml:"value,omitempty"`
	HadRecentInput  bool      `json:"hadRecentInput,omitempty" yaml:"hadRecentInput,omitempty"`
	TransferSize    float64   `json:"transferSize,omitempty" yaml:"transferSize,omitempty"`
	EncodedBodySize float64   `json:"encodedBodySize,omitempty" yaml:"encodedBodySize,omitempty"`
}
