package metrics

import (
	"math"
	"time"
)

// FirstContentfulPaintName is the paint entry name that carries FCP.
const FirstContentfulPaintName = "first-contentful-paint"

// BlockingThreshold is the portion of a long task that does not count as
// blocking time.
const BlockingThreshold = 50 * time.Millisecond

// PaintEntry is a normalized paint-timing entry.
type PaintEntry struct {
	Name      string
	StartTime time.Duration
}

// LargestRenderEntry is a normalized largest-contentful-paint candidate.
// RenderTime and LoadTime are zero when the platform did not expose them.
type LargestRenderEntry struct {
	RenderTime time.Duration
	LoadTime   time.Duration
	StartTime  time.Duration
}

// Time returns the render time, falling back to load time and then start time.
func (e LargestRenderEntry) Time() time.Duration {
	switch {
	case e.RenderTime > 0:
		return e.RenderTime
	case e.LoadTime > 0:
		return e.LoadTime
	case e.StartTime > 0:
		return e.StartTime
	default:
		return 0
	}
}

// LayoutShiftEntry is a normalized layout-shift entry.
type LayoutShiftEntry struct {
	Value          float64
	HadRecentInput bool
}

// LongTaskEntry is a normalized long-task entry.
type LongTaskEntry struct {
	Duration time.Duration
}

// ResourceEntry is a completed network transfer.
type ResourceEntry struct {
	TransferSize    int64
	EncodedBodySize int64
}

// MergeFirstContentfulPaint keeps the first first-contentful-paint start time.
// It returns current unchanged once set or when e is some other paint.
// The bool reports whether e was captured.
func MergeFirstContentfulPaint(current *time.Duration, e PaintEntry) (*time.Duration, bool) {
	if current != nil || e.Name != FirstContentfulPaintName {
		return current, false
	}
	v := clampDuration(e.StartTime)
	return &v, true
}

// MergeLargestRender replaces current with the time of e (last write wins).
func MergeLargestRender(_ *time.Duration, e LargestRenderEntry) *time.Duration {
	v := clampDuration(e.Time())
	return &v
}

// MergeLayoutShift adds e's score unless it followed recent user input.
func MergeLayoutShift(current float64, e LayoutShiftEntry) float64 {
	if e.HadRecentInput || math.IsNaN(e.Value) || math.IsInf(e.Value, 0) || e.Value <= 0 {
		return current
	}
	return current + e.Value
}

// MergeLongTask adds the part of e beyond BlockingThreshold.
func MergeLongTask(current time.Duration, e LongTaskEntry) time.Duration {
	return current + BlockingTime(e.Duration)
}

// BlockingTime returns max(0, d - BlockingThreshold).
func BlockingTime(d time.Duration) time.Duration {
	if d <= BlockingThreshold {
		return 0
	}
	return d - BlockingThreshold
}

// ResourceCost is the byte cost of one transfer: the transfer size when
// positive, else the encoded body size when positive, else zero.
func ResourceCost(r ResourceEntry) int64 {
	if r.TransferSize > 0 {
		return r.TransferSize
	}
	if r.EncodedBodySize > 0 {
		return r.EncodedBodySize
	}
	return 0
}

// AccountResources reduces every known transfer into a request count and a
// byte total. The count includes the document's own navigation request.
// The total saturates at math.MaxInt64.
func AccountResources(entries []ResourceEntry) (requests int, bytes int64) {
	for _, r := range entries {
		cost := ResourceCost(r)
		if bytes > math.MaxInt64-cost {
			bytes = math.MaxInt64
			continue
		}
		bytes += cost
	}
	return len(entries) + 1, bytes
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
