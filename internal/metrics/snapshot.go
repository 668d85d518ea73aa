package metrics

import (
	"encoding/json"
	"math"
	"time"
)

// Snapshot is an immutable copy of a page's metrics at one point in time.
// Optional timings are nil until the corresponding source reports them.
type Snapshot struct {
	FirstContentfulPaint  *time.Duration `json:"-"`
	LargestRenderTime     *time.Duration `json:"-"`
	CumulativeLayoutShift float64        `json:"-"`
	TotalBlockingTime     time.Duration  `json:"-"`
	TotalRequests         int            `json:"-"`
	TotalBytes            int64          `json:"-"`
}

// snapshotJSON is the wire shape of a Snapshot. Timings are reported in
// milliseconds and unset timings are encoded as null.
type snapshotJSON struct {
	FirstContentfulPaintMs *float64 `json:"first_contentful_paint_ms"`
	LargestRenderTimeMs    *float64 `json:"largest_render_time_ms"`
	CumulativeLayoutShift  float64  `json:"cumulative_layout_shift"`
	TotalBlockingTimeMs    float64  `json:"total_blocking_time_ms"`
	TotalRequests          int      `json:"total_requests"`
	TotalBytes             int64    `json:"total_bytes"`
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		FirstContentfulPaintMs: optionalMs(s.FirstContentfulPaint),
		LargestRenderTimeMs:    optionalMs(s.LargestRenderTime),
		CumulativeLayoutShift:  s.CumulativeLayoutShift,
		TotalBlockingTimeMs:    Milliseconds(s.TotalBlockingTime),
		TotalRequests:          s.TotalRequests,
		TotalBytes:             s.TotalBytes,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Snapshot{
		FirstContentfulPaint:  optionalDuration(raw.FirstContentfulPaintMs),
		LargestRenderTime:     optionalDuration(raw.LargestRenderTimeMs),
		CumulativeLayoutShift: raw.CumulativeLayoutShift,
		TotalBlockingTime:     FromMilliseconds(raw.TotalBlockingTimeMs),
		TotalRequests:         raw.TotalRequests,
		TotalBytes:            raw.TotalBytes,
	}
	return nil
}

// Milliseconds converts a duration into fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMilliseconds converts fractional milliseconds, as reported by the
// browser's high resolution clock, into a duration. Negative and NaN inputs
// yield zero; values past the duration range, +Inf included, saturate.
func FromMilliseconds(ms float64) time.Duration {
	if !(ms > 0) {
		return 0
	}
	if ms >= maxMilliseconds {
		return math.MaxInt64
	}
	return time.Duration(ms * float64(time.Millisecond))
}

const maxMilliseconds = float64(math.MaxInt64) / float64(time.Millisecond)

func optionalMs(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	ms := Milliseconds(*d)
	return &ms
}

func optionalDuration(ms *float64) *time.Duration {
	if ms == nil {
		return nil
	}
	d := FromMilliseconds(*ms)
	return &d
}

func cloneDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
