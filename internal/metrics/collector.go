package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LongTaskCollector records the distribution of long task durations. It is
// diagnostic data only and never feeds a Snapshot.
type LongTaskCollector struct {
	mu      sync.Mutex
	hist    *hdrhistogram.Histogram
	count   int64
	longest time.Duration
	sum     time.Duration
}

// LongTaskStats summarizes recorded long tasks.
type LongTaskStats struct {
	Count   int64         `json:"count"`
	Longest time.Duration `json:"-"`
	Mean    time.Duration `json:"-"`
	P50     time.Duration `json:"-"`
	P90     time.Duration `json:"-"`
	P99     time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	LongestMs float64 `json:"longest_ms"`
	MeanMs    float64 `json:"mean_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P90Ms     float64 `json:"p90_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// NewLongTaskCollector creates an empty collector.
func NewLongTaskCollector() *LongTaskCollector {
	// Track durations from 1µs up to 60s with 3 significant figures.
	return &LongTaskCollector{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// Record adds one task duration. Non-positive durations are ignored.
func (c *LongTaskCollector) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	us := d.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)

	c.count++
	c.sum += d
	if d > c.longest {
		c.longest = d
	}
}

// Stats computes the current distribution.
func (c *LongTaskCollector) Stats() LongTaskStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := LongTaskStats{
		Count:   c.count,
		Longest: c.longest,
	}
	if c.count > 0 {
		stats.Mean = time.Duration(int64(c.sum) / c.count)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50 = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90 = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99 = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.LongestMs = Milliseconds(stats.Longest)
	stats.MeanMs = Milliseconds(stats.Mean)
	stats.P50Ms = Milliseconds(stats.P50)
	stats.P90Ms = Milliseconds(stats.P90)
	stats.P99Ms = Milliseconds(stats.P99)
	return stats
}
