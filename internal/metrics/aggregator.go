package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// ResourceSource enumerates every completed network transfer currently known
// to the host. Each call returns the full list, not a delta.
type ResourceSource interface {
	ResourceEntries() []ResourceEntry
}

// ResourceFunc adapts a function to ResourceSource.
type ResourceFunc func() []ResourceEntry

// ResourceEntries implements ResourceSource.
func (f ResourceFunc) ResourceEntries() []ResourceEntry {
	if f == nil {
		return nil
	}
	return f()
}

type state struct {
	firstContentfulPaint  *time.Duration
	largestRenderTime     *time.Duration
	cumulativeLayoutShift float64
	totalBlockingTime     time.Duration
	totalRequests         int
	totalBytes            int64
}

// Aggregator is the single owner of a page's metrics state. It is not safe
// for concurrent use: every method must run on the host's event loop.
type Aggregator struct {
	state     state
	resources ResourceSource
	publisher *Publisher
	tasks     *LongTaskCollector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTracer records a span for every recomputation.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator that pulls transfers from resources and
// publishes through publisher. A nil publisher gets a private one.
func NewAggregator(resources ResourceSource, publisher *Publisher, opts ...Option) *Aggregator {
	if publisher == nil {
		publisher = NewPublisher()
	}
	a := &Aggregator{
		resources: resources,
		publisher: publisher,
		tasks:     NewLongTaskCollector(),
		tracer:    noop.NewTracerProvider().Tracer("pagepulse"),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publisher returns the publisher snapshots are emitted through.
func (a *Aggregator) Publisher() *Publisher {
	return a.publisher
}

// ApplyPaint merges a paint entry and reports whether it set FCP.
func (a *Aggregator) ApplyPaint(e PaintEntry) bool {
	next, captured := MergeFirstContentfulPaint(a.state.firstContentfulPaint, e)
	a.state.firstContentfulPaint = next
	return captured
}

// ApplyLargestRender merges a largest-contentful-paint candidate.
func (a *Aggregator) ApplyLargestRender(e LargestRenderEntry) {
	a.state.largestRenderTime = MergeLargestRender(a.state.largestRenderTime, e)
}

// ApplyLayoutShift merges a layout-shift entry.
func (a *Aggregator) ApplyLayoutShift(e LayoutShiftEntry) {
	a.state.cumulativeLayoutShift = MergeLayoutShift(a.state.cumulativeLayoutShift, e)
}

// ApplyLongTask merges a long-task entry.
func (a *Aggregator) ApplyLongTask(e LongTaskEntry) {
	a.state.totalBlockingTime = MergeLongTask(a.state.totalBlockingTime, e)
	a.tasks.Record(e.Duration)
}

// RecomputeAndPublish re-runs resource accounting over every known transfer,
// then publishes and returns a snapshot of the state.
func (a *Aggregator) RecomputeAndPublish(ctx context.Context) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := a.tracer.Start(ctx, "metrics.recompute")
	defer span.End()

	var entries []ResourceEntry
	if a.resources != nil {
		entries = a.resources.ResourceEntries()
	}
	a.state.totalRequests, a.state.totalBytes = AccountResources(entries)

	snap := a.snapshot()
	span.SetAttributes(
		attribute.Int("pagepulse.total_requests", snap.TotalRequests),
		attribute.Int64("pagepulse.total_bytes", snap.TotalBytes),
		attribute.Float64("pagepulse.cls", snap.CumulativeLayoutShift),
		attribute.Float64("pagepulse.tbt_ms", Milliseconds(snap.TotalBlockingTime)),
	)
	a.logger.Debug("snapshot recomputed",
		zap.Int("total_requests", snap.TotalRequests),
		zap.Int64("total_bytes", snap.TotalBytes),
		zap.Float64("cls", snap.CumulativeLayoutShift),
		zap.Duration("tbt", snap.TotalBlockingTime),
	)

	a.publisher.Publish(snap)
	return snap
}

// LongTasks returns the distribution of long task durations seen so far.
func (a *Aggregator) LongTasks() LongTaskStats {
	return a.tasks.Stats()
}

func (a *Aggregator) snapshot() Snapshot {
	return Snapshot{
		FirstContentfulPaint:  cloneDuration(a.state.firstContentfulPaint),
		LargestRenderTime:     cloneDuration(a.state.largestRenderTime),
		CumulativeLayoutShift: a.state.cumulativeLayoutShift,
		TotalBlockingTime:     a.state.totalBlockingTime,
		TotalRequests:         a.state.totalRequests,
		TotalBytes:            a.state.totalBytes,
	}
}
