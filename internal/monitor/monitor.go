// Package monitor wires one page session together: a timeline host, the
// stream adapters, the Aggregator and its Publisher.
package monitor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/source"
	"github.com/torosent/pagepulse/internal/timeline"
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracer records recomputation spans with t.
func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) { m.tracer = t }
}

// Monitor owns the metrics of one page. Aggregator state is only touched
// from tasks on the timeline's loop; the exported methods are safe to call
// from any goroutine.
type Monitor struct {
	tl        *timeline.Timeline
	publisher *metrics.Publisher
	agg       *metrics.Aggregator
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx      context.Context
	mu       sync.Mutex
	outcomes []source.Outcome
	started  bool
}

// New creates a Monitor for tl. Nothing is subscribed until Start.
func New(tl *timeline.Timeline, opts ...Option) *Monitor {
	m := &Monitor{
		tl:        tl,
		publisher: metrics.NewPublisher(),
		logger:    zap.NewNop(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.agg = metrics.NewAggregator(source.Resources(tl), m.publisher,
		metrics.WithLogger(m.logger),
		metrics.WithTracer(m.tracer),
	)
	return m
}

// Start queues adapter installation and the load handler on the loop. ctx
// parents recomputation spans. Calling Start more than once has no effect.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	if ctx != nil {
		m.ctx = ctx
	}
	m.mu.Unlock()

	m.tl.Post(func() {
		outcomes := source.Install(m.tl, m.agg, m.logger)
		m.mu.Lock()
		m.outcomes = outcomes
		m.mu.Unlock()

		for _, o := range outcomes {
			if !o.OK() {
				m.logger.Info("metric unavailable", zap.String("source", o.Source), zap.String("status", o.Status()))
			}
		}

		// Resource entries finalized during load land after the load
		// handlers, so the final pull waits one more turn.
		m.tl.OnLoad(func() {
			m.tl.Post(func() {
				m.logger.Debug("load complete, recomputing")
				m.agg.RecomputeAndPublish(m.ctx)
			})
		})
	})
}

// Refresh queues a recomputation. The resulting snapshot reaches every
// subscriber even when nothing changed.
func (m *Monitor) Refresh() {
	m.tl.Post(func() {
		m.agg.RecomputeAndPublish(m.ctx)
	})
}

// Subscribe registers fn for every published snapshot.
func (m *Monitor) Subscribe(fn metrics.Subscriber) (cancel func()) {
	return m.publisher.Subscribe(fn)
}

// Latest returns the most recently published snapshot.
func (m *Monitor) Latest() (metrics.Snapshot, bool) {
	return m.publisher.Latest()
}

// Published returns how many snapshots have been published.
func (m *Monitor) Published() int64 {
	return m.publisher.Count()
}

// Outcomes returns the adapter subscription results, or nil before the
// adapters have been installed.
func (m *Monitor) Outcomes() []source.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		return nil
	}
	out := make([]source.Outcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// LongTasks returns long task diagnostics.
func (m *Monitor) LongTasks() metrics.LongTaskStats {
	return m.agg.LongTasks()
}

// Timeline returns the host the monitor observes.
func (m *Monitor) Timeline() *timeline.Timeline {
	return m.tl
}
