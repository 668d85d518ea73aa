package source_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/source"
	"github.com/torosent/pagepulse/internal/timeline"
)

type session struct {
	tl        *timeline.Timeline
	agg       *metrics.Aggregator
	outcomes  []source.Outcome
	snapshots []metrics.Snapshot
}

func newSession(t *testing.T, opts ...timeline.Option) *session {
	t.Helper()
	s := &session{tl: timeline.New(opts...)}
	s.agg = metrics.NewAggregator(source.Resources(s.tl), nil)
	s.agg.Publisher().Subscribe(func(snap metrics.Snapshot) {
		s.snapshots = append(s.snapshots, snap)
	})
	s.outcomes = source.Install(s.tl, s.agg, nil)
	return s
}

func (s *session) record(entries ...timeline.Entry) {
	s.tl.Record(entries...)
	s.tl.RunUntilIdle()
}

func (s *session) last(t *testing.T) metrics.Snapshot {
	t.Helper()
	require.NotEmpty(t, s.snapshots)
	return s.snapshots[len(s.snapshots)-1]
}

func TestInstallAllSupported(t *testing.T) {
	s := newSession(t)
	require.Len(t, s.outcomes, 4)
	names := make([]string, 0, 4)
	for _, o := range s.outcomes {
		assert.True(t, o.OK(), o.Source)
		assert.Equal(t, "active", o.Status())
		names = append(names, o.Source)
	}
	assert.Equal(t, []string{"paint", "largest-render", "layout-shift", "long-task"}, names)
}

func TestPaintFirstContentfulPaintWins(t *testing.T) {
	s := newSession(t)
	s.record(
		timeline.Entry{EntryType: timeline.TypePaint, Name: "first-paint", StartTime: 80},
		timeline.Entry{EntryType: timeline.TypePaint, Name: "first-contentful-paint", StartTime: 120},
	)
	s.record(timeline.Entry{EntryType: timeline.TypePaint, Name: "first-contentful-paint", StartTime: 500})

	snap := s.last(t)
	require.NotNil(t, snap.FirstContentfulPaint)
	assert.Equal(t, 120*time.Millisecond, *snap.FirstContentfulPaint)
	assert.Len(t, s.snapshots, 1, "paint publishes once on capture, then disconnects")
}

func TestPaintBufferedHistory(t *testing.T) {
	tl := timeline.New()
	tl.Record(timeline.Entry{EntryType: timeline.TypePaint, Name: "first-contentful-paint", StartTime: 95})
	tl.RunUntilIdle()

	agg := metrics.NewAggregator(source.Resources(tl), nil)
	p := source.NewPaint(agg, nil)
	require.NoError(t, p.Subscribe(tl))
	assert.False(t, p.Done())

	tl.RunUntilIdle()
	assert.True(t, p.Done())
	snap, ok := agg.Publisher().Latest()
	require.True(t, ok)
	assert.Equal(t, 95*time.Millisecond, *snap.FirstContentfulPaint)
}

func TestLargestRenderLastWins(t *testing.T) {
	s := newSession(t)
	s.record(timeline.Entry{EntryType: timeline.TypeLargestRender, StartTime: 300, RenderTime: 900})
	s.record(
		timeline.Entry{EntryType: timeline.TypeLargestRender, StartTime: 400, LoadTime: 650},
		timeline.Entry{EntryType: timeline.TypeLargestRender, StartTime: 200},
	)

	snap := s.last(t)
	require.NotNil(t, snap.LargestRenderTime)
	assert.Equal(t, 200*time.Millisecond, *snap.LargestRenderTime)
	assert.Len(t, s.snapshots, 2, "one recomputation per batch")
}

func TestLayoutShiftSkipsRecentInput(t *testing.T) {
	s := newSession(t)
	s.record(
		timeline.Entry{EntryType: timeline.TypeLayoutShift, Value: 0.05},
		timeline.Entry{EntryType: timeline.TypeLayoutShift, Value: 0.5, HadRecentInput: true},
		timeline.Entry{EntryType: timeline.TypeLayoutShift, Value: 0.02},
	)
	assert.InDelta(t, 0.07, s.last(t).CumulativeLayoutShift, 1e-9)
}

func TestLongTaskIsLiveOnly(t *testing.T) {
	tl := timeline.New()
	tl.Record(timeline.Entry{EntryType: timeline.TypeLongTask, Duration: 500})
	tl.RunUntilIdle()

	agg := metrics.NewAggregator(source.Resources(tl), nil)
	source.Install(tl, agg, nil)
	tl.Record(
		timeline.Entry{EntryType: timeline.TypeLongTask, Duration: 120},
		timeline.Entry{EntryType: timeline.TypeLongTask, Duration: 50},
	)
	tl.RunUntilIdle()

	snap, ok := agg.Publisher().Latest()
	require.True(t, ok)
	assert.Equal(t, 70*time.Millisecond, snap.TotalBlockingTime)
	assert.Equal(t, int64(2), agg.LongTasks().Count)
}

func TestUnsupportedStreamIsIsolated(t *testing.T) {
	s := newSession(t, timeline.WithUnsupported(timeline.TypeLargestRender))

	var failed []source.Outcome
	for _, o := range s.outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "largest-render", failed[0].Source)
	assert.Equal(t, "unsupported", failed[0].Status())
	assert.True(t, errors.Is(failed[0].Err, source.ErrUnsupportedStream))
	assert.True(t, errors.Is(failed[0].Err, timeline.ErrUnsupportedEntryType))

	oopsErr, ok := oops.AsOops(failed[0].Err)
	require.True(t, ok)
	assert.Equal(t, "source.subscribe.unsupported", oopsErr.Code())

	s.record(
		timeline.Entry{EntryType: timeline.TypePaint, Name: "first-contentful-paint", StartTime: 150},
		timeline.Entry{EntryType: timeline.TypeLargestRender, RenderTime: 900},
		timeline.Entry{EntryType: timeline.TypeLayoutShift, Value: 0.1},
		timeline.Entry{EntryType: timeline.TypeLongTask, Duration: 90},
	)

	snap := s.last(t)
	assert.Nil(t, snap.LargestRenderTime)
	require.NotNil(t, snap.FirstContentfulPaint)
	assert.Equal(t, 150*time.Millisecond, *snap.FirstContentfulPaint)
	assert.InDelta(t, 0.1, snap.CumulativeLayoutShift, 1e-9)
	assert.Equal(t, 40*time.Millisecond, snap.TotalBlockingTime)
}

type panickingHost struct {
	panicOn timeline.EntryType
	inner   *timeline.Timeline
}

func (h panickingHost) Observe(opts timeline.ObserveOptions, cb timeline.Callback) (timeline.Subscription, error) {
	if opts.Type == h.panicOn {
		panic("observer construction failed")
	}
	return h.inner.Observe(opts, cb)
}

func TestPanickingHostIsContained(t *testing.T) {
	tl := timeline.New()
	agg := metrics.NewAggregator(source.Resources(tl), nil)

	var outcomes []source.Outcome
	require.NotPanics(t, func() {
		outcomes = source.Install(panickingHost{panicOn: timeline.TypePaint, inner: tl}, agg, nil)
	})
	require.Len(t, outcomes, 4)
	assert.False(t, outcomes[0].OK())
	assert.True(t, errors.Is(outcomes[0].Err, source.ErrUnsupportedStream))
	for _, o := range outcomes[1:] {
		assert.True(t, o.OK(), o.Source)
	}
}

func TestInstallWithoutHost(t *testing.T) {
	agg := metrics.NewAggregator(nil, nil)
	for _, o := range source.Install(nil, agg, nil) {
		assert.Equal(t, "unsupported", o.Status(), o.Source)
	}
}

func TestResourcesRereadEveryCall(t *testing.T) {
	tl := timeline.New()
	res := source.Resources(tl)
	assert.Empty(t, res.ResourceEntries())

	tl.Record(
		timeline.Entry{EntryType: timeline.TypeResource, TransferSize: 1024},
		timeline.Entry{EntryType: timeline.TypeResource, EncodedBodySize: 2048},
		timeline.Entry{EntryType: timeline.TypePaint, Name: "first-paint"},
	)
	tl.RunUntilIdle()

	entries := res.ResourceEntries()
	require.Len(t, entries, 2)
	requests, bytes := metrics.AccountResources(entries)
	assert.Equal(t, 3, requests)
	assert.Equal(t, int64(3072), bytes)

	again, _ := metrics.AccountResources(res.ResourceEntries())
	assert.Equal(t, requests, again)
}

func TestResourcesCoerceInvalidSizes(t *testing.T) {
	tl := timeline.New()
	tl.Record(timeline.Entry{EntryType: timeline.TypeResource, TransferSize: -10, EncodedBodySize: 64})
	tl.RunUntilIdle()

	entries := source.Resources(tl).ResourceEntries()
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].TransferSize)
	assert.Equal(t, int64(64), metrics.ResourceCost(entries[0]))
}

func TestOutOfRangeNumbersSaturate(t *testing.T) {
	rec, err := timeline.Decode([]byte(`[
		{"entryType":"largest-contentful-paint","renderTime":1e400},
		{"entryType":"resource","transferSize":1e400},
		{"entryType":"resource","transferSize":1e30}
	]`))
	require.NoError(t, err)

	s := newSession(t)
	for _, batch := range rec.Batches {
		s.record(batch...)
	}

	snap := s.last(t)
	require.NotNil(t, snap.LargestRenderTime)
	assert.Equal(t, time.Duration(math.MaxInt64), *snap.LargestRenderTime)

	entries := source.Resources(s.tl).ResourceEntries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, int64(math.MaxInt64), e.TransferSize)
	}
	_, bytes := metrics.AccountResources(entries)
	assert.Equal(t, int64(math.MaxInt64), bytes)
}

func TestOutcomeJSON(t *testing.T) {
	data, err := source.Outcome{Source: "long-task", Err: source.ErrUnsupportedStream}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"long-task","status":"unsupported","error":"unsupported stream"}`, string(data))
}
