// Package metrics aggregates page-load performance measurements into snapshots.
//
// The package holds the merge rules for every measured quantity and the
// [Aggregator] that owns a page's mutable state. Nothing outside the
// Aggregator can mutate that state; collaborators only ever see [Snapshot]
// values handed out by a [Publisher].
//
// # Merge rules
//
// Each metric has its own pure merge function, taking the current value and
// one normalized entry:
//
//   - [MergeFirstContentfulPaint]: first write wins, only for entries named
//     "first-contentful-paint".
//   - [MergeLargestRender]: last write wins, using render time, then load
//     time, then start time.
//   - [MergeLayoutShift]: accumulate, skipping shifts that followed recent
//     user input.
//   - [MergeLongTask]: accumulate the part of each task beyond 50ms.
//
// # Resource accounting
//
// Network totals are never accumulated. [AccountResources] reduces the full
// list of completed transfers on every recomputation:
//
//	requests, bytes := metrics.AccountResources(entries)
//	// requests == len(entries) + 1, counting the document itself
//
// # Recomputation
//
//	pub := metrics.NewPublisher()
//	cancel := pub.Subscribe(func(s metrics.Snapshot) { render(s) })
//	defer cancel()
//
//	agg := metrics.NewAggregator(resources, pub)
//	agg.ApplyLayoutShift(metrics.LayoutShiftEntry{Value: 0.02})
//	agg.RecomputeAndPublish(ctx)
//
// # Threading
//
// The Aggregator assumes a single-threaded host: all Apply and Recompute
// calls must come from the same event loop. The Publisher and
// LongTaskCollector may be read from any goroutine.
package metrics
