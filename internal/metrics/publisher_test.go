package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/torosent/pagepulse/internal/metrics"
)

func TestPublisherDeliversIdenticalSnapshots(t *testing.T) {
	pub := metrics.NewPublisher()
	var got []metrics.Snapshot
	pub.Subscribe(func(s metrics.Snapshot) { got = append(got, s) })

	snap := metrics.Snapshot{TotalRequests: 1}
	pub.Publish(snap)
	pub.Publish(snap)

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if pub.Count() != 2 {
		t.Errorf("expected count 2, got %d", pub.Count())
	}
}

func TestPublisherCancel(t *testing.T) {
	pub := metrics.NewPublisher()
	calls := 0
	cancel := pub.Subscribe(func(metrics.Snapshot) { calls++ })

	pub.Publish(metrics.Snapshot{})
	cancel()
	cancel()
	pub.Publish(metrics.Snapshot{})

	if calls != 1 {
		t.Errorf("expected 1 call before cancel, got %d", calls)
	}
}

func TestPublisherLatest(t *testing.T) {
	pub := metrics.NewPublisher()
	if _, ok := pub.Latest(); ok {
		t.Fatal("expected no snapshot before first publish")
	}

	fcp := 100 * time.Millisecond
	pub.Publish(metrics.Snapshot{FirstContentfulPaint: &fcp, TotalRequests: 2})
	fcp = time.Hour

	latest, ok := pub.Latest()
	if !ok {
		t.Fatal("expected a snapshot after publish")
	}
	if latest.TotalRequests != 2 {
		t.Errorf("expected 2 requests, got %d", latest.TotalRequests)
	}
	*latest.FirstContentfulPaint = time.Minute
	again, _ := pub.Latest()
	if *again.FirstContentfulPaint == time.Minute {
		t.Error("Latest returned an aliased snapshot")
	}
}

func TestPublisherSubscribersGetCopies(t *testing.T) {
	pub := metrics.NewPublisher()
	var first, second metrics.Snapshot
	pub.Subscribe(func(s metrics.Snapshot) { first = s })
	pub.Subscribe(func(s metrics.Snapshot) { second = s })

	lcp := 300 * time.Millisecond
	pub.Publish(metrics.Snapshot{LargestRenderTime: &lcp})

	*first.LargestRenderTime = 0
	if *second.LargestRenderTime != lcp {
		t.Errorf("subscribers share a snapshot: second saw %s", *second.LargestRenderTime)
	}
}

func TestPublisherConcurrentSubscribe(t *testing.T) {
	pub := metrics.NewPublisher()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel := pub.Subscribe(func(metrics.Snapshot) {})
			pub.Publish(metrics.Snapshot{})
			cancel()
		}()
	}
	wg.Wait()

	if pub.Count() != 10 {
		t.Errorf("expected 10 publications, got %d", pub.Count())
	}
}
