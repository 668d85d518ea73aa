package metrics

import (
	"sort"
	"sync"
)

// Subscriber receives every published snapshot. Subscribers run on the
// publishing goroutine and should hand work off rather than block.
type Subscriber func(Snapshot)

// Publisher fans snapshots out to subscribers and remembers the latest one.
// It is safe for concurrent use.
type Publisher struct {
	mu     sync.Mutex
	subs   map[int]Subscriber
	nextID int
	latest Snapshot
	count  int64
}

// NewPublisher creates an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]Subscriber)}
}

// Subscribe registers fn and returns a function that removes it.
func (p *Publisher) Subscribe(fn Subscriber) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Publish records s as the latest snapshot and delivers it to every
// subscriber. Unchanged snapshots are delivered as well.
func (p *Publisher) Publish(s Snapshot) {
	p.mu.Lock()
	p.latest = s
	p.count++
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	subs := make([]Subscriber, 0, len(ids))
	// Deliver in registration order.
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, p.subs[id])
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(copySnapshot(s))
	}
}

// Latest returns the most recently published snapshot. ok is false until the
// first publication.
func (p *Publisher) Latest() (s Snapshot, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return Snapshot{}, false
	}
	return copySnapshot(p.latest), true
}

// Count returns the number of snapshots published so far.
func (p *Publisher) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func copySnapshot(s Snapshot) Snapshot {
	s.FirstContentfulPaint = cloneDuration(s.FirstContentfulPaint)
	s.LargestRenderTime = cloneDuration(s.LargestRenderTime)
	return s
}
