package timeline

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/oops"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedEntryType is returned by Observe for entry types the
	// timeline cannot produce.
	ErrUnsupportedEntryType = errors.New("unsupported entry type")
	// ErrClosed is returned by Observe after Close.
	ErrClosed = errors.New("timeline closed")
)

// Callback receives one batch of entries of a single type.
type Callback func([]Entry)

// ObserveOptions selects the stream to observe. Buffered observers first
// receive every entry recorded before they subscribed.
type ObserveOptions struct {
	Type     EntryType
	Buffered bool
}

// Subscription is a live observation. Disconnect is idempotent; no callback
// runs after it returns.
type Subscription interface {
	Disconnect()
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithUnsupported marks entry types as unavailable, as an older browser would.
func WithUnsupported(types ...EntryType) Option {
	return func(t *Timeline) {
		for _, typ := range types {
			delete(t.supported, typ)
		}
	}
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(l *zap.Logger) Option {
	return func(t *Timeline) {
		if l != nil {
			t.logger = l
		}
	}
}

// Timeline is a single-threaded event loop that owns recorded entries and
// their observers. Post, Record, DispatchLoad and Close are safe to call
// from any goroutine; tasks and callbacks only ever run inside Run or
// RunUntilIdle, which must not be called concurrently.
type Timeline struct {
	mu        sync.Mutex
	tasks     []func()
	wake      chan struct{}
	supported map[EntryType]bool
	buffer    map[EntryType][]Entry
	observers map[EntryType][]*observer
	onLoad    []func()
	loaded    bool
	closed    bool
	logger    *zap.Logger
}

// New creates a Timeline supporting every known entry type.
func New(opts ...Option) *Timeline {
	t := &Timeline{
		wake:      make(chan struct{}, 1),
		supported: make(map[EntryType]bool, len(KnownTypes)),
		buffer:    make(map[EntryType][]Entry),
		observers: make(map[EntryType][]*observer),
		logger:    zap.NewNop(),
	}
	for _, typ := range KnownTypes {
		t.supported[typ] = true
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Supports reports whether typ can be observed.
func (t *Timeline) Supports(typ EntryType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supported[typ]
}

// Post queues fn to run on a later turn of the loop.
func (t *Timeline) Post(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.tasks = append(t.tasks, fn)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run executes queued tasks until ctx is done.
func (t *Timeline) Run(ctx context.Context) error {
	for {
		t.RunUntilIdle()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.wake:
		}
	}
}

// RunUntilIdle executes queued tasks on the calling goroutine, including
// tasks they post, until the queue is empty. It returns the number of tasks
// run.
func (t *Timeline) RunUntilIdle() int {
	n := 0
	for {
		fn := t.next()
		if fn == nil {
			return n
		}
		t.runTask(fn)
		n++
	}
}

// Pending returns the number of queued tasks.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Record queues entries for delivery. Entries of unsupported types are
// dropped. Each call delivers one batch per entry type to every observer.
func (t *Timeline) Record(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	batch := make([]Entry, len(entries))
	copy(batch, entries)
	t.Post(func() { t.deliver(batch) })
}

// Observe subscribes cb to the stream selected by opts. Buffered replay is
// delivered on a later turn, never from inside Observe. Batches recorded
// before the replay runs are held back until it has been delivered, so the
// observer sees its stream in recorded order.
func (t *Timeline) Observe(opts ObserveOptions, cb Callback) (Subscription, error) {
	if cb == nil {
		return nil, oops.In("timeline").Errorf("nil callback for %q", opts.Type)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if !t.supported[opts.Type] {
		t.mu.Unlock()
		return nil, oops.
			In("timeline").
			Code("timeline.observe.unsupported").
			With("entry_type", string(opts.Type)).
			Wrap(ErrUnsupportedEntryType)
	}

	o := &observer{timeline: t, typ: opts.Type, cb: cb, active: true}
	t.observers[opts.Type] = append(t.observers[opts.Type], o)
	var replay []Entry
	if opts.Buffered && len(t.buffer[opts.Type]) > 0 {
		replay = make([]Entry, len(t.buffer[opts.Type]))
		copy(replay, t.buffer[opts.Type])
		o.replaying = true
	}
	t.mu.Unlock()

	if replay != nil {
		t.Post(func() { o.replay(replay) })
	}
	return o, nil
}

// EntriesByType returns a copy of every recorded entry of typ.
func (t *Timeline) EntriesByType(typ EntryType) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.buffer[typ]
	if len(src) == 0 {
		return nil
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// OnLoad registers fn to run when the page load completes. Handlers
// registered after load are queued immediately.
func (t *Timeline) OnLoad(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if t.loaded {
		t.mu.Unlock()
		t.Post(fn)
		return
	}
	t.onLoad = append(t.onLoad, fn)
	t.mu.Unlock()
}

// DispatchLoad queues the load event. Only the first call has an effect.
func (t *Timeline) DispatchLoad() {
	t.Post(func() {
		t.mu.Lock()
		if t.loaded {
			t.mu.Unlock()
			return
		}
		t.loaded = true
		handlers := t.onLoad
		t.onLoad = nil
		t.mu.Unlock()

		for _, fn := range handlers {
			t.runTask(fn)
		}
	})
}

// Loaded reports whether the load event has run.
func (t *Timeline) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// Close drops queued tasks and ends every subscription.
func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.tasks = nil
	for typ, list := range t.observers {
		for _, o := range list {
			o.active = false
			o.held = nil
		}
		delete(t.observers, typ)
	}
}

func (t *Timeline) next() func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.tasks) == 0 {
		return nil
	}
	fn := t.tasks[0]
	t.tasks[0] = nil
	t.tasks = t.tasks[1:]
	return fn
}

func (t *Timeline) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("timeline task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func (t *Timeline) deliver(entries []Entry) {
	t.mu.Lock()
	var order []EntryType
	grouped := make(map[EntryType][]Entry)
	for _, e := range entries {
		if !t.supported[e.EntryType] {
			continue
		}
		if _, seen := grouped[e.EntryType]; !seen {
			order = append(order, e.EntryType)
		}
		grouped[e.EntryType] = append(grouped[e.EntryType], e)
		t.buffer[e.EntryType] = append(t.buffer[e.EntryType], e)
	}
	targets := make(map[EntryType][]*observer, len(order))
	for _, typ := range order {
		for _, o := range t.observers[typ] {
			if o.replaying {
				o.held = append(o.held, grouped[typ])
				continue
			}
			targets[typ] = append(targets[typ], o)
		}
	}
	t.mu.Unlock()

	for _, typ := range order {
		for _, o := range targets[typ] {
			o.deliver(grouped[typ])
		}
	}
}

type observer struct {
	timeline *Timeline
	typ      EntryType
	cb       Callback
	active   bool

	// replaying is set until the buffered history has been delivered; live
	// batches arriving meanwhile wait in held.
	replaying bool
	held      [][]Entry
}

func (o *observer) isActive() bool {
	o.timeline.mu.Lock()
	defer o.timeline.mu.Unlock()
	return o.active
}

func (o *observer) deliver(entries []Entry) {
	if !o.isActive() {
		return
	}
	batch := make([]Entry, len(entries))
	copy(batch, entries)
	o.timeline.runTask(func() { o.cb(batch) })
}

// replay delivers history, then every batch held back behind it.
func (o *observer) replay(history []Entry) {
	o.deliver(history)
	for {
		t := o.timeline
		t.mu.Lock()
		if len(o.held) == 0 {
			o.replaying = false
			t.mu.Unlock()
			return
		}
		batch := o.held[0]
		o.held[0] = nil
		o.held = o.held[1:]
		t.mu.Unlock()
		o.deliver(batch)
	}
}

// Disconnect implements Subscription.
func (o *observer) Disconnect() {
	t := o.timeline
	t.mu.Lock()
	defer t.mu.Unlock()
	if !o.active {
		return
	}
	o.active = false
	o.held = nil
	list := t.observers[o.typ]
	for i, candidate := range list {
		if candidate == o {
			t.observers[o.typ] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}
