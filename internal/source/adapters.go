package source

import (
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/timeline"
)

type paintState int

const (
	paintListening paintState = iota
	paintDone
)

// Paint captures first contentful paint from the buffered paint stream and
// disconnects once it has.
type Paint struct {
	agg    *metrics.Aggregator
	logger *zap.Logger
	sub    timeline.Subscription
	state  paintState
}

// NewPaint creates a Paint adapter.
func NewPaint(agg *metrics.Aggregator, logger *zap.Logger) *Paint {
	return &Paint{agg: agg, logger: orNop(logger)}
}

func (p *Paint) Name() string { return "paint" }

// Done reports whether first contentful paint has been captured.
func (p *Paint) Done() bool { return p.state == paintDone }

func (p *Paint) Subscribe(obs Observer) error {
	sub, err := subscribe(obs, timeline.ObserveOptions{Type: timeline.TypePaint, Buffered: true}, p.handle)
	if err != nil {
		return err
	}
	p.sub = sub
	return nil
}

func (p *Paint) handle(batch []timeline.Entry) {
	if p.state == paintDone {
		return
	}
	for _, e := range batch {
		if e.Name != metrics.FirstContentfulPaintName {
			continue
		}
		captured := p.agg.ApplyPaint(metrics.PaintEntry{Name: e.Name, StartTime: ms(e.StartTime)})
		p.state = paintDone
		if p.sub != nil {
			p.sub.Disconnect()
		}
		p.logger.Debug("first contentful paint captured", zap.Float64("start_time_ms", e.StartTime), zap.Bool("applied", captured))
		recompute(p.agg)
		return
	}
}

// LargestRender follows largest contentful paint candidates; the latest
// delivered candidate wins.
type LargestRender struct {
	agg    *metrics.Aggregator
	logger *zap.Logger
}

// NewLargestRender creates a LargestRender adapter.
func NewLargestRender(agg *metrics.Aggregator, logger *zap.Logger) *LargestRender {
	return &LargestRender{agg: agg, logger: orNop(logger)}
}

func (l *LargestRender) Name() string { return "largest-render" }

func (l *LargestRender) Subscribe(obs Observer) error {
	_, err := subscribe(obs, timeline.ObserveOptions{Type: timeline.TypeLargestRender, Buffered: true}, l.handle)
	return err
}

func (l *LargestRender) handle(batch []timeline.Entry) {
	for _, e := range batch {
		l.agg.ApplyLargestRender(metrics.LargestRenderEntry{
			RenderTime: ms(e.RenderTime),
			LoadTime:   ms(e.LoadTime),
			StartTime:  ms(e.StartTime),
		})
	}
	l.logger.Debug("largest render batch", zap.Int("entries", len(batch)))
	recompute(l.agg)
}

// LayoutShift accumulates layout shift scores not caused by user input.
type LayoutShift struct {
	agg    *metrics.Aggregator
	logger *zap.Logger
}

// NewLayoutShift creates a LayoutShift adapter.
func NewLayoutShift(agg *metrics.Aggregator, logger *zap.Logger) *LayoutShift {
	return &LayoutShift{agg: agg, logger: orNop(logger)}
}

func (l *LayoutShift) Name() string { return "layout-shift" }

func (l *LayoutShift) Subscribe(obs Observer) error {
	_, err := subscribe(obs, timeline.ObserveOptions{Type: timeline.TypeLayoutShift, Buffered: true}, l.handle)
	return err
}

func (l *LayoutShift) handle(batch []timeline.Entry) {
	for _, e := range batch {
		l.agg.ApplyLayoutShift(metrics.LayoutShiftEntry{Value: e.Value, HadRecentInput: e.HadRecentInput})
	}
	l.logger.Debug("layout shift batch", zap.Int("entries", len(batch)))
	recompute(l.agg)
}

// LongTask adds main-thread blocking time from the live long task stream.
// Tasks recorded before it subscribed are not seen.
type LongTask struct {
	agg    *metrics.Aggregator
	logger *zap.Logger
}

// NewLongTask creates a LongTask adapter.
func NewLongTask(agg *metrics.Aggregator, logger *zap.Logger) *LongTask {
	return &LongTask{agg: agg, logger: orNop(logger)}
}

func (l *LongTask) Name() string { return "long-task" }

func (l *LongTask) Subscribe(obs Observer) error {
	_, err := subscribe(obs, timeline.ObserveOptions{Type: timeline.TypeLongTask}, l.handle)
	return err
}

func (l *LongTask) handle(batch []timeline.Entry) {
	for _, e := range batch {
		l.agg.ApplyLongTask(metrics.LongTaskEntry{Duration: ms(e.Duration)})
	}
	l.logger.Debug("long task batch", zap.Int("entries", len(batch)))
	recompute(l.agg)
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
