// Package source adapts the four performance entry streams of a timeline to
// the metrics Aggregator. Every adapter subscribes independently; a stream
// the host cannot provide leaves its metric unset and is reported as an
// Outcome instead of an error that could stop the other adapters.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/timeline"
)

// ErrUnsupportedStream means the host cannot observe an entry stream.
var ErrUnsupportedStream = errors.New("unsupported stream")

// Observer is the subscription half of a timeline host.
type Observer interface {
	Observe(opts timeline.ObserveOptions, cb timeline.Callback) (timeline.Subscription, error)
}

// Adapter wraps one entry stream.
type Adapter interface {
	Name() string
	Subscribe(obs Observer) error
}

// Outcome records whether an adapter managed to subscribe.
type Outcome struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

// OK reports whether the subscription succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Status is a short label for reports.
func (o Outcome) Status() string {
	if o.Err == nil {
		return "active"
	}
	if errors.Is(o.Err, ErrUnsupportedStream) {
		return "unsupported"
	}
	return "failed"
}

// MarshalJSON renders the outcome with its status and error text.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type outcomeJSON struct {
		Source string `json:"source"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	out := outcomeJSON{Source: o.Source, Status: o.Status()}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// Adapters returns the four stream adapters bound to agg.
func Adapters(agg *metrics.Aggregator, logger *zap.Logger) []Adapter {
	return []Adapter{
		NewPaint(agg, logger),
		NewLargestRender(agg, logger),
		NewLayoutShift(agg, logger),
		NewLongTask(agg, logger),
	}
}

// Install subscribes every adapter to obs. It must run on the host's event
// loop. A failing adapter never prevents the others from subscribing.
func Install(obs Observer, agg *metrics.Aggregator, logger *zap.Logger) []Outcome {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapters := Adapters(agg, logger)
	outcomes := make([]Outcome, 0, len(adapters))
	for _, a := range adapters {
		err := a.Subscribe(obs)
		if err != nil {
			logger.Debug("source unavailable", zap.String("source", a.Name()), zap.Error(err))
		}
		outcomes = append(outcomes, Outcome{Source: a.Name(), Err: err})
	}
	return outcomes
}

// subscribe calls obs.Observe, converting both refusals and panics into an
// error wrapping ErrUnsupportedStream.
func subscribe(obs Observer, opts timeline.ObserveOptions, cb timeline.Callback) (sub timeline.Subscription, err error) {
	defer func() {
		if r := recover(); r != nil {
			sub = nil
			err = oops.
				In("source").
				Code("source.subscribe.panic").
				With("entry_type", string(opts.Type)).
				Wrap(fmt.Errorf("%w: observe panicked: %v", ErrUnsupportedStream, r))
		}
	}()

	if obs == nil {
		return nil, oops.
			In("source").
			Code("source.subscribe.no_host").
			With("entry_type", string(opts.Type)).
			Wrap(ErrUnsupportedStream)
	}
	sub, err = obs.Observe(opts, cb)
	if err != nil {
		return nil, oops.
			In("source").
			Code("source.subscribe.unsupported").
			With("entry_type", string(opts.Type)).
			Wrap(fmt.Errorf("%w: %w", ErrUnsupportedStream, err))
	}
	return sub, nil
}

func recompute(agg *metrics.Aggregator) {
	agg.RecomputeAndPublish(context.Background())
}

func ms(v float64) time.Duration {
	return metrics.FromMilliseconds(v)
}

// byteCount coerces a reported size to bytes. Sizes past the int64 range
// saturate rather than wrap.
func byteCount(v float64) int64 {
	if !(v > 0) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
