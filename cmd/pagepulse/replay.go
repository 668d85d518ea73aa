package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/config"
	"github.com/torosent/pagepulse/internal/dashboard"
	"github.com/torosent/pagepulse/internal/har"
	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/monitor"
	"github.com/torosent/pagepulse/internal/output"
	"github.com/torosent/pagepulse/internal/threshold"
	"github.com/torosent/pagepulse/internal/timeline"
	"github.com/torosent/pagepulse/internal/tracing"
)

func replay(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *zap.Logger, tracer trace.Tracer) (err error) {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	rec, err := loadRecording(cfg)
	if err != nil {
		return err
	}
	unsupported, err := unsupportedTypes(cfg.Unsupported)
	if err != nil {
		return err
	}
	rec.Unsupported = append(rec.Unsupported, unsupported...)

	input := inputName(cfg)
	ctx, span := tracing.StartReplaySpan(ctx, tracer, input)
	published := int64(0)
	defer func() {
		tracing.EndSpan(span, err, attribute.Int64("pagepulse.snapshots", published))
	}()

	tl := timeline.New(timeline.WithUnsupported(rec.Unsupported...), timeline.WithLogger(logger))
	defer tl.Close()
	mon := monitor.New(tl, monitor.WithLogger(logger), monitor.WithTracer(tracer))

	if cfg.Export != "" {
		exporter := output.NewExporter(cfg.Export, logger)
		unsubscribe := mon.Subscribe(exporter.Handle)
		defer unsubscribe()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(stdout)
		progress.Start(mon)
	}

	// q on the dashboard ends the replay as well as the panel.
	runCtx, stopDash := context.WithCancel(ctx)
	defer stopDash()
	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(mon, dashboard.PanelConfig{
			Title:      input,
			Mode:       string(config.ModeReplay),
			ConfigFile: cfg.ConfigFile,
		}, stopDash)
		if err != nil {
			return err
		}
		dash.Start()
	}

	mon.Start(ctx)
	logger.Info("replaying recording",
		zap.String("input", input),
		zap.Int("batches", len(rec.Batches)),
		zap.Float64("speed", cfg.Speed),
	)
	pl := &player{tl: tl, mon: mon, speed: cfg.Speed, sleep: sleepContext}
	if err := pl.play(runCtx, rec); err != nil {
		logger.Warn("replay interrupted, reporting partial results", zap.Error(err))
	}

	if dash != nil {
		// Keep serving refreshes until the user quits.
		_ = tl.Run(runCtx)
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}

	snap, _ := mon.Latest()
	published = mon.Published()
	report := output.Report{
		Snapshot:  snap,
		LongTasks: mon.LongTasks(),
		Sources:   mon.Outcomes(),
		Published: published,
	}
	if len(thresholds) > 0 {
		report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(snap)
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTMLPanel(cfg.HTMLOutput, input, report); err != nil {
			return err
		}
		logger.Info("wrote HTML panel", zap.String("path", cfg.HTMLOutput))
	}

	if !threshold.AllPassed(report.Thresholds) {
		failed := 0
		for _, r := range report.Thresholds {
			if !r.Pass {
				failed++
			}
		}
		return fmt.Errorf("%d of %d thresholds failed", failed, len(report.Thresholds))
	}
	return nil
}

// player feeds a recording into a timeline, draining the loop after every
// step so each batch is observed before the next one arrives.
type player struct {
	tl    *timeline.Timeline
	mon   *monitor.Monitor
	speed float64
	sleep func(context.Context, time.Duration) error
}

// play delivers the batches before the load event, dispatches load, then
// delivers the rest. A final refresh reports entries that arrived after
// load. If ctx ends early the refresh still runs, so what was delivered is
// reported.
func (p *player) play(ctx context.Context, rec timeline.Recording) error {
	defer func() {
		p.mon.Refresh()
		p.tl.RunUntilIdle()
	}()

	// Adapter installation.
	p.tl.RunUntilIdle()

	before, after := rec.SplitAtLoad()
	last := 0.0
	for _, batch := range before {
		if len(batch) == 0 {
			continue
		}
		if err := p.wait(ctx, &last, batch[0].StartTime); err != nil {
			return err
		}
		p.tl.Record(batch...)
		p.tl.RunUntilIdle()
	}

	if err := p.wait(ctx, &last, rec.LoadEventEnd); err != nil {
		return err
	}
	p.tl.DispatchLoad()
	p.tl.RunUntilIdle()

	for _, batch := range after {
		if len(batch) == 0 {
			continue
		}
		if err := p.wait(ctx, &last, batch[0].StartTime); err != nil {
			return err
		}
		p.tl.Record(batch...)
		p.tl.RunUntilIdle()
	}
	return nil
}

// wait sleeps for the recorded gap between last and at, scaled by speed.
// Speed zero never sleeps.
func (p *player) wait(ctx context.Context, last *float64, at float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gap := at - *last
	if at > *last {
		*last = at
	}
	if p.speed <= 0 || gap <= 0 {
		return nil
	}
	return p.sleep(ctx, time.Duration(float64(metrics.FromMilliseconds(gap))/p.speed))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// loadRecording reads the timeline and HAR inputs and merges them into one
// recording.
func loadRecording(cfg *config.Config) (timeline.Recording, error) {
	var recs []timeline.Recording
	if cfg.TimelineFile != "" {
		rec, err := timeline.LoadFile(cfg.TimelineFile)
		if err != nil {
			return timeline.Recording{}, err
		}
		recs = append(recs, rec)
	}
	if cfg.HARFile != "" {
		archive, err := har.ParseFile(cfg.HARFile)
		if err != nil {
			return timeline.Recording{}, fmt.Errorf("failed to parse HAR file: %w", err)
		}
		opts := har.DefaultOptions()
		opts.IncludeDocument = cfg.HARIncludeDocument
		rec, err := har.Recording(archive, opts)
		if err != nil {
			return timeline.Recording{}, fmt.Errorf("failed to convert HAR: %w", err)
		}
		recs = append(recs, rec)
	}
	return mergeRecordings(recs...), nil
}

// mergeRecordings interleaves the batches of recs by start time. The first
// recording with a load time decides it; unsupported types are unioned.
func mergeRecordings(recs ...timeline.Recording) timeline.Recording {
	var merged timeline.Recording
	seen := make(map[timeline.EntryType]bool)
	for _, rec := range recs {
		for _, batch := range rec.Batches {
			if len(batch) > 0 {
				merged.Batches = append(merged.Batches, batch)
			}
		}
		if merged.LoadEventEnd <= 0 {
			merged.LoadEventEnd = rec.LoadEventEnd
		}
		for _, typ := range rec.Unsupported {
			if !seen[typ] {
				seen[typ] = true
				merged.Unsupported = append(merged.Unsupported, typ)
			}
		}
	}
	if len(recs) > 1 {
		sort.SliceStable(merged.Batches, func(i, j int) bool {
			return merged.Batches[i][0].StartTime < merged.Batches[j][0].StartTime
		})
	}
	return merged
}

func unsupportedTypes(names []string) ([]timeline.EntryType, error) {
	types := make([]timeline.EntryType, 0, len(names))
	for _, name := range names {
		typ, ok := timeline.ParseEntryType(name)
		if !ok {
			return nil, fmt.Errorf("unknown entry type %q in unsupported", name)
		}
		types = append(types, typ)
	}
	return types, nil
}

func inputName(cfg *config.Config) string {
	var parts []string
	for _, p := range []string{cfg.TimelineFile, cfg.HARFile} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " + ")
}

func writeHTMLPanel(path, title string, report output.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create HTML panel: %w", err)
	}
	if err := output.GenerateHTMLPanel(f, title, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
