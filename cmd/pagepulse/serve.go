package main

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/config"
	"github.com/torosent/pagepulse/internal/ingest"
	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/output"
)

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, tracer trace.Tracer) error {
	opts := ingest.Options{
		MaxMessageBytes: cfg.Ingest.MaxMessageBytes,
		Rate:            cfg.Ingest.Rate,
		Burst:           cfg.Ingest.Burst,
		AllowedOrigins:  cfg.Ingest.AllowedOrigins,
		PingInterval:    cfg.Ingest.PingInterval,
		Logger:          logger,
		Tracer:          tracer,
	}
	if cfg.Export != "" {
		exporter := newSessionExporter(cfg.Export, logger)
		opts.OnSnapshot = exporter.Handle
		opts.OnSessionClosed = exporter.Close
	}

	srv := ingest.NewServer(opts)
	return srv.ListenAndServe(ctx, cfg.Listen)
}

// sessionExporter writes each session's snapshots to its own file next to
// the configured export path: "metrics.json" becomes
// "metrics-<session>.json".
type sessionExporter struct {
	base   string
	logger *zap.Logger

	mu        sync.Mutex
	exporters map[string]*output.Exporter
}

func newSessionExporter(base string, logger *zap.Logger) *sessionExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionExporter{
		base:      base,
		logger:    logger,
		exporters: make(map[string]*output.Exporter),
	}
}

func (e *sessionExporter) Handle(sessionID string, s metrics.Snapshot) {
	e.mu.Lock()
	exp, ok := e.exporters[sessionID]
	if !ok {
		exp = output.NewExporter(sessionExportPath(e.base, sessionID), e.logger.With(zap.String("session", sessionID)))
		e.exporters[sessionID] = exp
	}
	e.mu.Unlock()
	exp.Handle(s)
}

// Close forgets a finished session. Its export file stays on disk.
func (e *sessionExporter) Close(sessionID string) {
	e.mu.Lock()
	delete(e.exporters, sessionID)
	e.mu.Unlock()
}

func (e *sessionExporter) openSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.exporters)
}

func sessionExportPath(base, sessionID string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + sessionID + ext
}
