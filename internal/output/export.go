package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/metrics"
)

// CompareView is the flat shape other tools read to compare page loads:
// timings in milliseconds, null when not measured.
type CompareView struct {
	FCP           *float64 `json:"fcp"`
	LCP           *float64 `json:"lcp"`
	CLS           float64  `json:"cls"`
	TBTApprox     float64  `json:"tbtApprox"`
	TotalRequests int      `json:"totalRequests"`
	TotalBytes    int64    `json:"totalBytes"`
}

// NewCompareView flattens s.
func NewCompareView(s metrics.Snapshot) CompareView {
	v := CompareView{
		CLS:           s.CumulativeLayoutShift,
		TBTApprox:     metrics.Milliseconds(s.TotalBlockingTime),
		TotalRequests: s.TotalRequests,
		TotalBytes:    s.TotalBytes,
	}
	if s.FirstContentfulPaint != nil {
		ms := metrics.Milliseconds(*s.FirstContentfulPaint)
		v.FCP = &ms
	}
	if s.LargestRenderTime != nil {
		ms := metrics.Milliseconds(*s.LargestRenderTime)
		v.LCP = &ms
	}
	return v
}

type exportDocument struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Snapshot  metrics.Snapshot `json:"snapshot"`
	Metrics   CompareView      `json:"metrics"`
}

// Exporter keeps a file holding the latest snapshot. Writers coordinate
// through an advisory lock on a sibling ".lock" file so concurrent
// pagepulse processes never interleave writes.
type Exporter struct {
	path   string
	lock   *flock.Flock
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an Exporter for path.
func NewExporter(path string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the export file path.
func (e *Exporter) Path() string { return e.path }

// Write replaces the export file with s.
func (e *Exporter) Write(s metrics.Snapshot) error {
	data, err := json.MarshalIndent(exportDocument{
		UpdatedAt: e.now().UTC(),
		Snapshot:  s,
		Metrics:   NewCompareView(s),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := e.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", e.lock.Path(), err)
	}
	defer func() {
		if err := e.lock.Unlock(); err != nil {
			e.logger.Warn("failed to release export lock", zap.String("path", e.lock.Path()), zap.Error(err))
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(e.path), filepath.Base(e.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp export file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace export file: %w", err)
	}
	return nil
}

// Handle writes s and logs failures. It satisfies metrics.Subscriber.
func (e *Exporter) Handle(s metrics.Snapshot) {
	if err := e.Write(s); err != nil {
		e.logger.Warn("snapshot export failed", zap.String("path", e.path), zap.Error(err))
	}
}

// ReadExport loads a file written by an Exporter.
func ReadExport(path string) (metrics.Snapshot, CompareView, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metrics.Snapshot{}, CompareView{}, err
	}
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return metrics.Snapshot{}, CompareView{}, fmt.Errorf("invalid export file: %w", err)
	}
	return doc.Snapshot, doc.Metrics, nil
}
