package output

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/torosent/pagepulse/internal/metrics"
)

func TestExporterWritesLatestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	exp := NewExporter(path, nil)
	exp.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	first := metrics.Snapshot{TotalRequests: 1}
	second := metrics.Snapshot{
		FirstContentfulPaint: durationPtr(120 * time.Millisecond),
		TotalBlockingTime:    30 * time.Millisecond,
		TotalRequests:        3,
		TotalBytes:           3072,
	}
	if err := exp.Write(first); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	exp.Handle(second)

	snap, view, err := ReadExport(path)
	if err != nil {
		t.Fatalf("ReadExport() error = %v", err)
	}
	if snap.TotalRequests != 3 || snap.TotalBytes != 3072 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if view.FCP == nil || *view.FCP != 120 {
		t.Errorf("unexpected compare fcp %v", view.FCP)
	}
	if view.LCP != nil {
		t.Errorf("expected null lcp, got %v", *view.LCP)
	}
	if view.TBTApprox != 30 {
		t.Errorf("expected tbtApprox 30, got %v", view.TBTApprox)
	}

	leftovers, _ := filepath.Glob(path + ".*.tmp")
	if len(leftovers) != 0 {
		t.Errorf("expected temp files to be cleaned up, got %v", leftovers)
	}
}

func TestExporterConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	a := NewExporter(path, nil)
	b := NewExporter(path, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			a.Handle(metrics.Snapshot{TotalRequests: n + 1})
		}(i)
		go func(n int) {
			defer wg.Done()
			b.Handle(metrics.Snapshot{TotalRequests: n + 100})
		}(i)
	}
	wg.Wait()

	if _, _, err := ReadExport(path); err != nil {
		t.Fatalf("export file corrupted: %v", err)
	}
}

func TestExporterMissingDirectory(t *testing.T) {
	exp := NewExporter(filepath.Join(t.TempDir(), "missing", "metrics.json"), nil)
	if err := exp.Write(metrics.Snapshot{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestReadExportInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadExport(path); err == nil {
		t.Fatal("expected error for invalid export")
	}
}
