package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pagepulse/internal/metrics"
)

func TestProgressReporterPrintsEverySnapshot(t *testing.T) {
	pub := metrics.NewPublisher()
	var buf bytes.Buffer
	reporter := NewProgressReporter(&buf)
	reporter.Start(pub)

	snap := metrics.Snapshot{TotalRequests: 2, TotalBytes: 2048}
	pub.Publish(snap)
	pub.Publish(snap)

	if reporter.Lines() != 2 {
		t.Fatalf("expected 2 lines, got %d", reporter.Lines())
	}

	reporter.Stop()
	pub.Publish(snap)
	if reporter.Lines() != 2 {
		t.Errorf("expected no output after Stop, got %d lines", reporter.Lines())
	}

	output := buf.String()
	if strings.Count(output, "\r") != 2 {
		t.Errorf("expected two carriage returns, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("expected Stop to end the line, got %q", output)
	}
}

func TestProgressLineFormatting(t *testing.T) {
	line := ProgressLine(metrics.Snapshot{
		FirstContentfulPaint: durationPtr(95 * time.Millisecond),
		TotalBlockingTime:    10 * time.Millisecond,
		TotalRequests:        1,
	})

	want := "FCP: 95 ms | LCP: - | CLS: - | TBT (≈): 10 ms | Requests: 1 | Total weight: -"
	if line != want {
		t.Errorf("ProgressLine() = %q, want %q", line, want)
	}
}

func TestProgressReporterStopWithoutOutput(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(&buf)
	reporter.Stop()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
