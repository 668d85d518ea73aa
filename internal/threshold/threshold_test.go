package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/pagepulse/internal/metrics"
)

func durationPtr(d time.Duration) *time.Duration { return &d }

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		FirstContentfulPaint:  durationPtr(1200 * time.Millisecond),
		LargestRenderTime:     durationPtr(2300 * time.Millisecond),
		CumulativeLayoutShift: 0.08,
		TotalBlockingTime:     150 * time.Millisecond,
		TotalRequests:         42,
		TotalBytes:            900_000,
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "lcp budget",
			input: "lcp < 2500",
			want:  Threshold{Metric: "lcp", Operator: "<", Value: 2500, Raw: "lcp < 2500"},
		},
		{
			name:  "cls with fraction",
			input: "cls <= 0.1",
			want:  Threshold{Metric: "cls", Operator: "<=", Value: 0.1, Raw: "cls <= 0.1"},
		},
		{
			name:  "no spaces",
			input: "requests>=10",
			want:  Threshold{Metric: "requests", Operator: ">=", Value: 10, Raw: "requests>=10"},
		},
		{
			name:  "upper case metric",
			input: "  TBT < 300 ",
			want:  Threshold{Metric: "tbt", Operator: "<", Value: 300, Raw: "TBT < 300"},
		},
		{
			name:      "empty string",
			input:     "",
			wantError: true,
		},
		{
			name:      "invalid format - missing operator",
			input:     "fcp 1800",
			wantError: true,
		},
		{
			name:      "invalid metric",
			input:     "ttfb < 500",
			wantError: true,
		},
		{
			name:      "invalid operator",
			input:     "fcp << 500",
			wantError: true,
		},
		{
			name:      "invalid value - not a number",
			input:     "bytes < lots",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name:      "multiple valid thresholds",
			input:     []string{"fcp < 1800", "lcp < 2500", "cls < 0.1"},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name:      "one valid, one invalid",
			input:     []string{"fcp < 1800", "invalid threshold"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestEvaluator(t *testing.T) {
	snap := sampleSnapshot()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name:       "all thresholds pass",
			thresholds: []string{"fcp < 1800", "lcp <= 2500", "cls < 0.1", "tbt < 200"},
			wantPass:   []bool{true, true, true, true},
		},
		{
			name:       "some thresholds fail",
			thresholds: []string{"fcp < 1000", "requests <= 40", "bytes < 1000000"},
			wantPass:   []bool{false, false, true},
		},
		{
			name:       "exact match",
			thresholds: []string{"requests == 42", "tbt >= 150"},
			wantPass:   []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(snap)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.3f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
			}
		})
	}
}

func TestEvaluatorUnsetMetricFails(t *testing.T) {
	snap := metrics.Snapshot{TotalRequests: 1}
	thresholds, err := ParseMultiple([]string{"lcp < 2500", "requests < 5"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}

	results := NewEvaluator(thresholds).Evaluate(snap)
	if results[0].Pass || results[0].Available {
		t.Errorf("expected unset lcp to fail as unavailable, got %+v", results[0])
	}
	if !strings.Contains(results[0].Message, "unavailable") {
		t.Errorf("unexpected message %q", results[0].Message)
	}
	if !results[1].Pass {
		t.Errorf("expected requests budget to pass, got %+v", results[1])
	}
	if AllPassed(results) {
		t.Error("AllPassed() = true, want false")
	}
}

func TestEvaluatorMessages(t *testing.T) {
	thresholds, err := ParseMultiple([]string{"cls < 0.1", "lcp < 2000"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}

	results := NewEvaluator(thresholds).Evaluate(sampleSnapshot())
	if want := "✓ cls < 0.1: 0.080 < 0.100"; results[0].Message != want {
		t.Errorf("message = %q, want %q", results[0].Message, want)
	}
	if want := "✗ lcp < 2000: 2300 < 2000"; results[1].Message != want {
		t.Errorf("message = %q, want %q", results[1].Message, want)
	}
}

func TestEvaluatorNoThresholds(t *testing.T) {
	if results := NewEvaluator(nil).Evaluate(sampleSnapshot()); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) = false, want true")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal equal", 100, "<=", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"equal with floating point precision", 0.1 + 0.2, "==", 0.3, true},
		{"unknown operator", 1, "!=", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestValue(t *testing.T) {
	snap := sampleSnapshot()

	tests := []struct {
		metric string
		want   float64
	}{
		{MetricFCP, 1200},
		{MetricLCP, 2300},
		{MetricCLS, 0.08},
		{MetricTBT, 150},
		{MetricRequests, 42},
		{MetricBytes, 900000},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got, ok := Value(tt.metric, snap)
			if !ok {
				t.Fatalf("Value(%q) unavailable", tt.metric)
			}
			if got != tt.want {
				t.Errorf("Value(%q) = %v, want %v", tt.metric, got, tt.want)
			}
		})
	}

	if _, ok := Value("ttfb", snap); ok {
		t.Error("expected unknown metric to be unavailable")
	}
}
