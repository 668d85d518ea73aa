package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/pagepulse/internal/metrics"
)

// Metric names accepted in budgets.
const (
	MetricFCP      = "fcp"
	MetricLCP      = "lcp"
	MetricCLS      = "cls"
	MetricTBT      = "tbt"
	MetricRequests = "requests"
	MetricBytes    = "bytes"
)

var (
	validMetrics   = []string{MetricFCP, MetricLCP, MetricCLS, MetricTBT, MetricRequests, MetricBytes}
	validOperators = []string{"<", "<=", ">", ">=", "=="}

	budgetPattern = regexp.MustCompile(`^([a-z_]+)\s*([<>=!]+)\s*([0-9]*\.?[0-9]+)$`)
)

// Threshold is a user-defined budget on one snapshot field.
type Threshold struct {
	Metric   string  // one of fcp, lcp, cls, tbt, requests, bytes
	Operator string  // e.g., "<", "<=", ">", ">=", "=="
	Value    float64 // milliseconds for timings, a score for cls, a count otherwise
	Raw      string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Available bool
	Pass      bool
	Message   string
}

// Evaluator checks budgets against snapshots.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks every budget against snap. A budget on a metric that was
// never measured fails.
func (e *Evaluator) Evaluate(snap metrics.Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, snap))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, snap metrics.Snapshot) Result {
	actual, ok := Value(t.Metric, snap)
	if !ok {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: metric unavailable", t.Raw),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	format := "%s %s: %.0f %s %.0f"
	if t.Metric == MetricCLS {
		format = "%s %s: %.3f %s %.3f"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Available: true,
		Pass:      pass,
		Message:   fmt.Sprintf(format, status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Value extracts metric from snap in budget units. The bool is false when
// the metric is unset.
func Value(metric string, snap metrics.Snapshot) (float64, bool) {
	switch metric {
	case MetricFCP:
		if snap.FirstContentfulPaint == nil {
			return 0, false
		}
		return metrics.Milliseconds(*snap.FirstContentfulPaint), true
	case MetricLCP:
		if snap.LargestRenderTime == nil {
			return 0, false
		}
		return metrics.Milliseconds(*snap.LargestRenderTime), true
	case MetricCLS:
		return snap.CumulativeLayoutShift, true
	case MetricTBT:
		return metrics.Milliseconds(snap.TotalBlockingTime), true
	case MetricRequests:
		return float64(snap.TotalRequests), true
	case MetricBytes:
		return float64(snap.TotalBytes), true
	default:
		return 0, false
	}
}

// Parse parses a budget string.
// Supported formats:
// - "fcp < 1800"        (first contentful paint in ms)
// - "lcp <= 2500"       (largest contentful render in ms)
// - "cls < 0.1"         (cumulative layout shift score)
// - "tbt < 200"         (total blocking time in ms)
// - "requests <= 60"    (request count including the document)
// - "bytes < 1500000"   (transferred bytes)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := budgetPattern.FindStringSubmatch(strings.ToLower(s))
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric operator value, e.g., 'lcp < 2500')", s)
	}

	metric := matches[1]
	operator := matches[2]
	valueStr := matches[3]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}

	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
	}

	return Threshold{
		Metric:   metric,
		Operator: operator,
		Value:    value,
		Raw:      s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
