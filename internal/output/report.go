package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/source"
	"github.com/torosent/pagepulse/internal/threshold"
)

// Report is everything known about one page session when it is printed.
type Report struct {
	Snapshot   metrics.Snapshot
	LongTasks  metrics.LongTaskStats
	Sources    []source.Outcome
	Thresholds []threshold.Result
	Published  int64
}

// ThresholdSummary counts passed and failed budgets.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

// ThresholdResultJSON is one budget outcome in JSON reports.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Available bool    `json:"available"`
	Pass      bool    `json:"pass"`
}

// summarizeThresholds returns nil when there are no results.
func summarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Available: tr.Available,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintln(w, "\n--- Page Load Metrics ---")
	for _, tile := range Tiles(r.Snapshot) {
		fmt.Fprintf(w, "%-19s%s\n", tile.Label+":", tile.Value)
	}
	fmt.Fprintf(w, "Snapshots:         %d\n", r.Published)

	if len(r.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, o := range r.Sources {
			fmt.Fprintf(w, "  %-16s%s\n", o.Source, o.Status())
		}
	}

	if r.LongTasks.Count > 0 {
		lt := r.LongTasks
		fmt.Fprintln(w, "\nLong Tasks:")
		fmt.Fprintf(w, "  Count:           %d\n", lt.Count)
		fmt.Fprintf(w, "  Longest:         %s\n", lt.Longest.Round(time.Millisecond))
		fmt.Fprintf(w, "  Mean:            %s\n", lt.Mean.Round(time.Millisecond))
		fmt.Fprintf(w, "  P50:             %s\n", lt.P50.Round(time.Millisecond))
		fmt.Fprintf(w, "  P90:             %s\n", lt.P90.Round(time.Millisecond))
		fmt.Fprintf(w, "  P99:             %s\n", lt.P99.Round(time.Millisecond))
	}

	if summary := summarizeThresholds(r.Thresholds); summary != nil {
		fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", summary.Passed, summary.Total)
		for _, tr := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", tr.Message)
		}
	}
}

type jsonReport struct {
	Snapshot   metrics.Snapshot      `json:"snapshot"`
	Published  int64                 `json:"snapshots_published"`
	Sources    []source.Outcome      `json:"sources,omitempty"`
	LongTasks  metrics.LongTaskStats `json:"long_tasks"`
	Thresholds *ThresholdSummary     `json:"thresholds,omitempty"`
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Snapshot:   r.Snapshot,
		Published:  r.Published,
		Sources:    r.Sources,
		LongTasks:  r.LongTasks,
		Thresholds: summarizeThresholds(r.Thresholds),
	})
}
