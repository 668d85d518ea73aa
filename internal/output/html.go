package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/pagepulse/internal/source"
)

// HTMLPanelData contains all data needed for the HTML panel template.
type HTMLPanelData struct {
	Title            string
	GeneratedAt      string
	Tiles            []Tile
	Sources          []source.Outcome
	ThresholdSummary *ThresholdSummary
	Report           Report
}

// GenerateHTMLPanel writes a standalone HTML page showing the snapshot of r
// the way the in-page panel lays it out.
func GenerateHTMLPanel(w io.Writer, title string, r Report) error {
	if title == "" {
		title = "Page performance"
	}
	data := HTMLPanelData{
		Title:            title,
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Tiles:            Tiles(r.Snapshot),
		Sources:          r.Sources,
		ThresholdSummary: summarizeThresholds(r.Thresholds),
		Report:           r,
	}

	tmpl, err := template.New("panel").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: ui-sans-serif, system-ui, -apple-system, 'Segoe UI', Roboto, Arial, sans-serif;
            background: #0a0c1c;
            color: #e8ecf1;
            margin: 0;
            padding: 24px;
        }
        .panel {
            width: 320px;
            max-width: 90vw;
            background: rgba(10, 12, 28, .9);
            border: 1px solid rgba(255, 255, 255, .12);
            border-radius: 12px;
            box-shadow: 0 10px 40px rgba(0, 0, 0, .5);
            padding: 12px 14px;
        }
        .panel header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 8px;
        }
        .tiles {
            display: grid;
            grid-template-columns: 1fr 1fr;
            gap: 8px;
            font-size: 13px;
        }
        .label { opacity: .8; }
        .value { font-weight: 600; }
        .note { margin-top: 8px; font-size: 12px; opacity: .8; }
        table { margin-top: 10px; font-size: 12px; border-collapse: collapse; width: 100%; }
        td { padding: 2px 4px; }
        .pass { color: #3fb950; }
        .fail { color: #f85149; }
        .muted { opacity: .6; }
    </style>
</head>
<body>
    <div class="panel">
        <header>
            <strong>{{.Title}}</strong>
            <span class="muted">{{.Report.Published}} snapshots</span>
        </header>
        <div class="tiles">
            {{range .Tiles}}
            <div id="m-{{.Key}}"><div class="label">{{.Label}}</div><div class="value">{{.Value}}</div></div>
            {{end}}
        </div>
        {{if .Sources}}
        <table>
            {{range .Sources}}
            <tr><td>{{.Source}}</td><td class="{{if .OK}}pass{{else}}muted{{end}}">{{.Status}}</td></tr>
            {{end}}
        </table>
        {{end}}
        {{if .Report.LongTasks.Count}}
        <div class="note">
            Long tasks: {{.Report.LongTasks.Count}}, longest {{formatDuration .Report.LongTasks.Longest}}, p90 {{formatDuration .Report.LongTasks.P90}}
        </div>
        {{end}}
        {{if .ThresholdSummary}}
        <table>
            <tr><td colspan="3"><strong>Budgets ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} passed)</strong></td></tr>
            {{range .ThresholdSummary.Results}}
            <tr>
                <td>{{.Threshold}}</td>
                <td>{{if .Available}}{{formatFloat .Actual}}{{else}}-{{end}}</td>
                <td class="{{if .Pass}}pass{{else}}fail{{end}}">{{if .Pass}}✓ PASS{{else}}✗ FAIL{{end}}</td>
            </tr>
            {{end}}
        </table>
        {{end}}
        <div class="note">Generated {{.GeneratedAt}}</div>
    </div>
</body>
</html>
`
