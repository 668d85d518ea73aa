package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/output"
	"github.com/torosent/pagepulse/internal/source"
)

// Source is the page session the dashboard shows.
type Source interface {
	Subscribe(fn metrics.Subscriber) (cancel func())
	Latest() (metrics.Snapshot, bool)
	Published() int64
	Refresh()
	Outcomes() []source.Outcome
	LongTasks() metrics.LongTaskStats
}

// PanelConfig holds what the header line shows.
type PanelConfig struct {
	Title      string // page or recording being measured
	Mode       string // replay or live
	ConfigFile string // Path to config file if used
}

const historySize = 100

// Dashboard renders a live terminal panel for one page session.
type Dashboard struct {
	src          Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	unsubscribe  func()
	updates      chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid        *ui.Grid
	tiles       []*widgets.Paragraph
	summaryPara *widgets.Paragraph
	sourceList  *widgets.List
	tasksPara   *widgets.Paragraph
	tbtSparkle  *widgets.SparklineGroup
	tbtHistory  []float64
	startTime   time.Time
	config      PanelConfig
}

// New initializes the terminal and creates a Dashboard for src.
// shutdownFunc runs when the user asks to quit.
func New(src Source, cfg PanelConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(src, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(src Source, cfg PanelConfig, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		src:          src,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		updates:      make(chan struct{}, 1),
		tbtHistory:   make([]float64, 0, historySize),
		startTime:    time.Now(),
		config:       cfg,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	for _, tile := range output.Tiles(metrics.Snapshot{}) {
		p := widgets.NewParagraph()
		p.Title = tile.Label
		p.Text = tile.Value
		p.TextStyle = ui.NewStyle(ui.ColorWhite, ui.ColorClear, ui.ModifierBold)
		p.BorderStyle.Fg = ui.ColorMagenta
		d.tiles = append(d.tiles, p)
	}

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Page Performance"
	d.summaryPara.Text = "Waiting for the first snapshot..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.sourceList = widgets.NewList()
	d.sourceList.Title = "Sources"
	d.sourceList.Rows = []string{"Subscribing..."}
	d.sourceList.BorderStyle.Fg = ui.ColorCyan

	d.tasksPara = widgets.NewParagraph()
	d.tasksPara.Title = "Long Tasks"
	d.tasksPara.Text = "[No long tasks](fg:green)"
	d.tasksPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "TBT (ms)"
	sparkline.LineColor = ui.ColorYellow
	sparkline.Data = []float64{0}

	d.tbtSparkle = widgets.NewSparklineGroup(sparkline)
	d.tbtSparkle.Title = "Blocking Time per Snapshot"
	d.tbtSparkle.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.17,
			ui.NewCol(1.0/3, d.tiles[0]),
			ui.NewCol(1.0/3, d.tiles[1]),
			ui.NewCol(1.0/3, d.tiles[2]),
		),
		ui.NewRow(0.17,
			ui.NewCol(1.0/3, d.tiles[3]),
			ui.NewCol(1.0/3, d.tiles[4]),
			ui.NewCol(1.0/3, d.tiles[5]),
		),
		ui.NewRow(0.25,
			ui.NewCol(0.65, d.tbtSparkle),
			ui.NewCol(0.35, d.tasksPara),
		),
		ui.NewRow(0.25,
			ui.NewCol(1.0, d.sourceList),
		),
	)
}

// Start subscribes to the session and begins the update loop.
func (d *Dashboard) Start() {
	d.unsubscribe = d.src.Subscribe(func(metrics.Snapshot) {
		select {
		case d.updates <- struct{}{}:
		default:
		}
	})
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			if d.handleKey(e.ID) {
				continue
			}
			if e.ID == "<Resize>" {
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-d.updates:
			d.update()
			d.render()
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// handleKey reacts to the panel's key bindings and reports whether the key
// was one of them.
func (d *Dashboard) handleKey(id string) bool {
	switch id {
	case "r":
		d.src.Refresh()
		return true
	case "q", "<C-c>":
		if d.shutdownFunc != nil {
			d.shutdownFunc()
		}
		// Do not return here; wait for Stop() to cancel context
		return true
	}
	return false
}

// update refreshes all widget data from the session.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap, ok := d.src.Latest()
	published := d.src.Published()

	for i, tile := range output.Tiles(snap) {
		d.tiles[i].Text = tile.Value
	}

	if ok {
		d.tbtHistory = append(d.tbtHistory, metrics.Milliseconds(snap.TotalBlockingTime))
		if len(d.tbtHistory) > historySize {
			d.tbtHistory = d.tbtHistory[1:]
		}
		d.tbtSparkle.Sparklines[0].Data = d.tbtHistory
	}

	d.summaryPara.Text = d.formatSummary(published)
	d.sourceList.Rows = formatSourceRows(d.src.Outcomes())
	d.tasksPara.Text = formatLongTasks(d.src.LongTasks())
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func (d *Dashboard) formatSummary(published int64) string {
	var parts []string
	if d.config.Title != "" {
		parts = append(parts, d.config.Title)
	}
	if d.config.Mode != "" {
		parts = append(parts, "Mode: "+d.config.Mode)
	}
	if d.config.ConfigFile != "" {
		parts = append(parts, "Config: "+d.config.ConfigFile)
	}
	header := strings.Join(parts, " | ")
	status := fmt.Sprintf("Elapsed: %s | Snapshots: %d | [r](fg:yellow) refresh  [q](fg:yellow) quit",
		time.Since(d.startTime).Round(time.Second), published)
	if header == "" {
		return status
	}
	return header + "\n" + status
}

func formatSourceRows(outcomes []source.Outcome) []string {
	if outcomes == nil {
		return []string{"Subscribing..."}
	}
	rows := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		color := "green"
		if !o.OK() {
			color = "red"
		}
		rows = append(rows, fmt.Sprintf("%-16s [%s](fg:%s)", o.Source, o.Status(), color))
	}
	return rows
}

func formatLongTasks(stats metrics.LongTaskStats) string {
	if stats.Count == 0 {
		return "[No long tasks](fg:green)"
	}
	return fmt.Sprintf(
		"Count:   %d\nLongest: %.0f ms\nMean:    %.0f ms\nP50/P90/P99: %.0f / %.0f / %.0f ms",
		stats.Count,
		stats.LongestMs,
		stats.MeanMs,
		stats.P50Ms,
		stats.P90Ms,
		stats.P99Ms,
	)
}
