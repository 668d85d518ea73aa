package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/torosent/pagepulse/internal/metrics"
)

// SnapshotSource is anything snapshots can be subscribed to.
type SnapshotSource interface {
	Subscribe(fn metrics.Subscriber) (cancel func())
}

// ProgressReporter prints one status line per published snapshot,
// overwriting the previous line.
type ProgressReporter struct {
	mu     sync.Mutex
	writer io.Writer
	cancel func()
	lines  int
}

// NewProgressReporter creates a progress reporter writing to writer.
func NewProgressReporter(writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{writer: writer}
}

// Start subscribes to src. Calling Start again replaces the subscription.
func (p *ProgressReporter) Start(src SnapshotSource) {
	cancel := src.Subscribe(p.Handle)
	p.mu.Lock()
	prev := p.cancel
	p.cancel = cancel
	p.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Stop unsubscribes and terminates the status line.
func (p *ProgressReporter) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	printed := p.lines > 0
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if printed {
		p.mu.Lock()
		fmt.Fprintln(p.writer)
		p.mu.Unlock()
	}
}

// Lines returns how many snapshots have been printed.
func (p *ProgressReporter) Lines() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Handle prints s. It satisfies metrics.Subscriber.
func (p *ProgressReporter) Handle(s metrics.Snapshot) {
	line := ProgressLine(s)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines++
	fmt.Fprint(p.writer, "\r"+line)
}

// ProgressLine renders s on one line.
func ProgressLine(s metrics.Snapshot) string {
	tiles := Tiles(s)
	parts := make([]string, 0, len(tiles))
	for _, tile := range tiles {
		parts = append(parts, tile.Label+": "+tile.Value)
	}
	return strings.Join(parts, " | ")
}
