package source

import (
	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/timeline"
)

// EntryLister is the query half of a timeline host.
type EntryLister interface {
	EntriesByType(typ timeline.EntryType) []timeline.Entry
}

// Resources returns a ResourceSource that re-reads every resource entry the
// host has recorded on each call.
func Resources(host EntryLister) metrics.ResourceSource {
	return metrics.ResourceFunc(func() []metrics.ResourceEntry {
		if host == nil {
			return nil
		}
		entries := host.EntriesByType(timeline.TypeResource)
		out := make([]metrics.ResourceEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, metrics.ResourceEntry{
				TransferSize:    byteCount(e.TransferSize),
				EncodedBodySize: byteCount(e.EncodedBodySize),
			})
		}
		return out
	})
}
