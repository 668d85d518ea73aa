package har

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/torosent/pagepulse/internal/timeline"
)

// Resources converts archive entries into resource timeline entries, sorted
// by start time. Start times are relative to the owning page's start, or to
// the earliest entry when the archive has no pages.
func Resources(har *HAR, opts ResourceOptions) ([]timeline.Entry, error) {
	if har == nil || har.Log == nil {
		return nil, fmt.Errorf("HAR is nil or has nil Log")
	}

	origins := pageOrigins(har.Log)
	documents := navigationEntries(har.Log)

	var out []timeline.Entry
	for _, entry := range har.Log.Entries {
		if entry == nil || entry.Request == nil {
			continue
		}
		if documents[entry] && !opts.IncludeDocument {
			continue
		}
		if !shouldIncludeEntry(entry, opts) {
			continue
		}
		out = append(out, entryToResource(entry, origins[entry.PageRef]))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// LoadTime returns the first page's onLoad time in milliseconds, or zero
// when the archive does not record one.
func LoadTime(har *HAR) float64 {
	if har == nil || har.Log == nil || len(har.Log.Pages) == 0 {
		return 0
	}
	page := har.Log.Pages[0]
	if page == nil || page.PageTimings == nil || page.PageTimings.OnLoad <= 0 {
		return 0
	}
	return page.PageTimings.OnLoad
}

// Recording builds a replayable timeline from the archive: one batch per
// resource, with the load event taken from the page timings.
func Recording(har *HAR, opts ResourceOptions) (timeline.Recording, error) {
	entries, err := Resources(har, opts)
	if err != nil {
		return timeline.Recording{}, err
	}
	rec := timeline.Recording{LoadEventEnd: LoadTime(har)}
	for i := range entries {
		rec.Batches = append(rec.Batches, entries[i:i+1:i+1])
	}
	return rec, nil
}

func shouldIncludeEntry(entry *Entry, opts ResourceOptions) bool {
	if opts.ExcludeFailed && (entry.Response == nil || entry.Response.Status == 0) {
		return false
	}
	if len(opts.IncludeHosts) == 0 && len(opts.ExcludeHosts) == 0 {
		return true
	}

	parsedURL, err := url.Parse(entry.Request.URL)
	if err != nil {
		return false
	}
	host := parsedURL.Hostname()

	if len(opts.IncludeHosts) > 0 && !containsHost(opts.IncludeHosts, host) {
		return false
	}
	return !containsHost(opts.ExcludeHosts, host)
}

func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func entryToResource(entry *Entry, origin time.Time) timeline.Entry {
	e := timeline.Entry{
		EntryType: timeline.TypeResource,
		Name:      entry.Request.URL,
		Duration:  positive(entry.Time),
	}
	if started, ok := parseTime(entry.StartedDateTime); ok && !origin.IsZero() {
		e.StartTime = positive(float64(started.Sub(origin)) / float64(time.Millisecond))
	}
	if resp := entry.Response; resp != nil {
		e.TransferSize = float64(transferSize(resp))
		e.EncodedBodySize = float64(encodedBodySize(resp))
	}
	return e
}

// transferSize prefers Chrome's _transferSize, then headers plus body as
// recorded on the wire. Cached responses have neither and report zero.
func transferSize(resp *Response) int64 {
	if resp.TransferSize > 0 {
		return resp.TransferSize
	}
	if resp.BodySize <= 0 {
		return 0
	}
	total := resp.BodySize
	if resp.HeadersSize > 0 {
		total += resp.HeadersSize
	}
	return total
}

func encodedBodySize(resp *Response) int64 {
	if resp.BodySize > 0 {
		return resp.BodySize
	}
	if resp.Content == nil {
		return 0
	}
	if size := resp.Content.Size - resp.Content.Compression; size > 0 {
		return size
	}
	return 0
}

// pageOrigins maps each pageref to its page start. Entries whose page is
// missing measure from the earliest entry sharing their pageref.
func pageOrigins(log *Log) map[string]time.Time {
	origins := make(map[string]time.Time, len(log.Pages)+1)
	fromPage := make(map[string]bool, len(log.Pages))
	for _, page := range log.Pages {
		if page == nil {
			continue
		}
		if t, ok := parseTime(page.StartedDateTime); ok {
			origins[page.ID] = t
			fromPage[page.ID] = true
		}
	}
	for _, entry := range log.Entries {
		if entry == nil || fromPage[entry.PageRef] {
			continue
		}
		t, ok := parseTime(entry.StartedDateTime)
		if !ok {
			continue
		}
		if cur, seen := origins[entry.PageRef]; !seen || t.Before(cur) {
			origins[entry.PageRef] = t
		}
	}
	return origins
}

// navigationEntries picks the document request of every page: the entry
// marked as a document by DevTools, else the page's earliest entry.
func navigationEntries(log *Log) map[*Entry]bool {
	first := make(map[string]*Entry)
	marked := make(map[string]*Entry)
	for _, entry := range log.Entries {
		if entry == nil || entry.Request == nil {
			continue
		}
		if strings.EqualFold(entry.ResourceType, "document") {
			if _, ok := marked[entry.PageRef]; !ok {
				marked[entry.PageRef] = entry
			}
		}
		cur, ok := first[entry.PageRef]
		if !ok || startsBefore(entry, cur) {
			first[entry.PageRef] = entry
		}
	}

	out := make(map[*Entry]bool, len(first))
	for ref, entry := range first {
		if doc, ok := marked[ref]; ok {
			entry = doc
		}
		out[entry] = true
	}
	return out
}

func startsBefore(a, b *Entry) bool {
	ta, okA := parseTime(a.StartedDateTime)
	tb, okB := parseTime(b.StartedDateTime)
	return okA && okB && ta.Before(tb)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func positive(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}
