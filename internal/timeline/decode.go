package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Recording is a captured page load: entries grouped into the batches they
// were delivered in, plus the time the load event fired.
type Recording struct {
	Unsupported []EntryType
	Batches     [][]Entry
	// LoadEventEnd is the load time in milliseconds; zero means the load
	// event follows the last batch.
	LoadEventEnd float64
}

// Entries flattens every batch.
func (r Recording) Entries() []Entry {
	var out []Entry
	for _, b := range r.Batches {
		out = append(out, b...)
	}
	return out
}

// SplitAtLoad returns the batches delivered before and after the load event.
// A batch belongs after the load when its first entry starts later than
// LoadEventEnd. Each side keeps the recorded delivery order, so a file need
// not be sorted by start time.
func (r Recording) SplitAtLoad() (before, after [][]Entry) {
	if r.LoadEventEnd <= 0 {
		return r.Batches, nil
	}
	for _, b := range r.Batches {
		if len(b) > 0 && b[0].StartTime > r.LoadEventEnd {
			after = append(after, b)
			continue
		}
		before = append(before, b)
	}
	return before, after
}

// LoadFile reads a recording from disk. Files ending in .yaml or .yml are
// decoded as YAML; everything else as JSON.
func LoadFile(path string) (Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("failed to read timeline: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return Decode(data)
	}
}

// Decode parses a JSON recording. Accepted shapes are a bare array of
// entries (as produced by performance.getEntries()), or an object with
// "batches" (array of entry arrays) and/or "entries" (one batch per entry),
// plus optional "unsupported" and "loadEventEnd". Missing or malformed
// numeric fields decode as zero.
func Decode(data []byte) (Recording, error) {
	if !gjson.ValidBytes(data) {
		return Recording{}, fmt.Errorf("invalid timeline JSON")
	}
	root := gjson.ParseBytes(data)

	var rec Recording
	switch {
	case root.IsArray():
		rec.Batches = singletonBatches(DecodeEntries(root))
	case root.IsObject():
		for _, t := range root.Get("unsupported").Array() {
			if typ, ok := ParseEntryType(t.String()); ok {
				rec.Unsupported = append(rec.Unsupported, typ)
			}
		}
		for _, b := range root.Get("batches").Array() {
			if entries := DecodeEntries(b); len(entries) > 0 {
				rec.Batches = append(rec.Batches, entries)
			}
		}
		rec.Batches = append(rec.Batches, singletonBatches(DecodeEntries(root.Get("entries")))...)
		rec.LoadEventEnd = nonNegative(root.Get("loadEventEnd").Float())
	default:
		return Recording{}, fmt.Errorf("timeline must be a JSON array or object")
	}
	return rec, nil
}

// DecodeEntries converts a gjson array of entry objects. Objects without an
// entryType are skipped.
func DecodeEntries(arr gjson.Result) []Entry {
	if !arr.IsArray() {
		return nil
	}
	var out []Entry
	arr.ForEach(func(_, v gjson.Result) bool {
		if e, ok := decodeEntry(v); ok {
			out = append(out, e)
		}
		return true
	})
	return out
}

func decodeEntry(v gjson.Result) (Entry, bool) {
	if !v.IsObject() {
		return Entry{}, false
	}
	typ := EntryType(strings.TrimSpace(v.Get("entryType").String()))
	if typ == "" {
		return Entry{}, false
	}
	return Entry{
		EntryType:       typ,
		Name:            v.Get("name").String(),
		StartTime:       nonNegative(v.Get("startTime").Float()),
		Duration:        nonNegative(v.Get("duration").Float()),
		RenderTime:      nonNegative(v.Get("renderTime").Float()),
		LoadTime:        nonNegative(v.Get("loadTime").Float()),
		Value:           nonNegative(v.Get("value").Float()),
		HadRecentInput:  v.Get("hadRecentInput").Bool(),
		TransferSize:    nonNegative(v.Get("transferSize").Float()),
		EncodedBodySize: nonNegative(v.Get("encodedBodySize").Float()),
	}, true
}

type yamlRecording struct {
	Unsupported  []string  `yaml:"unsupported"`
	Batches      [][]Entry `yaml:"batches"`
	Entries      []Entry   `yaml:"entries"`
	LoadEventEnd float64   `yaml:"loadEventEnd"`
}

// DecodeYAML parses a YAML recording with the same shape as Decode's object
// form.
func DecodeYAML(data []byte) (Recording, error) {
	var raw yamlRecording
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Recording{}, fmt.Errorf("invalid timeline YAML: %w", err)
	}

	var rec Recording
	for _, s := range raw.Unsupported {
		if typ, ok := ParseEntryType(s); ok {
			rec.Unsupported = append(rec.Unsupported, typ)
		}
	}
	for _, b := range raw.Batches {
		if cleaned := sanitize(b); len(cleaned) > 0 {
			rec.Batches = append(rec.Batches, cleaned)
		}
	}
	rec.Batches = append(rec.Batches, singletonBatches(sanitize(raw.Entries))...)
	rec.LoadEventEnd = nonNegative(raw.LoadEventEnd)
	return rec, nil
}

func sanitize(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.EntryType == "" {
			continue
		}
		e.StartTime = nonNegative(e.StartTime)
		e.Duration = nonNegative(e.Duration)
		e.RenderTime = nonNegative(e.RenderTime)
		e.LoadTime = nonNegative(e.LoadTime)
		e.Value = nonNegative(e.Value)
		e.TransferSize = nonNegative(e.TransferSize)
		e.EncodedBodySize = nonNegative(e.EncodedBodySize)
		out = append(out, e)
	}
	return out
}

func singletonBatches(entries []Entry) [][]Entry {
	if len(entries) == 0 {
		return nil
	}
	out := make([][]Entry, len(entries))
	for i := range entries {
		out[i] = entries[i : i+1 : i+1]
	}
	return out
}

func nonNegative(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}
