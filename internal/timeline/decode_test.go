package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/pagepulse/internal/timeline"
)

func TestLoadFileJSON(t *testing.T) {
	rec, err := timeline.LoadFile("testdata/page.json")
	require.NoError(t, err)

	require.Len(t, rec.Batches, 6)
	assert.Equal(t, 950.0, rec.LoadEventEnd)
	assert.Len(t, rec.Entries(), 9)

	lcp := rec.Batches[1][0]
	assert.Equal(t, timeline.TypeLargestRender, lcp.EntryType)
	assert.Equal(t, 310.5, lcp.RenderTime)

	before, after := rec.SplitAtLoad()
	assert.Len(t, before, 5)
	require.Len(t, after, 1)
	assert.Equal(t, 1180.0, after[0][0].LoadTime)
}

func TestLoadFileYAML(t *testing.T) {
	rec, err := timeline.LoadFile("testdata/page.yaml")
	require.NoError(t, err)

	assert.Equal(t, []timeline.EntryType{timeline.TypeLongTask}, rec.Unsupported)
	assert.Equal(t, 600.0, rec.LoadEventEnd)
	require.Len(t, rec.Batches, 3)
	assert.Equal(t, "first-contentful-paint", rec.Batches[0][0].Name)
	assert.Equal(t, 512.0, rec.Batches[2][0].TransferSize)
}

func TestDecodeBareArray(t *testing.T) {
	rec, err := timeline.Decode([]byte(`[
		{"entryType":"paint","name":"first-contentful-paint","startTime":120},
		{"entryType":"resource","transferSize":"2048"},
		{"name":"no type"}
	]`))
	require.NoError(t, err)

	require.Len(t, rec.Batches, 2)
	assert.Equal(t, 2048.0, rec.Batches[1][0].TransferSize)
	assert.Zero(t, rec.LoadEventEnd)
}

func TestDecodeCoercesMissingAndNegativeNumbers(t *testing.T) {
	rec, err := timeline.Decode([]byte(`{"entries":[
		{"entryType":"layout-shift","value":-1},
		{"entryType":"longtask","duration":null},
		{"entryType":"resource","transferSize":"n/a","encodedBodySize":300}
	]}`))
	require.NoError(t, err)

	entries := rec.Entries()
	require.Len(t, entries, 3)
	assert.Zero(t, entries[0].Value)
	assert.Zero(t, entries[1].Duration)
	assert.Zero(t, entries[2].TransferSize)
	assert.Equal(t, 300.0, entries[2].EncodedBodySize)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	_, err := timeline.Decode([]byte(`{"entries": [`))
	assert.Error(t, err)

	_, err = timeline.Decode([]byte(`42`))
	assert.Error(t, err)
}

func TestSplitAtLoadWithoutLoadTime(t *testing.T) {
	rec := timeline.Recording{Batches: [][]timeline.Entry{{{EntryType: timeline.TypePaint, StartTime: 5000}}}}
	before, after := rec.SplitAtLoad()
	assert.Len(t, before, 1)
	assert.Empty(t, after)
}

func TestSplitAtLoadUnsortedBatches(t *testing.T) {
	rec := timeline.Recording{
		LoadEventEnd: 800,
		Batches: [][]timeline.Entry{
			{{EntryType: timeline.TypePaint, StartTime: 100}},
			{{EntryType: timeline.TypeLargestRender, StartTime: 900}},
			{{EntryType: timeline.TypeResource, StartTime: 40}},
			{{EntryType: timeline.TypeLongTask, StartTime: 1200}},
			{{EntryType: timeline.TypeLayoutShift, StartTime: 500}},
		},
	}

	before, after := rec.SplitAtLoad()

	starts := func(batches [][]timeline.Entry) []float64 {
		var out []float64
		for _, b := range batches {
			out = append(out, b[0].StartTime)
		}
		return out
	}
	assert.Equal(t, []float64{100, 40, 500}, starts(before))
	assert.Equal(t, []float64{900, 1200}, starts(after))
}
