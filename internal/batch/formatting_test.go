package batch

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []Item {
	return []Item{
		{Path: "a.png", Result: &pipeline.CountResult{Source: "a.png", Width: 10, Height: 10, ObjectCount: 1,
			Objects: []pipeline.ObjectResult{{MajorAxis: 4, MinorAxis: 3, Area: 12345}}}},
		{Path: "b.png", Error: "image processing error in decode: bad"},
		{Path: "c.png", Result: &pipeline.CountResult{Source: "c.png", Width: 10, Height: 10}},
	}
}

func TestSummarize(t *testing.T) {
	s := summarize(sampleItems())
	assert.Equal(t, Summary{TotalImages: 3, Successful: 2, Failed: 1, TotalObjects: 1}, s)
}

func TestFormatText(t *testing.T) {
	out, err := formatBatchResults(sampleItems(), "text", "de")
	require.NoError(t, err)
	assert.Contains(t, out, "a.png: 1 objects (10x10)")
	assert.Contains(t, out, "area=12.345")
	assert.Contains(t, out, "b.png: error: image processing error in decode: bad")
	assert.True(t, strings.HasSuffix(out, "Total: 1 objects in 2 images (1 failed)\n"))
}

func TestFormatJSON(t *testing.T) {
	out, err := formatBatchResults(sampleItems(), "json", "")
	require.NoError(t, err)

	var decoded struct {
		Images  []map[string]interface{} `json:"images"`
		Summary Summary                  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Images, 3)
	assert.Equal(t, "b.png", decoded.Images[1]["file"])
	assert.NotContains(t, decoded.Images[1], "result")
	assert.Equal(t, 1, decoded.Summary.Failed)

	empty, err := formatBatchResults(nil, "json", "")
	require.NoError(t, err)
	assert.Contains(t, empty, `"images": []`)
}

func TestFormatCSV_SkipsFailures(t *testing.T) {
	out, err := formatBatchResults(sampleItems(), "csv", "")
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a.png", rows[1][0])
	assert.Equal(t, "c.png", rows[2][0])
}
