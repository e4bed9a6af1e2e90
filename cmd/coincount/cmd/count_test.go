package cmd

import (
	"encoding/csv"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/testutil"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountCommand_Text(t *testing.T) {
	dir := isolate(t)
	writeScene(t, dir, "coins.png")

	out, _, err := execute(t, "count", "coins.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "coins.png: 2 objects (640x480)"), out)
	assert.Contains(t, out, "#2 center=")
}

func TestCountCommand_JSON(t *testing.T) {
	dir := isolate(t)
	writeScene(t, dir, "a.png")
	writeScene(t, dir, "b.png")

	out, _, err := execute(t, "count", "a.png", "--format", "json")
	require.NoError(t, err)
	var single map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &single))
	assert.InDelta(t, 2, single["object_count"], 0)

	out, _, err = execute(t, "count", "a.png", "b.png", "-f", "json")
	require.NoError(t, err)
	var many []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &many))
	assert.Len(t, many, 2)
}

func TestCountCommand_CSVToFile(t *testing.T) {
	dir := isolate(t)
	writeScene(t, dir, "coins.png")
	target := filepath.Join(dir, "counts.csv")

	out, _, err := execute(t, "count", "coins.png", "--format", "csv", "--output", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "source", rows[0][0])
	assert.Equal(t, []string{"coins.png", "2"}, rows[1][:2])
}

func TestCountCommand_AreaFlags(t *testing.T) {
	dir := isolate(t)
	writeScene(t, dir, "coins.png")

	// The coins enclose about 11300 and 15400 px.
	out, _, err := execute(t, "count", "coins.png", "--area-min", "13000")
	require.NoError(t, err)
	assert.Contains(t, out, "coins.png: 1 objects")

	_, _, err = execute(t, "count", "coins.png", "--area-min", "5000", "--area-max", "4000")
	require.Error(t, err)
}

func TestCountCommand_EnvironmentOverride(t *testing.T) {
	dir := isolate(t)
	writeScene(t, dir, "coins.png")
	t.Setenv("COINCOUNT_SEGMENTATION_AREA_MAX", "12000")

	out, _, err := execute(t, "count", "coins.png")
	require.NoError(t, err)
	assert.Contains(t, out, "coins.png: 1 objects")
}

func TestCountCommand_SideOutputs(t *testing.T) {
	dir := isolate(t)
	writeScene(t, dir, "coins.png")
	annotated := filepath.Join(dir, "out")
	masks := filepath.Join(dir, "masks")

	_, _, err := execute(t, "count", "coins.png",
		"--annotated-dir", annotated, "--image-format", "png", "--mask-dir", masks)
	require.NoError(t, err)

	mustExist(t, filepath.Join(annotated, "coins_annotated.png"))
	mustExist(t, filepath.Join(masks, "coins_mask.png"))

	img := testutil.LoadImage(t, filepath.Join(annotated, "coins_annotated.png"))
	assert.Positive(t, testutil.CountPixels(img, color.RGBA{G: 255, A: 255}), "ellipses are green")
	assert.Positive(t, testutil.CountPixels(img, color.RGBA{B: 255, A: 255}), "count text is blue")
}

func TestCountCommand_URL(t *testing.T) {
	isolate(t)
	data, err := utils.EncodeImageBytes(testutil.GenerateCoinImage(testutil.DefaultScene()), "png", 0)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	out, _, err := execute(t, "count", srv.URL+"/coins.png")
	require.NoError(t, err)
	assert.Contains(t, out, "2 objects")

	_, _, err = execute(t, "count", srv.URL+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counting "+srv.URL+"/missing.png")
}

func TestCountCommand_Errors(t *testing.T) {
	dir := isolate(t)

	_, _, err := execute(t, "count")
	require.Error(t, err, "at least one input is required")

	_, _, err = execute(t, "count", filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.png"), []byte("not an image"), 0o600))
	_, _, err = execute(t, "count", "junk.png")
	require.Error(t, err)

	writeScene(t, dir, "coins.png")
	_, _, err = execute(t, "count", "coins.png", "--format", "xml")
	require.Error(t, err)
}

func TestInputStem(t *testing.T) {
	tests := map[string]string{
		"coins.png":                          "coins",
		"/data/photos/table.v2.jpg":          "table.v2",
		"https://example.com/img/coins.jpg":  "coins",
		"https://example.com/":               "image",
		"http://example.com":                 "image",
		"https://example.com/a/b?size=large": "b",
	}
	for input, want := range tests {
		assert.Equal(t, want, inputStem(input), input)
	}
}
