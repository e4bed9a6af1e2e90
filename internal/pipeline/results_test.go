package pipeline

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/testutil"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *CountResult {
	res := &CountResult{
		Source:      "coins.png",
		Width:       640,
		Height:      480,
		ObjectCount: 2,
		Objects: []ObjectResult{
			{Index: 0, Center: utils.Point{X: 160, Y: 240}, MajorAxis: 120.4, MinorAxis: 119.6, Angle: 12, Area: 11234.4, Circularity: 0.97},
			{Index: 1, Center: utils.Point{X: 460, Y: 240}, MajorAxis: 140.2, MinorAxis: 139.8, Angle: 170, Area: 15321, Circularity: 0.98},
		},
	}
	res.Annotated = testutil.GenerateCoinImage(testutil.DefaultScene())
	return res
}

func TestToJSON(t *testing.T) {
	s, err := ToJSON(sampleResult())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.InDelta(t, 2, decoded["object_count"], 0)
	assert.Len(t, decoded["objects"], 2)
	assert.NotContains(t, s, "Annotated", "image payloads are never serialized")

	_, err = ToJSON(nil)
	require.Error(t, err)
}

func TestToJSONMany(t *testing.T) {
	s, err := ToJSONMany([]*CountResult{sampleResult(), sampleResult()})
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Len(t, decoded, 2)
}

func TestToCSV(t *testing.T) {
	empty := &CountResult{Source: "empty.png", Width: 10, Height: 10}
	s, err := ToCSV(sampleResult(), empty)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"coins.png", "2", "0", "160.00", "240.00", "120.40", "119.60", "12.00", "11234.4", "0.970"}, rows[1])
	assert.Equal(t, "empty.png", rows[3][0])
	assert.Equal(t, "0", rows[3][1])
	assert.Empty(t, rows[3][2])

	_, err = ToCSV(nil)
	require.Error(t, err)
}

func TestToPlainText_Locales(t *testing.T) {
	en, err := ToPlainText(sampleResult(), "en")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(en, "coins.png: 2 objects (640x480)"))
	assert.Contains(t, en, "area=11,234")
	assert.Contains(t, en, "#2 center=(460.0, 240.0)")

	de, err := ToPlainText(sampleResult(), "de")
	require.NoError(t, err)
	assert.Contains(t, de, "area=11.234")
	assert.Contains(t, de, "center=(160,0, 240,0)")

	fallback, err := ToPlainText(sampleResult(), "not a locale!")
	require.NoError(t, err)
	assert.Equal(t, en, fallback)

	_, err = ToPlainText(nil, "en")
	require.Error(t, err)
}

func TestAnnotatedBase64(t *testing.T) {
	s, err := AnnotatedBase64(sampleResult(), "jpeg", 80)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	img, format, err := utils.DecodeImage(raw)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 640, img.Bounds().Dx())

	png, err := AnnotatedBytes(sampleResult(), "png", 0)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	_, err = AnnotatedBase64(&CountResult{}, "png", 0)
	require.Error(t, err)
}

func TestValidateCountResult(t *testing.T) {
	require.NoError(t, ValidateCountResult(sampleResult()))

	bad := sampleResult()
	bad.ObjectCount = 3
	require.Error(t, ValidateCountResult(bad))

	bad = sampleResult()
	bad.Objects[0].Angle = 180
	require.Error(t, ValidateCountResult(bad))

	bad = sampleResult()
	bad.Objects[1].MinorAxis = 200
	require.Error(t, ValidateCountResult(bad))

	require.Error(t, ValidateCountResult(&CountResult{}))
	require.Error(t, ValidateCountResult(nil))
}
