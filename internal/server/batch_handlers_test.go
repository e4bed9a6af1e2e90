package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postBatch(t *testing.T, s *Server, req BatchCountRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/count/batch", bytes.NewReader(body)))
	return rec
}

func TestCountBatchHandler_MixedItems(t *testing.T) {
	s := newTestServer(t)
	rec := postBatch(t, s, BatchCountRequest{Images: []BatchImageRequest{
		{Name: "a.png", Data: sceneBytes(t, "png")},
		{Name: "broken.bin", Data: []byte("nope")},
		{Name: "b.jpg", Data: sceneBytes(t, "jpeg")},
	}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp BatchCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "a.png", resp.Results[0].Name)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, 2, resp.Results[0].Result.ObjectCount)
	assert.Equal(t, "a.png", resp.Results[0].Result.Source)

	assert.False(t, resp.Results[1].Success)
	assert.Contains(t, resp.Results[1].Error, "decode")

	assert.True(t, resp.Results[2].Success)
	assert.Equal(t, "b.jpg", resp.Results[2].Result.Source)

	assert.Equal(t, 3, resp.Summary.TotalItems)
	assert.Equal(t, 2, resp.Summary.Successful)
	assert.Equal(t, 1, resp.Summary.Failed)
	assert.Equal(t, 4, resp.Summary.TotalObjects)
}

func TestCountBatchHandler_Options(t *testing.T) {
	s := newTestServer(t)
	rec := postBatch(t, s, BatchCountRequest{
		Images:  []BatchImageRequest{{Name: "a.png", Data: sceneBytes(t, "png")}},
		Options: map[string]interface{}{"area_min": 13000.0},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp BatchCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Summary.TotalObjects)
}

func TestCountBatchHandler_Rejections(t *testing.T) {
	s := newServerWithPipeline(Config{}, &stubPipeline{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/count/batch", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, postBatch(t, s, BatchCountRequest{}).Code)

	tooMany := make([]BatchImageRequest, maxBatchItems+1)
	assert.Equal(t, http.StatusBadRequest, postBatch(t, s, BatchCountRequest{Images: tooMany}).Code)

	rec = postBatch(t, s, BatchCountRequest{
		Images:  []BatchImageRequest{{Name: "x"}},
		Options: map[string]interface{}{"ellipse_color": "chartreuse"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOptionGetter(t *testing.T) {
	get := optionGetter(map[string]interface{}{"a": "x", "b": 12.5, "c": true, "d": nil})
	assert.Equal(t, "x", get("a"))
	assert.Equal(t, "12.5", get("b"))
	assert.Equal(t, "true", get("c"))
	assert.Empty(t, get("d"))
	assert.Empty(t, get("missing"))
}

func TestCountBatchHandler_LogsProgress(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newTestServer(t)
	rec := postBatch(t, s, BatchCountRequest{Images: []BatchImageRequest{
		{Name: "a.png", Data: sceneBytes(t, "png")},
		{Name: "b.png", Data: sceneBytes(t, "png")},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var progress []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		switch entry["msg"] {
		case "Starting processing", "Progress update", "Processing completed":
			assert.Equal(t, "DEBUG", entry["level"])
			progress = append(progress, entry)
		}
	}
	require.Len(t, progress, 3, logs.String())
	assert.Equal(t, "Starting processing", progress[0]["msg"])
	assert.InDelta(t, 2, progress[0]["total"], 0)
	assert.Equal(t, "Progress update", progress[1]["msg"])
	assert.InDelta(t, 2, progress[1]["current"], 0)
	assert.Equal(t, "Processing completed", progress[2]["msg"])
}
