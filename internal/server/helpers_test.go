package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/testutil"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/stretchr/testify/require"
)

// stubPipeline returns canned results so handlers can be tested in isolation.
type stubPipeline struct {
	result *pipeline.CountResult
	err    error
	urls   []string
}

func (m *stubPipeline) ProcessImageContext(_ context.Context, img image.Image) (*pipeline.CountResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return &res, nil
}

func (m *stubPipeline) ProcessBytesContext(_ context.Context, _ []byte) (*pipeline.CountResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	return &res, nil
}

func (m *stubPipeline) ProcessURL(_ context.Context, rawURL string) (*pipeline.CountResult, error) {
	m.urls = append(m.urls, rawURL)
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	res.Source = rawURL
	return &res, nil
}

func (m *stubPipeline) ProcessImagesParallelContext(ctx context.Context, images []image.Image, _ pipeline.ParallelConfig) ([]*pipeline.CountResult, error) {
	out := make([]*pipeline.CountResult, len(images))
	for i, img := range images {
		res, err := m.ProcessImageContext(ctx, img)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

func (m *stubPipeline) Info() map[string]interface{} {
	return map[string]interface{}{"stub": true}
}

func (m *stubPipeline) Close() error { return nil }

// newTestServer returns a server backed by the real counting pipeline.
func newTestServer(t *testing.T, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		PipelineConfig:   pipeline.DefaultConfig(),
		TimeoutSec:       30,
		Locale:           "en",
		WebSocketEnabled: true,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// sceneBytes encodes the two coin default scene.
func sceneBytes(t *testing.T, format string) []byte {
	t.Helper()
	data, err := utils.EncodeImageBytes(testutil.GenerateCoinImage(testutil.DefaultScene()), format, 95)
	require.NoError(t, err)
	return data
}

// multipartRequest builds a POST with an "image" file part and extra fields.
func multipartRequest(t *testing.T, target, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// imageServer serves the encoded default scene at /coins.png.
func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	data := sceneBytes(t, "png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}
