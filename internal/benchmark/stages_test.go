package benchmark

import (
	"bytes"
	"context"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageSuite(t *testing.T) {
	img := testutil.GenerateCoinImage(testutil.DefaultScene())
	s, closeFn, err := NewStageSuite(img, pipeline.DefaultConfig())
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	assert.Equal(t, []string{
		StageConvert, StageGrayscale, StageBlur, StageThreshold, StageClosing, StageSegment,
		StageContours, StageClassify, StageAnnotate, StageDetector, StagePipeline,
	}, s.Names())

	results := s.RunAll(context.Background(), 2)
	require.Len(t, results, 11)
	for _, r := range results {
		require.NoError(t, r.Error, r.Name)
		assert.Equal(t, 2, r.Iterations, r.Name)
		assert.Positive(t, r.Duration, r.Name)
	}

	var buf bytes.Buffer
	s.PrintResults(&buf)
	assert.Contains(t, buf.String(), "segment_and_count: 2 iterations")
}

func TestNewStageSuite_Errors(t *testing.T) {
	_, _, err := NewStageSuite(nil, pipeline.DefaultConfig())
	require.ErrorIs(t, err, detector.ErrInvalidInput)

	cfg := pipeline.DefaultConfig()
	cfg.Detector.Area = detector.AreaConfig{Min: 10, Max: 5}
	_, _, err = NewStageSuite(testutil.GenerateCoinImage(testutil.DefaultScene()), cfg)
	require.Error(t, err)
}
