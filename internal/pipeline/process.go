package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

// ProcessImage counts coins in a decoded image.
func (p *Pipeline) ProcessImage(img image.Image) (*CountResult, error) {
	return p.ProcessImageContext(context.Background(), img)
}

// ProcessImageContext is like ProcessImage but gives up when ctx ends. The
// core runs to completion on its own goroutine; its result is discarded.
func (p *Pipeline) ProcessImageContext(ctx context.Context, img image.Image) (*CountResult, error) {
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if img == nil {
		return nil, fmt.Errorf("%w: input image is nil", detector.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := utils.ValidateImageConstraints(img, p.cfg.Constraints); err != nil {
		return nil, fmt.Errorf("%w: %w", detector.ErrInvalidInput, err)
	}

	bounds := img.Bounds()
	slog.Debug("Starting image processing", "width", bounds.Dx(), "height", bounds.Dy())
	totalStart := time.Now()

	buf, err := detector.ColorBufferFromImage(img)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		res *detector.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := detector.SegmentAndCount(buf, p.cfg.Detector)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		slog.Debug("Image processing abandoned", "error", ctx.Err())
		return nil, ctx.Err()
	}
	if out.err != nil {
		return nil, out.err
	}

	result := newCountResult(out.res, bounds.Dx(), bounds.Dy())
	if p.cfg.DrawBoxes {
		result.Annotated = RenderBoxes(result.Annotated, result, p.cfg.BoxColor)
	}
	result.Processing.TotalNs = time.Since(totalStart).Nanoseconds()

	slog.Debug("Image processing completed",
		"objects", result.ObjectCount,
		"regions", result.Stats.Regions,
		"duration", time.Since(totalStart))
	return result, nil
}

// ProcessBytes decodes an encoded image and counts coins in it.
func (p *Pipeline) ProcessBytes(data []byte) (*CountResult, error) {
	return p.ProcessBytesContext(context.Background(), data)
}

// ProcessBytesContext is ProcessBytes with cancellation.
func (p *Pipeline) ProcessBytesContext(ctx context.Context, data []byte) (*CountResult, error) {
	start := time.Now()
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	decodeNs := time.Since(start).Nanoseconds()

	res, err := p.ProcessImageContext(ctx, img)
	if err != nil {
		return nil, err
	}
	res.Processing.DecodeNs = decodeNs
	res.Processing.TotalNs += decodeNs
	return res, nil
}

// ProcessFile loads an image from disk and counts coins in it.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*CountResult, error) {
	start := time.Now()
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	decodeNs := time.Since(start).Nanoseconds()

	res, err := p.ProcessImageContext(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Source = path
	res.Processing.DecodeNs = decodeNs
	res.Processing.TotalNs += decodeNs
	return res, nil
}

// ProcessURL downloads an image and counts coins in it. Download failures
// are returned as *fetch.TransportError.
func (p *Pipeline) ProcessURL(ctx context.Context, rawURL string) (*CountResult, error) {
	if p == nil || p.fetcher == nil {
		return nil, errors.New("pipeline not initialized")
	}
	data, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	res, err := p.ProcessBytesContext(ctx, data)
	if err != nil {
		return nil, err
	}
	res.Source = rawURL
	return res, nil
}
