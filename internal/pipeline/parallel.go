package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int                           // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback              // Optional progress reporting
	ErrorHandler     func(int, image.Image, error) // Optional per-image error handler
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

type imageJob struct {
	index int
	image image.Image
}

type imageResult struct {
	index  int
	result *CountResult
	err    error
}

// ProcessImages processes images sequentially and returns results in order.
// The first failure aborts the run.
func (p *Pipeline) ProcessImages(ctx context.Context, images []image.Image) ([]*CountResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	out := make([]*CountResult, len(images))
	for i, img := range images {
		res, err := p.ProcessImageContext(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

// ProcessImagesParallel processes multiple images in parallel using a worker pool.
// Returns results in the same order as input images.
func (p *Pipeline) ProcessImagesParallel(images []image.Image, config ParallelConfig) ([]*CountResult, error) {
	return p.ProcessImagesParallelContext(context.Background(), images, config)
}

// ProcessImagesParallelContext processes images in parallel with context
// cancellation support. Failed images leave a nil slot; the first error by
// input index is returned alongside the partial results.
func (p *Pipeline) ProcessImagesParallelContext(ctx context.Context, images []image.Image, config ParallelConfig) ([]*CountResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	workers := min(config.MaxWorkers, len(images))

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(images))
		defer config.ProgressCallback.OnComplete()
	}

	jobs := make(chan imageJob, len(images))
	results := make(chan imageResult, len(images))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go p.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, img := range images {
			select {
			case jobs <- imageJob{index: i, image: img}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*CountResult, len(images))
	errs := make([]error, len(images))
	processed := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		processed++
		if config.ProgressCallback != nil {
			if r.err != nil {
				config.ProgressCallback.OnError(r.index, r.err)
			}
			config.ProgressCallback.OnProgress(processed, len(images))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstError error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if firstError == nil {
			firstError = fmt.Errorf("image %d: %w", i, err)
		}
		if config.ErrorHandler != nil {
			config.ErrorHandler(i, images[i], err)
		}
	}
	return ordered, firstError
}

func (p *Pipeline) worker(ctx context.Context, jobs <-chan imageJob, results chan<- imageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			result, err := p.ProcessImageContext(ctx, job.image)
			select {
			case results <- imageResult{index: job.index, result: result, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ParallelStats holds statistics about parallel processing performance.
type ParallelStats struct {
	TotalImages      int           `json:"total_images"`
	ProcessedImages  int           `json:"processed_images"`
	FailedImages     int           `json:"failed_images"`
	TotalObjects     int           `json:"total_objects"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats calculates performance statistics for parallel processing.
func CalculateParallelStats(results []*CountResult, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{
		TotalImages:   len(results),
		WorkerCount:   workerCount,
		TotalDuration: duration,
	}
	for _, r := range results {
		if r == nil {
			stats.FailedImages++
			continue
		}
		stats.ProcessedImages++
		stats.TotalObjects += r.ObjectCount
	}
	if stats.ProcessedImages > 0 && duration > 0 {
		stats.AveragePerImage = duration / time.Duration(stats.ProcessedImages)
		stats.ThroughputPerSec = float64(stats.ProcessedImages) / duration.Seconds()
	}
	return stats
}
