// Package batch counts coins in many image files with a worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
)

// Result holds the outcome of a batch run.
type Result struct {
	Items       []Item        `json:"images"`
	Duration    time.Duration `json:"-"`
	WorkerCount int           `json:"-"`
}

// ProcessBatch discovers images under paths and counts them. With
// ContinueOnError the returned Result carries per-file errors; otherwise the
// first failure aborts the run and is returned together with the partial
// result.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	files, err := newImageFilter(config).discover(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	pc := config.Pipeline
	pc.Detector.KeepMask = pc.Detector.KeepMask || config.MaskDir != ""
	pl, err := pipeline.NewBuilderFromConfig(pc).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build counting pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	var progress pipeline.ProgressCallback
	if config.ShowProgress && !config.Quiet {
		progress = pipeline.NewConsoleProgressCallback(os.Stderr, "Counting: ")
	}

	start := time.Now()
	items, err := processFiles(ctx, pl, files, config, progress)
	result := &Result{
		Items:       items,
		Duration:    time.Since(start),
		WorkerCount: config.workerCount(len(files)),
	}
	if err != nil {
		return result, fmt.Errorf("batch processing failed: %w", err)
	}
	return result, nil
}

// TotalObjects sums the counts of all successful items.
func (r *Result) TotalObjects() int {
	total := 0
	for _, it := range r.Items {
		if it.Result != nil {
			total += it.Result.ObjectCount
		}
	}
	return total
}

// Failed returns the number of items that recorded an error.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Error != "" {
			n++
		}
	}
	return n
}

// FormatResults formats the batch results as text, json or csv.
func (r *Result) FormatResults(format, locale string) (string, error) {
	return formatBatchResults(r.Items, format, locale)
}

// SaveResults writes the formatted results to outputFile, or to w when no
// file is given.
func (r *Result) SaveResults(w io.Writer, format, locale, outputFile string) error {
	output, err := r.FormatResults(format, locale)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprint(w, output)
	return err
}

// PrintStats prints a processing summary.
func (r *Result) PrintStats(w io.Writer) {
	results := make([]*pipeline.CountResult, len(r.Items))
	for i, it := range r.Items {
		if it.Error == "" {
			results[i] = it.Result
		}
	}
	stats := pipeline.CalculateParallelStats(results, r.Duration, r.WorkerCount)
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", stats.TotalImages)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.ProcessedImages)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.FailedImages)
	_, _ = fmt.Fprintf(w, "  Total objects: %d\n", stats.TotalObjects)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", stats.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
}
