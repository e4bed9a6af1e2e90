package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

// Item is the outcome for one input file.
type Item struct {
	Path          string                `json:"file"`
	Result        *pipeline.CountResult `json:"result,omitempty"`
	AnnotatedPath string                `json:"annotated_path,omitempty"`
	MaskPath      string                `json:"mask_path,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// fileCounter is the part of the pipeline used by the batch runner.
type fileCounter interface {
	ProcessFile(ctx context.Context, path string) (*pipeline.CountResult, error)
}

type fileJob struct {
	index int
	path  string
}

// processFiles counts every file with a worker pool and returns items in
// input order. Without continueOnError the first failure cancels the
// remaining files and is returned.
func processFiles(ctx context.Context, pl fileCounter, files []string, cfg *Config,
	progress pipeline.ProgressCallback) ([]Item, error) {
	workers := cfg.workerCount(len(files))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if progress != nil {
		progress.OnStart(len(files))
		defer progress.OnComplete()
	}

	jobs := make(chan fileJob)
	done := make(chan int, len(files))
	items := make([]Item, len(files))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				items[job.index] = processSingleFile(ctx, pl, job.path, cfg)
				if items[job.index].Error != "" && !cfg.ContinueOnError {
					cancel(fmt.Errorf("%s: %s", job.path, items[job.index].Error))
				}
				done <- job.index
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, path := range files {
			select {
			case jobs <- fileJob{index: i, path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	processed := 0
	for i := range done {
		processed++
		if progress == nil {
			continue
		}
		if items[i].Error != "" {
			progress.OnError(i, errors.New(items[i].Error))
		}
		progress.OnProgress(processed, len(files))
	}

	if err := context.Cause(ctx); err != nil {
		return items, err
	}
	return items, nil
}

// processSingleFile counts one file and writes the requested side outputs.
// Failures are recorded on the item.
func processSingleFile(ctx context.Context, pl fileCounter, path string, cfg *Config) Item {
	item := Item{Path: path}
	res, err := pl.ProcessFile(ctx, path)
	if err != nil {
		slog.Debug("Counting failed", "file", path, "error", err)
		item.Error = err.Error()
		return item
	}
	item.Result = res

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if cfg.AnnotatedDir != "" && res.Annotated != nil {
		out := filepath.Join(cfg.AnnotatedDir, stem+"_annotated"+cfg.annotatedExt())
		if err := writeImage(out, res, false, cfg.Pipeline.JPEGQuality); err != nil {
			item.Error = err.Error()
			return item
		}
		item.AnnotatedPath = out
	}
	if cfg.MaskDir != "" && res.Mask != nil {
		out := filepath.Join(cfg.MaskDir, stem+"_mask.png")
		if err := writeImage(out, res, true, 0); err != nil {
			item.Error = err.Error()
			return item
		}
		item.MaskPath = out
	}
	return item
}

func writeImage(path string, res *pipeline.CountResult, mask bool, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	img := res.Annotated
	if mask {
		img = res.Mask
	}
	if err := utils.SaveImage(path, img, quality); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
