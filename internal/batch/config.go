package batch

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
)

// Config holds all configuration for batch counting.
type Config struct {
	Pipeline pipeline.Config

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	Format       string // text, json or csv
	OutputFile   string
	AnnotatedDir string
	MaskDir      string
	ImageFormat  string // jpeg or png, for annotated files

	// Processing settings
	Workers         int
	ContinueOnError bool

	// Progress settings
	ShowProgress bool
	Quiet        bool
}

// DefaultConfig returns a configuration that counts every supported image in
// the given directories without recursion.
func DefaultConfig() *Config {
	pc := pipeline.DefaultConfig()
	return &Config{
		Pipeline:    pc,
		Format:      "text",
		ImageFormat: pc.ImageFormat,
		Workers:     pc.Parallel.MaxWorkers,
	}
}

// Validate checks the configuration before any file is touched.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil batch config")
	}
	if !slices.Contains([]string{"text", "json", "csv"}, c.Format) {
		return fmt.Errorf("invalid output format %q (text, json or csv)", c.Format)
	}
	if c.AnnotatedDir != "" && !slices.Contains([]string{"jpeg", "jpg", "png"}, strings.ToLower(c.ImageFormat)) {
		return fmt.Errorf("invalid annotated image format %q (jpeg or png)", c.ImageFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	for _, p := range slices.Concat(c.IncludePatterns, c.ExcludePatterns) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", p, err)
		}
	}
	return nil
}

// annotatedExt returns the file extension for annotated output.
func (c *Config) annotatedExt() string {
	switch strings.ToLower(c.ImageFormat) {
	case "png":
		return ".png"
	default:
		return ".jpg"
	}
}

// workerCount resolves Workers (0 means one per CPU) for n files.
func (c *Config) workerCount(n int) int {
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(min(workers, n), 1)
}
