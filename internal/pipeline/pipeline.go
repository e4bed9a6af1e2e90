package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/fetch"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

// Config holds configuration for the counting pipeline and its collaborators.
type Config struct {
	Detector    detector.Config
	Fetch       fetch.Config
	Constraints utils.ImageConstraints

	// Output encoding for annotated images
	ImageFormat string // "jpeg" or "png"
	JPEGQuality int

	// Optional bounding box overlay drawn on top of the annotation
	DrawBoxes bool
	BoxColor  color.RGBA

	Parallel ParallelConfig
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Detector:    detector.DefaultConfig(),
		Fetch:       fetch.DefaultConfig(),
		Constraints: utils.DefaultImageConstraints(),
		ImageFormat: "jpeg",
		JPEGQuality: 90,
		BoxColor:    color.RGBA{R: 255, A: 255},
		Parallel:    DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing configuration.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithBlurKernelSize sets the Gaussian smoothing kernel edge length.
func (b *Builder) WithBlurKernelSize(k int) *Builder {
	if k > 0 {
		b.cfg.Detector.BlurKernelSize = k
	}
	return b
}

// WithAdaptiveThreshold sets the local window size and bias.
func (b *Builder) WithAdaptiveThreshold(blockSize int, bias float64) *Builder {
	if blockSize > 0 {
		b.cfg.Detector.Threshold.BlockSize = blockSize
	}
	b.cfg.Detector.Threshold.Bias = bias
	return b
}

// WithInvert selects the threshold polarity. Inverted marks dark objects.
func (b *Builder) WithInvert(invert bool) *Builder {
	b.cfg.Detector.Threshold.Invert = invert
	return b
}

// WithMorphology configures the cleanup operation.
func (b *Builder) WithMorphology(op detector.MorphologicalOp, shape detector.ElementShape, size, iterations int) *Builder {
	b.cfg.Detector.Morph.Operation = op
	b.cfg.Detector.Morph.Shape = shape
	if size > 0 {
		b.cfg.Detector.Morph.KernelSize = size
	}
	if iterations >= 0 {
		b.cfg.Detector.Morph.Iterations = iterations
	}
	return b
}

// WithAreaBounds sets the exclusive area band.
func (b *Builder) WithAreaBounds(minArea, maxArea float64) *Builder {
	b.cfg.Detector.Area = detector.AreaConfig{Min: minArea, Max: maxArea}
	return b
}

// WithAnnotation toggles rendering of outlines and count text.
func (b *Builder) WithAnnotation(enabled bool) *Builder {
	b.cfg.Detector.Annotate.Enabled = enabled
	return b
}

// WithEllipseStyle sets the outline color and thickness.
func (b *Builder) WithEllipseStyle(c color.RGBA, thickness int) *Builder {
	b.cfg.Detector.Annotate.EllipseColor = c
	if thickness > 0 {
		b.cfg.Detector.Annotate.EllipseThickness = thickness
	}
	return b
}

// WithTextStyle sets the count text color, anchor and scale.
func (b *Builder) WithTextStyle(c color.RGBA, anchor image.Point, scale int) *Builder {
	b.cfg.Detector.Annotate.TextColor = c
	b.cfg.Detector.Annotate.TextAnchor = anchor
	if scale > 0 {
		b.cfg.Detector.Annotate.TextScale = scale
	}
	return b
}

// WithMask keeps the cleaned binary mask on each result.
func (b *Builder) WithMask(keep bool) *Builder {
	b.cfg.Detector.KeepMask = keep
	return b
}

// WithBoxes draws detection bounding boxes in the given color.
func (b *Builder) WithBoxes(enabled bool, c color.RGBA) *Builder {
	b.cfg.DrawBoxes = enabled
	if c.A != 0 {
		b.cfg.BoxColor = c
	}
	return b
}

// WithImageFormat sets the encoding of annotated images.
func (b *Builder) WithImageFormat(format string, quality int) *Builder {
	if format != "" {
		b.cfg.ImageFormat = strings.ToLower(format)
	}
	if quality > 0 {
		b.cfg.JPEGQuality = quality
	}
	return b
}

// WithFetchConfig sets download limits for URL inputs.
func (b *Builder) WithFetchConfig(cfg fetch.Config) *Builder {
	b.cfg.Fetch = cfg
	return b
}

// WithImageConstraints bounds accepted input dimensions.
func (b *Builder) WithImageConstraints(c utils.ImageConstraints) *Builder {
	b.cfg.Constraints = c
	return b
}

// WithParallelWorkers sets the number of parallel workers for batch processing.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithProgressCallback sets the progress callback for batch processing.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration without building.
func (b *Builder) Validate() error {
	if err := b.cfg.Detector.Validate(); err != nil {
		return err
	}
	switch b.cfg.ImageFormat {
	case "jpeg", "jpg", "png":
	default:
		return fmt.Errorf("%w: unsupported image format %q", detector.ErrInvalidConfig, b.cfg.ImageFormat)
	}
	if b.cfg.JPEGQuality < 1 || b.cfg.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality %d must be in 1..100", detector.ErrInvalidConfig, b.cfg.JPEGQuality)
	}
	return nil
}

// Pipeline runs the coin counter on decoded images, encoded bytes and URLs.
// It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	fetcher *fetch.Fetcher
}

// Build validates the configuration and returns a ready pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: b.cfg, fetcher: fetch.New(b.cfg.Fetch)}, nil
}

// WithFetcher replaces the URL fetcher.
func (p *Pipeline) WithFetcher(f *fetch.Fetcher) *Pipeline {
	if f != nil {
		p.fetcher = f
	}
	return p
}

// Close releases resources. The pipeline holds none today.
func (p *Pipeline) Close() error {
	if p == nil {
		return errors.New("pipeline not initialized")
	}
	return nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with the effective segmentation parameters.
func (p *Pipeline) Info() map[string]interface{} {
	d := p.cfg.Detector
	return map[string]interface{}{
		"segmentation": map[string]interface{}{
			"blur_kernel_size":    d.BlurKernelSize,
			"adaptive_window":     d.Threshold.BlockSize,
			"adaptive_bias":       d.Threshold.Bias,
			"invert":              d.Threshold.Invert,
			"morph_operation":     d.Morph.Operation.String(),
			"morph_kernel_shape":  d.Morph.Shape.String(),
			"morph_kernel_size":   d.Morph.KernelSize,
			"morph_iterations":    d.Morph.Iterations,
			"area_min":            d.Area.Min,
			"area_max":            d.Area.Max,
			"min_ellipse_points":  detector.MinEllipsePoints,
			"keep_mask":           d.KeepMask,
			"annotation_enabled":  d.Annotate.Enabled,
			"ellipse_color":       utils.HexColor(d.Annotate.EllipseColor),
			"ellipse_thickness":   d.Annotate.EllipseThickness,
			"text_color":          utils.HexColor(d.Annotate.TextColor),
			"text_scale":          d.Annotate.TextScale,
			"text_anchor":         []int{d.Annotate.TextAnchor.X, d.Annotate.TextAnchor.Y},
			"annotated_format":    p.cfg.ImageFormat,
			"annotated_jpeg_qual": p.cfg.JPEGQuality,
		},
		"parallel": map[string]interface{}{
			"max_workers":           p.cfg.Parallel.MaxWorkers,
			"has_progress_callback": p.cfg.Parallel.ProgressCallback != nil,
		},
	}
}
