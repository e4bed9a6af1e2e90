package config

import (
	"fmt"
	"image"
	"image/color"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/fetch"
	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

const (
	infoLevel     = "info"
	formatText    = "text"
	bytesPerMB    = 1 << 20
	defaultLocale = "en"
)

var (
	validLogLevels     = []string{"debug", infoLevel, "warn", "error"}
	validOutputFormats = []string{formatText, "json", "csv"}
	validImageFormats  = []string{"jpeg", "jpg", "png"}
)

// DefaultConfig returns a configuration with sensible defaults. Segmentation and
// annotation values mirror detector.DefaultConfig.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	par := pipeline.DefaultParallelConfig()
	fc := fetch.DefaultConfig()

	return Config{
		LogLevel: infoLevel,
		Verbose:  false,
		Segmentation: SegmentationConfig{
			BlurKernelSize:     det.BlurKernelSize,
			BlurSigma:          det.BlurSigma,
			AdaptiveWindow:     det.Threshold.BlockSize,
			AdaptiveBias:       det.Threshold.Bias,
			Invert:             det.Threshold.Invert,
			MorphOperation:     det.Morph.Operation.String(),
			ClosingKernelShape: det.Morph.Shape.String(),
			ClosingKernelSize:  det.Morph.KernelSize,
			ClosingIterations:  det.Morph.Iterations,
			AreaMin:            det.Area.Min,
			AreaMax:            det.Area.Max,
		},
		Annotation: AnnotationConfig{
			Enabled:          det.Annotate.Enabled,
			EllipseColor:     utils.HexColor(det.Annotate.EllipseColor),
			EllipseThickness: det.Annotate.EllipseThickness,
			TextColor:        utils.HexColor(det.Annotate.TextColor),
			TextAnchorX:      det.Annotate.TextAnchor.X,
			TextAnchorY:      det.Annotate.TextAnchor.Y,
			TextScale:        det.Annotate.TextScale,
			DrawBoxes:        false,
			BoxColor:         "#ff0000",
		},
		Output: OutputConfig{
			Format:      formatText,
			ImageFormat: "jpeg",
			JPEGQuality: 90,
			Locale:      defaultLocale,
		},
		Server: ServerConfig{
			Host:             "localhost",
			Port:             8080,
			CORSOrigin:       "*",
			MaxUploadMB:      50,
			TimeoutSec:       30,
			ShutdownTimeout:  10,
			WebSocketEnabled: true,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDayMB:   1024,
			},
		},
		Fetch: FetchConfig{
			TimeoutSec:    int(fc.Timeout / time.Second),
			MaxDownloadMB: int(fc.MaxBytes / bytesPerMB),
			UserAgent:     fc.UserAgent,
		},
		Batch: BatchConfig{
			Workers:         par.MaxWorkers,
			Recursive:       false,
			ContinueOnError: false,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(validOutputFormats, ", "))
	}
	if !slices.Contains(validImageFormats, strings.ToLower(c.Output.ImageFormat)) {
		return fmt.Errorf("invalid image format: %s (must be one of: %s)",
			c.Output.ImageFormat, strings.Join(validImageFormats, ", "))
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 1 and 100)", c.Output.JPEGQuality)
	}

	if err := c.validateColors(); err != nil {
		return err
	}
	if _, err := detector.ParseMorphologicalOp(c.Segmentation.MorphOperation); err != nil {
		return fmt.Errorf("invalid segmentation.morph_operation: %w", err)
	}
	if _, err := detector.ParseElementShape(c.Segmentation.ClosingKernelShape); err != nil {
		return fmt.Errorf("invalid segmentation.closing_kernel_shape: %w", err)
	}
	if err := c.ToPipelineConfig().Detector.Validate(); err != nil {
		return fmt.Errorf("invalid segmentation: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if rl := c.Server.RateLimit; rl.Enabled {
		if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
			return fmt.Errorf("invalid rate limit: limits must not be negative")
		}
	}

	if c.Fetch.TimeoutSec <= 0 {
		return fmt.Errorf("invalid fetch timeout: %d (must be positive)", c.Fetch.TimeoutSec)
	}
	if c.Fetch.MaxDownloadMB <= 0 {
		return fmt.Errorf("invalid max download size: %d (must be positive)", c.Fetch.MaxDownloadMB)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

func (c *Config) validateColors() error {
	for _, kv := range [][2]string{
		{"annotation.ellipse_color", c.Annotation.EllipseColor},
		{"annotation.text_color", c.Annotation.TextColor},
		{"annotation.box_color", c.Annotation.BoxColor},
	} {
		if _, err := utils.ParseHexColor(kv[1]); err != nil {
			return fmt.Errorf("invalid %s: %w", kv[0], err)
		}
	}
	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration.
// Unparseable values fall back to the detector defaults; call Validate first to
// surface them as errors.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Detector = c.toDetectorConfig()
	cfg.Fetch = c.ToFetchConfig()
	cfg.ImageFormat = strings.ToLower(c.Output.ImageFormat)
	cfg.JPEGQuality = c.Output.JPEGQuality
	cfg.DrawBoxes = c.Annotation.DrawBoxes
	cfg.BoxColor = parseColorOr(c.Annotation.BoxColor, cfg.BoxColor)
	if c.Batch.Workers > 0 {
		cfg.Parallel.MaxWorkers = c.Batch.Workers
	}
	return cfg
}

// toDetectorConfig converts to detector.Config.
func (c *Config) toDetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	s := c.Segmentation

	cfg.BlurKernelSize = s.BlurKernelSize
	cfg.BlurSigma = s.BlurSigma
	cfg.Threshold.BlockSize = s.AdaptiveWindow
	cfg.Threshold.Bias = s.AdaptiveBias
	cfg.Threshold.Invert = s.Invert
	if op, err := detector.ParseMorphologicalOp(s.MorphOperation); err == nil {
		cfg.Morph.Operation = op
	}
	if shape, err := detector.ParseElementShape(s.ClosingKernelShape); err == nil {
		cfg.Morph.Shape = shape
	}
	cfg.Morph.KernelSize = s.ClosingKernelSize
	cfg.Morph.Iterations = s.ClosingIterations
	cfg.Area = detector.AreaConfig{Min: s.AreaMin, Max: s.AreaMax}

	a := c.Annotation
	cfg.Annotate.Enabled = a.Enabled
	cfg.Annotate.EllipseColor = parseColorOr(a.EllipseColor, cfg.Annotate.EllipseColor)
	cfg.Annotate.EllipseThickness = a.EllipseThickness
	cfg.Annotate.TextColor = parseColorOr(a.TextColor, cfg.Annotate.TextColor)
	cfg.Annotate.TextAnchor = image.Pt(a.TextAnchorX, a.TextAnchorY)
	cfg.Annotate.TextScale = a.TextScale

	cfg.KeepMask = c.Output.MaskDir != ""
	return cfg
}

// ToFetchConfig converts the fetch section to fetch.Config.
func (c *Config) ToFetchConfig() fetch.Config {
	cfg := fetch.DefaultConfig()
	if c.Fetch.TimeoutSec > 0 {
		cfg.Timeout = time.Duration(c.Fetch.TimeoutSec) * time.Second
	}
	if c.Fetch.MaxDownloadMB > 0 {
		cfg.MaxBytes = int64(c.Fetch.MaxDownloadMB) * bytesPerMB
	}
	if c.Fetch.UserAgent != "" {
		cfg.UserAgent = c.Fetch.UserAgent
	}
	return cfg
}

func parseColorOr(s string, fallback color.RGBA) color.RGBA {
	c, err := utils.ParseHexColor(s)
	if err != nil {
		return fallback
	}
	return c
}
