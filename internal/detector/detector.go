package detector

import (
	"time"

	"github.com/MeKo-Tech/coincount/internal/mempool"
)

// Config holds every tunable of the counting pipeline.
type Config struct {
	BlurKernelSize int     // Odd Gaussian kernel edge length (default: 15)
	BlurSigma      float64 // <= 0 derives sigma from the kernel size
	Threshold      ThresholdConfig
	Morph          MorphConfig
	Area           AreaConfig
	Annotate       AnnotateConfig
	KeepMask       bool // Return the cleaned mask in Result.Mask
}

// DefaultConfig returns the configuration used for coins photographed on a
// light, even background.
func DefaultConfig() Config {
	return Config{
		BlurKernelSize: 15,
		Threshold:      DefaultThresholdConfig(),
		Morph:          DefaultMorphConfig(),
		Area:           DefaultAreaConfig(),
		Annotate:       DefaultAnnotateConfig(),
	}
}

// Validate reports the first invalid setting as ErrInvalidConfig.
func (c Config) Validate() error {
	if c.BlurKernelSize <= 0 || c.BlurKernelSize%2 == 0 {
		return invalidConfig("blur kernel size %d must be odd and positive", c.BlurKernelSize)
	}
	if c.Threshold.BlockSize < 3 || c.Threshold.BlockSize%2 == 0 {
		return invalidConfig("adaptive window %d must be odd and >= 3", c.Threshold.BlockSize)
	}
	if err := c.Morph.validate(); err != nil {
		return err
	}
	if err := c.Area.validate(); err != nil {
		return err
	}
	return c.Annotate.validate()
}

// StageTimings records wall time spent per stage.
type StageTimings struct {
	Grayscale time.Duration `json:"grayscale_ns"`
	Blur      time.Duration `json:"blur_ns"`
	Threshold time.Duration `json:"threshold_ns"`
	Morph     time.Duration `json:"morphology_ns"`
	Contours  time.Duration `json:"contours_ns"`
	Classify  time.Duration `json:"classify_ns"`
	Annotate  time.Duration `json:"annotate_ns"`
}

// Total sums all stage timings.
func (t StageTimings) Total() time.Duration {
	return t.Grayscale + t.Blur + t.Threshold + t.Morph + t.Contours + t.Classify + t.Annotate
}

// Result is the outcome of one pipeline run.
type Result struct {
	ObjectCount int // Always len(Detections)
	Detections  []Detection
	Annotated   ColorBuffer // Fresh buffer; the input is untouched
	Mask        GrayBuffer  // Cleaned binary mask, only with Config.KeepMask
	Stats       ClassifyStats
	Timings     StageTimings
}

// Ellipses returns the fitted ellipse of every detection in order.
func (r *Result) Ellipses() []Ellipse {
	out := make([]Ellipse, len(r.Detections))
	for i, d := range r.Detections {
		out[i] = d.Ellipse
	}
	return out
}

// Segment runs grayscale, blur, adaptive threshold and morphological cleanup
// and returns the cleaned binary mask.
func Segment(img ColorBuffer, cfg Config) (GrayBuffer, error) {
	var t StageTimings
	return segment(img, cfg, &t)
}

func segment(img ColorBuffer, cfg Config, t *StageTimings) (GrayBuffer, error) {
	start := time.Now()
	gray, err := Grayscale(img)
	if err != nil {
		return GrayBuffer{}, stageErr(StageGrayscale, err)
	}
	t.Grayscale = time.Since(start)

	start = time.Now()
	blurred, err := GaussianBlur(gray, cfg.BlurKernelSize, cfg.BlurSigma)
	if err != nil {
		return GrayBuffer{}, stageErr(StageBlur, err)
	}
	t.Blur = time.Since(start)
	mempool.PutUint8(gray.Pix)

	start = time.Now()
	binary, err := AdaptiveThreshold(blurred, cfg.Threshold)
	if err != nil {
		return GrayBuffer{}, stageErr(StageThreshold, err)
	}
	t.Threshold = time.Since(start)
	mempool.PutUint8(blurred.Pix)

	start = time.Now()
	cleaned, err := ApplyMorphologicalOperation(binary, cfg.Morph)
	if err != nil {
		return GrayBuffer{}, stageErr(StageMorph, err)
	}
	t.Morph = time.Since(start)
	mempool.PutUint8(binary.Pix)
	return cleaned, nil
}

// SegmentAndCount runs the full pipeline on img: segmentation, external
// region extraction, area band filtering, ellipse fitting and annotation.
// Any failure aborts the run and is returned as a *StageError.
func SegmentAndCount(img ColorBuffer, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, stageErr(StageConfig, err)
	}
	if err := img.Validate(); err != nil {
		return nil, stageErr(StageGrayscale, err)
	}

	res := &Result{}
	mask, err := segment(img, cfg, &res.Timings)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	regions, err := ExtractRegions(mask)
	if err != nil {
		return nil, stageErr(StageContours, err)
	}
	res.Timings.Contours = time.Since(start)

	start = time.Now()
	detections, stats, err := Classify(regions, cfg.Area)
	if err != nil {
		return nil, stageErr(StageClassify, err)
	}
	res.Timings.Classify = time.Since(start)
	res.Detections = detections
	res.Stats = stats
	res.ObjectCount = len(detections)

	start = time.Now()
	annotated, err := Annotate(img, res.Ellipses(), res.ObjectCount, cfg.Annotate)
	if err != nil {
		return nil, stageErr(StageAnnotate, err)
	}
	res.Timings.Annotate = time.Since(start)
	res.Annotated = annotated

	if cfg.KeepMask {
		res.Mask = mask
	}
	return res, nil
}
