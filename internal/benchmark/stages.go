package benchmark

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/mempool"
	"github.com/MeKo-Tech/coincount/internal/pipeline"
)

// Stage benchmark names in run order.
const (
	StageConvert   = "convert"
	StageGrayscale = "grayscale"
	StageBlur      = "blur"
	StageThreshold = "threshold"
	StageClosing   = "closing"
	StageSegment   = "segment"
	StageContours  = "contours"
	StageClassify  = "classify"
	StageAnnotate  = "annotate"
	StageDetector  = "segment_and_count"
	StagePipeline  = "pipeline"
)

// NewStageSuite prepares one benchmark per pipeline stage on img. Each stage
// runs on the output of the previous one, computed once up front, so a stage
// is timed in isolation. The segment benchmark times grayscale through
// closing as one unit. The last two benchmarks time the whole detector and
// the whole pipeline including image conversion.
// The returned close function releases the pipeline.
func NewStageSuite(img image.Image, cfg pipeline.Config) (*Suite, func() error, error) {
	if img == nil {
		return nil, nil, fmt.Errorf("%w: nil image", detector.ErrInvalidInput)
	}
	dc := cfg.Detector

	buf, err := detector.ColorBufferFromImage(img)
	if err != nil {
		return nil, nil, err
	}
	gray, err := detector.Grayscale(buf)
	if err != nil {
		return nil, nil, err
	}
	blurred, err := detector.GaussianBlur(gray, dc.BlurKernelSize, dc.BlurSigma)
	if err != nil {
		return nil, nil, err
	}
	binary, err := detector.AdaptiveThreshold(blurred, dc.Threshold)
	if err != nil {
		return nil, nil, err
	}
	mask, err := detector.ApplyMorphologicalOperation(binary, dc.Morph)
	if err != nil {
		return nil, nil, err
	}
	regions, err := detector.ExtractRegions(mask)
	if err != nil {
		return nil, nil, err
	}
	detections, _, err := detector.Classify(regions, dc.Area)
	if err != nil {
		return nil, nil, err
	}
	ellipses := (&detector.Result{Detections: detections}).Ellipses()

	pl, err := pipeline.NewBuilderFromConfig(cfg).Build()
	if err != nil {
		return nil, nil, err
	}

	// Stage outputs go back to the pool so repeated runs measure the
	// steady state of a long-lived process.
	s := NewSuite()
	s.Add(StageConvert, func() error {
		_, err := detector.ColorBufferFromImage(img)
		return err
	})
	s.Add(StageGrayscale, func() error {
		out, err := detector.Grayscale(buf)
		mempool.PutUint8(out.Pix)
		return err
	})
	s.Add(StageBlur, func() error {
		out, err := detector.GaussianBlur(gray, dc.BlurKernelSize, dc.BlurSigma)
		mempool.PutUint8(out.Pix)
		return err
	})
	s.Add(StageThreshold, func() error {
		out, err := detector.AdaptiveThreshold(blurred, dc.Threshold)
		mempool.PutUint8(out.Pix)
		return err
	})
	s.Add(StageClosing, func() error {
		out, err := detector.ApplyMorphologicalOperation(binary, dc.Morph)
		mempool.PutUint8(out.Pix)
		return err
	})
	s.Add(StageSegment, func() error {
		out, err := detector.Segment(buf, dc)
		mempool.PutUint8(out.Pix)
		return err
	})
	s.Add(StageContours, func() error {
		_, err := detector.ExtractRegions(mask)
		return err
	})
	s.Add(StageClassify, func() error {
		_, _, err := detector.Classify(regions, dc.Area)
		return err
	})
	s.Add(StageAnnotate, func() error {
		_, err := detector.Annotate(buf, ellipses, len(ellipses), dc.Annotate)
		return err
	})
	s.Add(StageDetector, func() error {
		_, err := detector.SegmentAndCount(buf, dc)
		return err
	})
	s.Add(StagePipeline, func() error {
		_, err := pl.ProcessImage(img)
		return err
	})
	return s, pl.Close, nil
}
