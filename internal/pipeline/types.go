package pipeline

import (
	"image"

	"github.com/MeKo-Tech/coincount/internal/detector"
	"github.com/MeKo-Tech/coincount/internal/utils"
)

// ObjectResult describes one counted coin in image coordinates.
type ObjectResult struct {
	Index       int         `json:"index"`
	Center      utils.Point `json:"center"`
	MajorAxis   float64     `json:"major_axis"`
	MinorAxis   float64     `json:"minor_axis"`
	Angle       float64     `json:"angle"`
	Area        float64     `json:"area"`
	Perimeter   float64     `json:"perimeter"`
	Circularity float64     `json:"circularity"`
	Box         utils.Box   `json:"box"`
}

// CountResult is the per-image aggregated output.
type CountResult struct {
	Source      string                 `json:"source,omitempty"`
	Width       int                    `json:"width"`
	Height      int                    `json:"height"`
	ObjectCount int                    `json:"object_count"`
	Objects     []ObjectResult         `json:"objects"`
	Stats       detector.ClassifyStats `json:"stats"`
	Processing  struct {
		DecodeNs       int64 `json:"decode_ns"`
		SegmentationNs int64 `json:"segmentation_ns"`
		ContoursNs     int64 `json:"contours_ns"`
		ClassifyNs     int64 `json:"classify_ns"`
		AnnotateNs     int64 `json:"annotate_ns"`
		TotalNs        int64 `json:"total_ns"`
	} `json:"processing"`

	Annotated image.Image `json:"-"`
	Mask      image.Image `json:"-"`
}

func newCountResult(res *detector.Result, width, height int) *CountResult {
	out := &CountResult{
		Width:       width,
		Height:      height,
		ObjectCount: res.ObjectCount,
		Objects:     make([]ObjectResult, 0, len(res.Detections)),
		Stats:       res.Stats,
	}
	for i, d := range res.Detections {
		out.Objects = append(out.Objects, ObjectResult{
			Index:       i,
			Center:      d.Ellipse.Center,
			MajorAxis:   d.Ellipse.MajorAxis,
			MinorAxis:   d.Ellipse.MinorAxis,
			Angle:       d.Ellipse.Angle,
			Area:        d.Area,
			Perimeter:   d.Perimeter,
			Circularity: d.Circularity,
			Box:         utils.BoxFromRect(d.Bounds),
		})
	}
	t := res.Timings
	out.Processing.SegmentationNs = (t.Grayscale + t.Blur + t.Threshold + t.Morph).Nanoseconds()
	out.Processing.ContoursNs = t.Contours.Nanoseconds()
	out.Processing.ClassifyNs = t.Classify.Nanoseconds()
	out.Processing.AnnotateNs = t.Annotate.Nanoseconds()
	out.Annotated = res.Annotated.Image()
	if len(res.Mask.Pix) > 0 {
		out.Mask = res.Mask.Image()
	}
	return out
}
