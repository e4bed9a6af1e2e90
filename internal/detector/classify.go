package detector

import (
	"errors"
	"image"
	"math"

	"github.com/MeKo-Tech/coincount/internal/utils"
)

// AreaConfig is the exclusive area band a region must fall in to be counted.
type AreaConfig struct {
	Min float64 // Exclusive lower bound in square pixels (default: 5000)
	Max float64 // Exclusive upper bound in square pixels (default: 35000)
}

// DefaultAreaConfig returns the default area band.
func DefaultAreaConfig() AreaConfig {
	return AreaConfig{Min: 5000, Max: 35000}
}

func (c AreaConfig) validate() error {
	if math.IsNaN(c.Min) || math.IsNaN(c.Max) || math.IsInf(c.Min, 0) || math.IsInf(c.Max, 0) {
		return invalidConfig("area bounds must be finite")
	}
	if c.Min < 0 {
		return invalidConfig("area_min %.1f must be >= 0", c.Min)
	}
	if c.Min >= c.Max {
		return invalidConfig("area_min %.1f must be < area_max %.1f", c.Min, c.Max)
	}
	return nil
}

// Accepts reports whether area lies strictly inside the band.
func (c AreaConfig) Accepts(area float64) bool {
	return area > c.Min && area < c.Max
}

// Detection is one counted object.
type Detection struct {
	Ellipse     Ellipse         `json:"ellipse"`
	Area        float64         `json:"area"`        // Shoelace area of the region border
	Perimeter   float64         `json:"perimeter"`   // Length of the region border
	Circularity float64         `json:"circularity"` // 4*pi*A/P^2
	Solidity    float64         `json:"solidity"`    // Area over convex hull area
	Bounds      image.Rectangle `json:"-"`
	Region      int             `json:"region"` // Index into the extracted regions
}

// ClassifyStats counts why regions were accepted or rejected.
type ClassifyStats struct {
	Regions            int `json:"regions"`
	TooSmall           int `json:"too_small"`
	TooLarge           int `json:"too_large"`
	InsufficientPoints int `json:"insufficient_points"`
	Degenerate         int `json:"degenerate"`
	Accepted           int `json:"accepted"`
}

// ContourArea returns the absolute shoelace area enclosed by a region border.
func ContourArea(pts []image.Point) float64 {
	return utils.PolygonArea(utils.PointsFromImage(pts))
}

// Classify filters regions by area and fits an ellipse to each survivor.
// Regions outside the band, with fewer than MinEllipsePoints border points or
// with a degenerate fit are dropped without error. Detections keep region order.
func Classify(regions []Region, cfg AreaConfig) ([]Detection, ClassifyStats, error) {
	if err := cfg.validate(); err != nil {
		return nil, ClassifyStats{}, err
	}
	stats := ClassifyStats{Regions: len(regions)}
	detections := make([]Detection, 0, len(regions))

	for i, r := range regions {
		pts := utils.PointsFromImage(r.Points)
		area := utils.PolygonArea(pts)
		if area <= cfg.Min {
			stats.TooSmall++
			continue
		}
		if area >= cfg.Max {
			stats.TooLarge++
			continue
		}

		el, err := FitEllipse(pts)
		switch {
		case errors.Is(err, ErrInsufficientPoints):
			stats.InsufficientPoints++
			continue
		case errors.Is(err, ErrDegenerateFit):
			stats.Degenerate++
			continue
		case err != nil:
			return nil, stats, err
		}

		perim := utils.PolygonPerimeter(pts)
		solidity := 0.0
		if hullArea := utils.PolygonArea(utils.ConvexHull(pts)); hullArea > 0 {
			solidity = area / hullArea
		}
		detections = append(detections, Detection{
			Ellipse:     el,
			Area:        area,
			Perimeter:   perim,
			Circularity: utils.Circularity(area, perim),
			Solidity:    solidity,
			Bounds:      r.Bounds,
			Region:      i,
		})
	}
	stats.Accepted = len(detections)
	return detections, stats, nil
}
