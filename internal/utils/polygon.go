package utils

import (
	"math"
	"sort"
)

// SignedPolygonArea returns the shoelace area of a closed polygon. The sign
// follows the vertex order: positive for counter-clockwise in a y-up frame.
func SignedPolygonArea(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := range n {
		a := pts[i]
		b := pts[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// PolygonArea returns the absolute shoelace area of a closed polygon.
// Fewer than three vertices enclose nothing.
func PolygonArea(pts []Point) float64 {
	return math.Abs(SignedPolygonArea(pts))
}

// PolygonPerimeter returns the length of the closed polyline through pts.
func PolygonPerimeter(pts []Point) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for i := range n {
		a := pts[i]
		b := pts[(i+1)%n]
		sum += math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return sum
}

// Circularity returns 4*pi*A/P^2, 1 for a disk and smaller for elongated or
// ragged shapes. A zero perimeter yields 0.
func Circularity(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. Returns the hull in CCW order without
// duplicating the first point at the end.
func ConvexHull(pts []Point) []Point {
	if len(pts) <= 1 {
		return append([]Point(nil), pts...)
	}
	p := append([]Point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = removeDuplicatePoints(p)
	if len(p) <= 2 {
		return p
	}

	hull := make([]Point, 0, 2*len(p))
	// lower
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	// upper
	lowerLen := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lowerLen && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull[:len(hull)-1]
}

func removeDuplicatePoints(p []Point) []Point {
	q := p[:0]
	for i, pt := range p {
		if i == 0 || pt != q[len(q)-1] {
			q = append(q, pt)
		}
	}
	return q
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
