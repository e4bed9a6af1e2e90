package utils

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// DrawPolygon draws connected line segments and closes the polygon.
func DrawPolygon(dst draw.Image, pts []Point, col color.Color, thickness int) {
	if len(pts) < 2 {
		return
	}
	ip := make([]image.Point, len(pts))
	for i, p := range pts {
		ip[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	for i := range ip {
		drawLine(dst, ip[i], ip[(i+1)%len(ip)], col, thickness)
	}
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst draw.Image, rect image.Rectangle, col color.Color, thickness int) {
	if rect.Empty() {
		return
	}
	corners := []Point{
		{X: float64(rect.Min.X), Y: float64(rect.Min.Y)},
		{X: float64(rect.Max.X - 1), Y: float64(rect.Min.Y)},
		{X: float64(rect.Max.X - 1), Y: float64(rect.Max.Y - 1)},
		{X: float64(rect.Min.X), Y: float64(rect.Max.Y - 1)},
	}
	DrawPolygon(dst, corners, col, thickness)
}

// drawLine draws a line between two points using a simple Bresenham variant.
func drawLine(dst draw.Image, a, b image.Point, col color.Color, thickness int) {
	x0, y0 := a.X, a.Y
	x1, y1 := b.X, b.Y
	dx := absInt(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -absInt(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		drawThickPoint(dst, x0, y0, col, thickness)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawThickPoint stamps a thickness x thickness square at (x, y).
func drawThickPoint(dst draw.Image, x, y int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	lo := (thickness - 1) / 2
	hi := thickness / 2
	bounds := dst.Bounds()
	for yy := y - lo; yy <= y+hi; yy++ {
		for xx := x - lo; xx <= x+hi; xx++ {
			if image.Pt(xx, yy).In(bounds) {
				dst.Set(xx, yy, col)
			}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
