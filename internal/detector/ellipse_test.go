package detector

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEllipse(cx, cy, a, b, angleDeg float64, n int) []utils.Point {
	e := Ellipse{Center: utils.Point{X: cx, Y: cy}, MajorAxis: 2 * a, MinorAxis: 2 * b, Angle: angleDeg}
	theta := angleDeg * math.Pi / 180
	pts := make([]utils.Point, n)
	for i := range n {
		phi := 2 * math.Pi * float64(i) / float64(n)
		u, v := a*math.Cos(phi), b*math.Sin(phi)
		pts[i] = utils.Point{
			X: e.Center.X + u*math.Cos(theta) - v*math.Sin(theta),
			Y: e.Center.Y + u*math.Sin(theta) + v*math.Cos(theta),
		}
	}
	return pts
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 180)
	return math.Min(d, 180-d)
}

func TestFitEllipse_RecoversRotatedEllipse(t *testing.T) {
	pts := sampleEllipse(100, 80, 50, 30, 30, 40)

	e, err := FitEllipse(pts)
	require.NoError(t, err)
	assert.InDelta(t, 100, e.Center.X, 1e-6)
	assert.InDelta(t, 80, e.Center.Y, 1e-6)
	assert.InDelta(t, 100, e.MajorAxis, 1e-6)
	assert.InDelta(t, 60, e.MinorAxis, 1e-6)
	assert.InDelta(t, 0, angleDiff(30, e.Angle), 1e-6)
}

func TestFitEllipse_Circle(t *testing.T) {
	e, err := FitEllipse(sampleEllipse(-20, 15, 12, 12, 0, 7))
	require.NoError(t, err)
	assert.InDelta(t, -20, e.Center.X, 1e-6)
	assert.InDelta(t, 15, e.Center.Y, 1e-6)
	assert.InDelta(t, 24, e.MajorAxis, 1e-6)
	assert.InDelta(t, 24, e.MinorAxis, 1e-6)
}

func TestFitEllipse_ExactlyFivePoints(t *testing.T) {
	e, err := FitEllipse(sampleEllipse(0, 0, 10, 5, 0, 5))
	require.NoError(t, err)
	assert.InDelta(t, 20, e.MajorAxis, 1e-6)
	assert.InDelta(t, 10, e.MinorAxis, 1e-6)
	assert.InDelta(t, 0, angleDiff(0, e.Angle), 1e-6)
}

func TestFitEllipse_InsufficientPoints(t *testing.T) {
	for n := range MinEllipsePoints {
		_, err := FitEllipse(sampleEllipse(0, 0, 10, 5, 0, max(n, 1))[:n])
		require.ErrorIs(t, err, ErrInsufficientPoints, "n=%d", n)
	}
}

func TestFitEllipse_Degenerate(t *testing.T) {
	line := []utils.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}, {X: 5, Y: 5}}
	_, err := FitEllipse(line)
	require.ErrorIs(t, err, ErrDegenerateFit)

	same := []utils.Point{{X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 3}}
	_, err = FitEllipse(same)
	require.ErrorIs(t, err, ErrDegenerateFit)
}

func TestFitEllipse_PixelContour(t *testing.T) {
	m := emptyMask(200, 200)
	for y := range 200 {
		for x := range 200 {
			dx, dy := float64(x)-90, float64(y)-110
			if dx*dx+dy*dy <= 60*60 {
				m.Pix[y*200+x] = Foreground
			}
		}
	}
	regions, err := ExtractRegions(m)
	require.NoError(t, err)
	require.Len(t, regions, 1)

	e, err := FitEllipse(utils.PointsFromImage(regions[0].Points))
	require.NoError(t, err)
	assert.InDelta(t, 90, e.Center.X, 0.5)
	assert.InDelta(t, 110, e.Center.Y, 0.5)
	assert.InDelta(t, 120, e.MajorAxis, 3)
	assert.InDelta(t, 120, e.MinorAxis, 3)
}

func TestEllipsePolygon_LiesOnEllipse(t *testing.T) {
	e := Ellipse{Center: utils.Point{X: 50, Y: 40}, MajorAxis: 80, MinorAxis: 30, Angle: 120}
	pts := e.Polygon()
	require.GreaterOrEqual(t, len(pts), 16)

	theta := e.Angle * math.Pi / 180
	a, b := e.MajorAxis/2, e.MinorAxis/2
	for _, p := range pts {
		dx, dy := p.X-e.Center.X, p.Y-e.Center.Y
		u := dx*math.Cos(theta) + dy*math.Sin(theta)
		v := -dx*math.Sin(theta) + dy*math.Cos(theta)
		assert.InDelta(t, 1.0, u*u/(a*a)+v*v/(b*b), 1e-9)
	}
	assert.InDelta(t, e.Area(), utils.PolygonArea(pts), 0.02*e.Area())
}

func TestFitEllipse_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fit recovers sampled ellipses", prop.ForAll(
		func(cx, cy, a, ratio, angle float64) bool {
			b := a * ratio
			e, err := FitEllipse(sampleEllipse(cx, cy, a, b, angle, 24))
			if err != nil {
				return false
			}
			ok := math.Abs(e.Center.X-cx) < 1e-4 &&
				math.Abs(e.Center.Y-cy) < 1e-4 &&
				math.Abs(e.MajorAxis-2*a) < 1e-4*a &&
				math.Abs(e.MinorAxis-2*b) < 1e-4*a &&
				e.MajorAxis >= e.MinorAxis &&
				e.Angle >= 0 && e.Angle < 180
			if ratio < 0.95 {
				ok = ok && angleDiff(angle, e.Angle) < 1e-3
			}
			return ok
		},
		gen.Float64Range(-500, 500),
		gen.Float64Range(-500, 500),
		gen.Float64Range(5, 300),
		gen.Float64Range(0.2, 1),
		gen.Float64Range(0, 180),
	))

	properties.TestingRun(t)
}
