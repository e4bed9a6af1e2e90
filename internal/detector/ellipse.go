package detector

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/coincount/internal/utils"
	"gonum.org/v1/gonum/mat"
)

// MinEllipsePoints is the smallest point count a conic fit is attempted on.
const MinEllipsePoints = 5

// Ellipse is a fitted ellipse in image coordinates (y down).
type Ellipse struct {
	Center    utils.Point `json:"center"`
	MajorAxis float64     `json:"major_axis"` // Full length, >= MinorAxis
	MinorAxis float64     `json:"minor_axis"` // Full length
	Angle     float64     `json:"angle"`      // Major axis from +x towards +y in degrees, [0, 180)
}

// Area returns the enclosed area of the ellipse.
func (e Ellipse) Area() float64 {
	return math.Pi * e.MajorAxis * e.MinorAxis / 4
}

// FitEllipse fits an ellipse to pts in the least-squares sense using the
// direct conic fit of Fitzgibbon et al. in the numerically stable form of
// Halir and Flusser. Points are centred and scaled before solving.
func FitEllipse(pts []utils.Point) (Ellipse, error) {
	n := len(pts)
	if n < MinEllipsePoints {
		return Ellipse{}, fmt.Errorf("%w: got %d, need %d", ErrInsufficientPoints, n, MinEllipsePoints)
	}

	mx, my := 0.0, 0.0
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= float64(n)
	my /= float64(n)
	ss := 0.0
	for _, p := range pts {
		ss += (p.X-mx)*(p.X-mx) + (p.Y-my)*(p.Y-my)
	}
	scale := math.Sqrt(ss / (2 * float64(n)))
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return Ellipse{}, fmt.Errorf("%w: points coincide", ErrDegenerateFit)
	}

	d1 := mat.NewDense(n, 3, nil)
	d2 := mat.NewDense(n, 3, nil)
	for i, p := range pts {
		x := (p.X - mx) / scale
		y := (p.Y - my) / scale
		d1.SetRow(i, []float64{x * x, x * y, y * y})
		d2.SetRow(i, []float64{x, y, 1})
	}

	var s1, s2, s3 mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)

	var s3inv mat.Dense
	if err := s3inv.Inverse(&s3); err != nil {
		return Ellipse{}, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}
	// T = -S3^-1 S2^T maps quadratic coefficients to linear ones.
	var t mat.Dense
	t.Mul(&s3inv, s2.T())
	t.Scale(-1, &t)

	var m mat.Dense
	m.Mul(&s2, &t)
	m.Add(&s1, &m)

	// Premultiply by the inverse of the constraint matrix [[0,0,2],[0,-1,0],[2,0,0]].
	mp := mat.NewDense(3, 3, nil)
	for j := range 3 {
		mp.Set(0, j, m.At(2, j)/2)
		mp.Set(1, j, -m.At(1, j))
		mp.Set(2, j, m.At(0, j)/2)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(mp, mat.EigenRight); !ok {
		return Ellipse{}, fmt.Errorf("%w: eigen decomposition failed", ErrDegenerateFit)
	}
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	a1 := make([]float64, 3)
	found := false
	best := 0.0
	for j := range 3 {
		if math.Abs(imag(vals[j])) > 1e-12*(1+math.Abs(real(vals[j]))) {
			continue
		}
		a := real(vecs.At(0, j))
		b := real(vecs.At(1, j))
		c := real(vecs.At(2, j))
		cond := 4*a*c - b*b
		if cond > best {
			best = cond
			a1[0], a1[1], a1[2] = a, b, c
			found = true
		}
	}
	if !found {
		return Ellipse{}, fmt.Errorf("%w: no elliptic solution", ErrDegenerateFit)
	}
	var a2 mat.VecDense
	a2.MulVec(&t, mat.NewVecDense(3, a1))

	e, err := conicToEllipse(a1[0], a1[1], a1[2], a2.AtVec(0), a2.AtVec(1), a2.AtVec(2))
	if err != nil {
		return Ellipse{}, err
	}
	e.Center = utils.Point{X: mx + e.Center.X*scale, Y: my + e.Center.Y*scale}
	e.MajorAxis *= scale
	e.MinorAxis *= scale
	return e, nil
}

// conicToEllipse converts A x^2 + B xy + C y^2 + D x + E y + F = 0 into
// centre, full axis lengths and major-axis angle.
func conicToEllipse(a, b, c, d, e, f float64) (Ellipse, error) {
	den := b*b - 4*a*c
	if den >= 0 {
		return Ellipse{}, fmt.Errorf("%w: conic is not an ellipse", ErrDegenerateFit)
	}
	x0 := (2*c*d - b*e) / den
	y0 := (2*a*e - b*d) / den
	f0 := a*x0*x0 + b*x0*y0 + c*y0*y0 + d*x0 + e*y0 + f
	if a+c < 0 {
		a, b, c, f0 = -a, -b, -c, -f0
	}
	if f0 >= 0 {
		return Ellipse{}, fmt.Errorf("%w: imaginary ellipse", ErrDegenerateFit)
	}

	var es mat.EigenSym
	if ok := es.Factorize(mat.NewSymDense(2, []float64{a, b / 2, b / 2, c}), true); !ok {
		return Ellipse{}, fmt.Errorf("%w: eigen decomposition failed", ErrDegenerateFit)
	}
	vals := es.Values(nil) // ascending
	if vals[0] <= 0 {
		return Ellipse{}, fmt.Errorf("%w: quadratic form not positive definite", ErrDegenerateFit)
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	major := 2 * math.Sqrt(-f0/vals[0])
	minor := 2 * math.Sqrt(-f0/vals[1])
	if math.IsNaN(major) || math.IsNaN(minor) || math.IsInf(major, 0) {
		return Ellipse{}, fmt.Errorf("%w: non-finite axes", ErrDegenerateFit)
	}

	angle := math.Atan2(vecs.At(1, 0), vecs.At(0, 0)) * 180 / math.Pi
	angle = math.Mod(angle, 180)
	if angle < 0 {
		angle += 180
	}
	if angle >= 180 {
		angle = 0
	}
	return Ellipse{
		Center:    utils.Point{X: x0, Y: y0},
		MajorAxis: major,
		MinorAxis: minor,
		Angle:     angle,
	}, nil
}

// Polygon samples the ellipse outline as a closed polygon with roughly
// four-pixel edges, at least 16 and at most 360 vertices.
func (e Ellipse) Polygon() []utils.Point {
	a := e.MajorAxis / 2
	b := e.MinorAxis / 2
	n := int(math.Ceil(2 * math.Pi * math.Max(a, b) / 4))
	n = max(16, min(n, 360))
	theta := e.Angle * math.Pi / 180
	ct, st := math.Cos(theta), math.Sin(theta)
	pts := make([]utils.Point, n)
	for i := range n {
		phi := 2 * math.Pi * float64(i) / float64(n)
		u, v := a*math.Cos(phi), b*math.Sin(phi)
		pts[i] = utils.Point{
			X: e.Center.X + u*ct - v*st,
			Y: e.Center.Y + u*st + v*ct,
		}
	}
	return pts
}
