package detector

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// AnnotateConfig controls how results are drawn onto the output image.
type AnnotateConfig struct {
	Enabled          bool
	EllipseColor     color.RGBA
	EllipseThickness int // Outline width in pixels (default: 2)
	TextColor        color.RGBA
	TextAnchor       image.Point // Baseline-left origin of the count text (default: 10,100)
	TextScale        int         // Integer magnification of the 7x13 bitmap font (default: 4)
}

// DefaultAnnotateConfig draws green outlines and a large blue count.
func DefaultAnnotateConfig() AnnotateConfig {
	return AnnotateConfig{
		Enabled:          true,
		EllipseColor:     color.RGBA{R: 0, G: 255, B: 0, A: 255},
		EllipseThickness: 2,
		TextColor:        color.RGBA{R: 0, G: 0, B: 255, A: 255},
		TextAnchor:       image.Pt(10, 100),
		TextScale:        4,
	}
}

func (c AnnotateConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.EllipseThickness < 1 {
		return invalidConfig("ellipse thickness %d must be >= 1", c.EllipseThickness)
	}
	if c.TextScale < 1 {
		return invalidConfig("text scale %d must be >= 1", c.TextScale)
	}
	return nil
}

// Annotate draws ellipse outlines and the object count onto a copy of src.
// The source buffer is never modified.
func Annotate(src ColorBuffer, ellipses []Ellipse, count int, cfg AnnotateConfig) (ColorBuffer, error) {
	if err := src.Validate(); err != nil {
		return ColorBuffer{}, err
	}
	if err := cfg.validate(); err != nil {
		return ColorBuffer{}, err
	}
	if !cfg.Enabled {
		return src.Clone(), nil
	}

	canvas := src.Image()
	for _, e := range ellipses {
		utils.DrawPolygon(canvas, e.Polygon(), cfg.EllipseColor, cfg.EllipseThickness)
	}
	drawLabel(canvas, strconv.Itoa(count), cfg)
	return colorBufferFromNRGBA(canvas), nil
}

// drawLabel renders text with the basic bitmap font, struck twice one pixel
// apart for weight, and magnified with nearest-neighbour sampling.
func drawLabel(dst draw.Image, text string, cfg AnnotateConfig) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()
	width := font.MeasureString(face, text).Ceil() + 1

	glyphs := image.NewAlpha(image.Rect(0, 0, width, height))
	d := &font.Drawer{Dst: glyphs, Src: image.Opaque, Face: face}
	for _, dx := range []int{0, 1} {
		d.Dot = fixed.P(dx, ascent)
		d.DrawString(text)
	}

	scale := cfg.TextScale
	mask := imaging.Resize(glyphs, width*scale, height*scale, imaging.NearestNeighbor)
	origin := image.Pt(cfg.TextAnchor.X, cfg.TextAnchor.Y-ascent*scale)
	r := image.Rectangle{Min: origin, Max: origin.Add(mask.Bounds().Size())}
	draw.DrawMask(dst, r, image.NewUniform(cfg.TextColor), image.Point{}, mask, image.Point{}, draw.Over)
}
