package pipeline

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/MeKo-Tech/coincount/internal/utils"
)

// RenderBoxes draws the bounding box of every counted object over img and
// returns an RGBA copy.
func RenderBoxes(img image.Image, res *CountResult, boxColor color.Color) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	if res == nil {
		return dst
	}
	for _, obj := range res.Objects {
		utils.DrawRect(dst, obj.Box.ToRect(dst.Bounds()), boxColor, 1)
	}
	return dst
}
