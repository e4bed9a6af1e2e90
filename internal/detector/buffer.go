package detector

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	// Foreground is the mask value of object pixels.
	Foreground uint8 = 255
	// Background is the mask value of non-object pixels.
	Background uint8 = 0
)

// ColorBuffer is an interleaved 8-bit RGB raster.
type ColorBuffer struct {
	Width  int
	Height int
	Pix    []uint8 // len == Width*Height*3, row-major, R G B
}

// GrayBuffer is a single-channel 8-bit raster. A binary mask is a GrayBuffer
// whose samples are only Foreground or Background.
type GrayBuffer struct {
	Width  int
	Height int
	Pix    []uint8 // len == Width*Height, row-major
}

// NewColorBuffer allocates a zeroed color buffer.
func NewColorBuffer(width, height int) (ColorBuffer, error) {
	if width <= 0 || height <= 0 {
		return ColorBuffer{}, invalidInput("color buffer dimensions %dx%d must be positive", width, height)
	}
	return ColorBuffer{Width: width, Height: height, Pix: make([]uint8, width*height*3)}, nil
}

// NewGrayBuffer allocates a zeroed gray buffer.
func NewGrayBuffer(width, height int) (GrayBuffer, error) {
	if width <= 0 || height <= 0 {
		return GrayBuffer{}, invalidInput("gray buffer dimensions %dx%d must be positive", width, height)
	}
	return GrayBuffer{Width: width, Height: height, Pix: make([]uint8, width*height)}, nil
}

// Validate checks that the dimensions are positive and match the sample slice.
func (b ColorBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return invalidInput("color buffer dimensions %dx%d must be positive", b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*3 {
		return invalidInput("color buffer has %d samples, want %d", len(b.Pix), b.Width*b.Height*3)
	}
	return nil
}

// Validate checks that the dimensions are positive and match the sample slice.
func (g GrayBuffer) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return invalidInput("gray buffer dimensions %dx%d must be positive", g.Width, g.Height)
	}
	if len(g.Pix) != g.Width*g.Height {
		return invalidInput("gray buffer has %d samples, want %d", len(g.Pix), g.Width*g.Height)
	}
	return nil
}

// Clone returns a deep copy.
func (b ColorBuffer) Clone() ColorBuffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return ColorBuffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// Clone returns a deep copy.
func (g GrayBuffer) Clone() GrayBuffer {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return GrayBuffer{Width: g.Width, Height: g.Height, Pix: pix}
}

// At returns the sample at (x, y). Coordinates must be in range.
func (g GrayBuffer) At(x, y int) uint8 { return g.Pix[y*g.Width+x] }

// IsBinary reports whether every sample is Foreground or Background.
func (g GrayBuffer) IsBinary() bool {
	for _, v := range g.Pix {
		if v != Foreground && v != Background {
			return false
		}
	}
	return true
}

// ColorBufferFromImage converts a decoded image into an RGB buffer. Alpha is discarded.
func ColorBufferFromImage(img image.Image) (ColorBuffer, error) {
	if img == nil {
		return ColorBuffer{}, invalidInput("image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return ColorBuffer{}, invalidInput("image dimensions %dx%d must be positive", b.Dx(), b.Dy())
	}

	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	out := ColorBuffer{Width: w, Height: h, Pix: make([]uint8, w*h*3)}
	for y := range h {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := out.Pix[y*w*3 : (y+1)*w*3]
		for x := range w {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return out, nil
}

// Image converts the buffer to an opaque NRGBA image.
func (b ColorBuffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i, j := 0, 0; i+2 < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j] = b.Pix[i]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// Image converts the buffer to an 8-bit gray image.
func (g GrayBuffer) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	copy(img.Pix, g.Pix)
	return img
}

// colorBufferFromNRGBA copies the RGB channels of a zero-origin NRGBA image.
func colorBufferFromNRGBA(img *image.NRGBA) ColorBuffer {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := ColorBuffer{Width: w, Height: h, Pix: make([]uint8, w*h*3)}
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			o := (y*w + x) * 3
			out.Pix[o] = row[x*4]
			out.Pix[o+1] = row[x*4+1]
			out.Pix[o+2] = row[x*4+2]
		}
	}
	return out
}
