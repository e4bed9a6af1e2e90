package testutil

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	LargeSize  = ImageSize{1024, 768}
)

// Coin is a filled ellipse painted onto a synthetic scene.
type Coin struct {
	CX, CY float64     // Centre in pixels
	RX, RY float64     // Semi-axes in pixels
	Angle  float64     // Rotation of RX from +x towards +y, degrees
	Color  color.Color // Fill; nil means DefaultCoinColor
}

// Disk returns a circular coin of radius r centred at (cx, cy).
func Disk(cx, cy, r float64) Coin {
	return Coin{CX: cx, CY: cy, RX: r, RY: r}
}

// Area returns the ideal enclosed area of the coin.
func (c Coin) Area() float64 { return math.Pi * c.RX * c.RY }

func (c Coin) contains(x, y float64) bool {
	theta := c.Angle * math.Pi / 180
	dx, dy := x-c.CX, y-c.CY
	u := dx*math.Cos(theta) + dy*math.Sin(theta)
	v := -dx*math.Sin(theta) + dy*math.Cos(theta)
	return (u*u)/(c.RX*c.RX)+(v*v)/(c.RY*c.RY) <= 1
}

var (
	// DefaultBackground is the light table the coins lie on.
	DefaultBackground = color.NRGBA{R: 210, G: 205, B: 200, A: 255}
	// DefaultCoinColor is a dark, slightly warm metal tone.
	DefaultCoinColor = color.NRGBA{R: 70, G: 60, B: 40, A: 255}
)

// SceneConfig describes a synthetic coin photograph.
type SceneConfig struct {
	Size       ImageSize
	Background color.Color
	Coins      []Coin
	// Blur softens coin edges with a Gaussian of this radius; 0 keeps them hard.
	Blur float64
}

// DefaultScene returns two well separated coins on a medium canvas.
func DefaultScene() SceneConfig {
	return SceneConfig{
		Size:       MediumSize,
		Background: DefaultBackground,
		Coins: []Coin{
			Disk(160, 240, 60),
			Disk(460, 240, 70),
		},
	}
}

// GenerateCoinImage paints the scene. Pixel centres inside a coin take its
// color; everything else takes the background.
func GenerateCoinImage(cfg SceneConfig) *image.NRGBA {
	bg := cfg.Background
	if bg == nil {
		bg = DefaultBackground
	}
	img := imaging.New(cfg.Size.Width, cfg.Size.Height, bg)
	for _, c := range cfg.Coins {
		col := c.Color
		if col == nil {
			col = DefaultCoinColor
		}
		r := math.Max(c.RX, c.RY)
		x0 := max(0, int(math.Floor(c.CX-r)))
		y0 := max(0, int(math.Floor(c.CY-r)))
		x1 := min(cfg.Size.Width-1, int(math.Ceil(c.CX+r)))
		y1 := min(cfg.Size.Height-1, int(math.Ceil(c.CY+r)))
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				if c.contains(float64(x), float64(y)) {
					img.Set(x, y, col)
				}
			}
		}
	}
	if cfg.Blur > 0 {
		return imaging.Clone(blur.Gaussian(img, cfg.Blur))
	}
	return img
}

// CreateTestImage returns a uniformly colored image.
func CreateTestImage(width, height int, backgroundColor color.Color) *image.NRGBA {
	return imaging.New(width, height, backgroundColor)
}

// SaveImage saves an image as PNG to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// WriteScene renders cfg and saves it as dir/name, returning the path.
func WriteScene(t *testing.T, dir, name string, cfg SceneConfig) string {
	t.Helper()
	path := filepath.Join(dir, name)
	SaveImage(t, GenerateCoinImage(cfg), path)
	return path
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")

	return img
}

// CountPixels returns how many pixels of img equal col exactly.
func CountPixels(img image.Image, col color.Color) int {
	want := color.NRGBAModel.Convert(col)
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.NRGBAModel.Convert(img.At(x, y)) == want {
				n++
			}
		}
	}
	return n
}
