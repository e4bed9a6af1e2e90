package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageProcessingError reports a failure at the codec boundary. Operation is
// one of "load", "decode", "encode" or "validate".
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path      string
	Format    string
	SizeBytes int64
	Width     int
	Height    int
}

// LoadImage opens and decodes an image file, returning the image and metadata.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		err := &ImageProcessingError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
		return nil, ImageMetadata{}, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: err}
	}
	img, format, err := DecodeImage(data)
	if err != nil {
		return nil, ImageMetadata{}, err
	}
	b := img.Bounds()
	meta := ImageMetadata{
		Path:      path,
		Format:    format,
		SizeBytes: int64(len(data)),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
	return img, meta, nil
}

// DecodeImage decodes an encoded image held in memory.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: errors.New("empty image data")}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}
	return img, format, nil
}

// EncodeImage writes img in the given format ("jpeg", "jpg", "png", "bmp",
// "tiff"). Quality applies to JPEG only; values outside 1..100 fall back to 90.
func EncodeImage(w io.Writer, img image.Image, format string, quality int) error {
	if img == nil {
		return &ImageProcessingError{Operation: "encode", Err: errors.New("input image is nil")}
	}
	var err error
	switch strings.ToLower(format) {
	case "jpeg", "jpg", "":
		if quality < 1 || quality > 100 {
			quality = 90
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(w, img)
	case "bmp":
		err = bmp.Encode(w, img)
	case "tiff", "tif":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	return nil
}

// EncodeImageBytes is EncodeImage into a fresh buffer.
func EncodeImageBytes(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveImage encodes img to path, picking the format from the extension.
func SaveImage(path string, img image.Image, quality int) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	data, err := EncodeImageBytes(img, format, quality)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return &ImageProcessingError{Operation: "encode", Err: err}
	}
	return nil
}

// ContentType maps an output format name to its MIME type.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "bmp":
		return "image/bmp"
	case "tiff", "tif":
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}

// ImageConstraints bounds acceptable input dimensions.
type ImageConstraints struct {
	MaxWidth  int
	MaxHeight int
	MinWidth  int
	MinHeight int
}

// DefaultImageConstraints returns limits suited to photographs of coins.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MaxWidth:  12000,
		MaxHeight: 12000,
		MinWidth:  1,
		MinHeight: 1,
	}
}

// ValidateImageConstraints checks dimensions against the provided constraints.
func ValidateImageConstraints(img image.Image, constraints ImageConstraints) error {
	if img == nil {
		return &ImageProcessingError{Operation: "validate", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < constraints.MinWidth || h < constraints.MinHeight {
		return &ImageProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("image too small: %dx%d < %dx%d", w, h, constraints.MinWidth, constraints.MinHeight),
		}
	}
	if (constraints.MaxWidth > 0 && w > constraints.MaxWidth) || (constraints.MaxHeight > 0 && h > constraints.MaxHeight) {
		return &ImageProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("image too large: %dx%d > %dx%d", w, h, constraints.MaxWidth, constraints.MaxHeight),
		}
	}
	return nil
}
