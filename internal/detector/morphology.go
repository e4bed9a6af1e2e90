package detector

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/coincount/internal/mempool"
)

// MorphologicalOp represents the type of morphological operation to perform.
type MorphologicalOp int

const (
	MorphNone MorphologicalOp = iota
	MorphDilate
	MorphErode
	MorphOpening // Erode N times then dilate N times - removes specks
	MorphClosing // Dilate N times then erode N times - fills gaps
)

func (op MorphologicalOp) String() string {
	switch op {
	case MorphNone:
		return "none"
	case MorphDilate:
		return "dilate"
	case MorphErode:
		return "erode"
	case MorphOpening:
		return "open"
	case MorphClosing:
		return "close"
	default:
		return fmt.Sprintf("MorphologicalOp(%d)", int(op))
	}
}

// ParseMorphologicalOp parses the names produced by String.
func ParseMorphologicalOp(s string) (MorphologicalOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return MorphNone, nil
	case "dilate":
		return MorphDilate, nil
	case "erode":
		return MorphErode, nil
	case "open", "opening":
		return MorphOpening, nil
	case "close", "closing":
		return MorphClosing, nil
	default:
		return MorphNone, invalidConfig("unknown morphological operation %q", s)
	}
}

// ElementShape is the footprint of a structuring element.
type ElementShape int

const (
	ShapeRect ElementShape = iota
	ShapeCross
	ShapeEllipse
)

func (s ElementShape) String() string {
	switch s {
	case ShapeRect:
		return "rect"
	case ShapeCross:
		return "cross"
	case ShapeEllipse:
		return "ellipse"
	default:
		return fmt.Sprintf("ElementShape(%d)", int(s))
	}
}

// ParseElementShape parses the names produced by String.
func ParseElementShape(s string) (ElementShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rect", "":
		return ShapeRect, nil
	case "cross":
		return ShapeCross, nil
	case "ellipse":
		return ShapeEllipse, nil
	default:
		return ShapeRect, invalidConfig("unknown structuring element shape %q", s)
	}
}

// StructuringElement is a small binary footprint anchored at its center.
type StructuringElement struct {
	Size int
	Mask []bool // Size*Size, row-major
}

// NewStructuringElement builds an odd-sized element of the given shape.
func NewStructuringElement(shape ElementShape, size int) (StructuringElement, error) {
	if size < 1 || size%2 == 0 {
		return StructuringElement{}, invalidConfig("structuring element size %d must be odd and positive", size)
	}
	half := size / 2
	mask := make([]bool, size*size)
	for y := range size {
		for x := range size {
			dx, dy := x-half, y-half
			switch shape {
			case ShapeRect:
				mask[y*size+x] = true
			case ShapeCross:
				mask[y*size+x] = dx == 0 || dy == 0
			case ShapeEllipse:
				r := float64(half) + 0.5
				mask[y*size+x] = float64(dx*dx+dy*dy) <= r*r
			default:
				return StructuringElement{}, invalidConfig("unknown structuring element shape %v", shape)
			}
		}
	}
	return StructuringElement{Size: size, Mask: mask}, nil
}

func (se StructuringElement) offsets() [][2]int {
	half := se.Size / 2
	out := make([][2]int, 0, len(se.Mask))
	for i, on := range se.Mask {
		if on {
			out = append(out, [2]int{i%se.Size - half, i/se.Size - half})
		}
	}
	return out
}

// MorphConfig holds configuration for morphological cleanup.
type MorphConfig struct {
	Operation  MorphologicalOp
	Shape      ElementShape
	KernelSize int // Edge length of the structuring element (default: 3)
	Iterations int // Repetitions of each primitive (default: 4)
}

// DefaultMorphConfig returns closing with a 3x3 rectangle applied 4 times.
func DefaultMorphConfig() MorphConfig {
	return MorphConfig{
		Operation:  MorphClosing,
		Shape:      ShapeRect,
		KernelSize: 3,
		Iterations: 4,
	}
}

func (c MorphConfig) validate() error {
	if c.Operation < MorphNone || c.Operation > MorphClosing {
		return invalidConfig("unknown morphological operation %d", int(c.Operation))
	}
	if c.Operation == MorphNone {
		return nil
	}
	if c.Iterations < 1 {
		return invalidConfig("morphology iterations %d must be >= 1", c.Iterations)
	}
	_, err := NewStructuringElement(c.Shape, c.KernelSize)
	return err
}

// ApplyMorphologicalOperation runs the configured operation on a binary mask
// and returns a new mask. Samples outside the raster never contribute.
func ApplyMorphologicalOperation(mask GrayBuffer, cfg MorphConfig) (GrayBuffer, error) {
	if err := mask.Validate(); err != nil {
		return GrayBuffer{}, err
	}
	if err := cfg.validate(); err != nil {
		return GrayBuffer{}, err
	}
	if cfg.Operation == MorphNone {
		return mask.Clone(), nil
	}
	se, err := NewStructuringElement(cfg.Shape, cfg.KernelSize)
	if err != nil {
		return GrayBuffer{}, err
	}
	if cfg.Operation == MorphClosing {
		return Close(mask, se, cfg.Iterations)
	}
	offs := se.offsets()

	result := mask.Clone()
	repeat := func(fn func(GrayBuffer, [][2]int) GrayBuffer) {
		for range cfg.Iterations {
			next := fn(result, offs)
			mempool.PutUint8(result.Pix)
			result = next
		}
	}
	switch cfg.Operation {
	case MorphDilate:
		repeat(dilate)
	case MorphErode:
		repeat(erode)
	case MorphOpening:
		repeat(erode)
		repeat(dilate)
	}
	return result, nil
}

// Close dilates iterations times then erodes iterations times with se.
func Close(mask GrayBuffer, se StructuringElement, iterations int) (GrayBuffer, error) {
	if err := mask.Validate(); err != nil {
		return GrayBuffer{}, err
	}
	if iterations < 1 {
		return GrayBuffer{}, invalidConfig("closing iterations %d must be >= 1", iterations)
	}
	offs := se.offsets()
	// Intermediate masks go back to the pool; the caller's mask is never released.
	result, owned := mask, false
	step := func(fn func(GrayBuffer, [][2]int) GrayBuffer) {
		next := fn(result, offs)
		if owned {
			mempool.PutUint8(result.Pix)
		}
		result, owned = next, true
	}
	for range iterations {
		step(dilate)
	}
	for range iterations {
		step(erode)
	}
	return result, nil
}

// dilate sets a pixel when any in-bounds pixel under the element is set.
func dilate(src GrayBuffer, offs [][2]int) GrayBuffer {
	w, h := src.Width, src.Height
	out := GrayBuffer{Width: w, Height: h, Pix: mempool.GetUint8(len(src.Pix))}
	for y := range h {
		for x := range w {
			for _, o := range offs {
				nx, ny := x+o[0], y+o[1]
				if nx >= 0 && nx < w && ny >= 0 && ny < h && src.Pix[ny*w+nx] != Background {
					out.Pix[y*w+x] = Foreground
					break
				}
			}
		}
	}
	return out
}

// erode keeps a pixel only when every in-bounds pixel under the element is set.
func erode(src GrayBuffer, offs [][2]int) GrayBuffer {
	w, h := src.Width, src.Height
	out := GrayBuffer{Width: w, Height: h, Pix: mempool.GetUint8(len(src.Pix))}
	for y := range h {
		for x := range w {
			keep := true
			for _, o := range offs {
				nx, ny := x+o[0], y+o[1]
				if nx >= 0 && nx < w && ny >= 0 && ny < h && src.Pix[ny*w+nx] == Background {
					keep = false
					break
				}
			}
			if keep {
				out.Pix[y*w+x] = Foreground
			}
		}
	}
	return out
}
