package detector

import (
	"math"

	"github.com/MeKo-Tech/coincount/internal/mempool"
)

// BorderMode selects how samples outside the raster are synthesized.
type BorderMode int

const (
	// BorderReflect101 mirrors around the edge sample without repeating it: gfedcb|abcdefgh|gfedcba.
	BorderReflect101 BorderMode = iota
	// BorderReplicate repeats the edge sample: aaaaaa|abcdefgh|hhhhhhh.
	BorderReplicate
)

func (m BorderMode) String() string {
	switch m {
	case BorderReflect101:
		return "reflect101"
	case BorderReplicate:
		return "replicate"
	default:
		return "unknown"
	}
}

// AutoSigma derives the Gaussian sigma for a kernel size when none is given.
func AutoSigma(kernelSize int) float64 {
	return 0.3*(float64(kernelSize-1)*0.5-1) + 0.8
}

// GaussianKernel returns a normalized 1-D Gaussian kernel. A sigma <= 0 is
// replaced by AutoSigma(size).
func GaussianKernel(size int, sigma float64) ([]float64, error) {
	if size <= 0 || size%2 == 0 {
		return nil, invalidInput("gaussian kernel size %d must be odd and positive", size)
	}
	if sigma <= 0 {
		sigma = AutoSigma(size)
	}
	k := make([]float64, size)
	half := size / 2
	scale := -0.5 / (sigma * sigma)
	sum := 0.0
	for i := range size {
		d := float64(i - half)
		k[i] = math.Exp(d * d * scale)
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k, nil
}

// borderIndex maps a possibly out-of-range index into [0, n).
func borderIndex(i, n int, mode BorderMode) int {
	if i >= 0 && i < n {
		return i
	}
	if mode == BorderReplicate || n == 1 {
		if i < 0 {
			return 0
		}
		return n - 1
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// indexTable precomputes the source index of every kernel tap for each output position.
func indexTable(n, size int, mode BorderMode) []int {
	half := size / 2
	tab := make([]int, n*size)
	for i := range n {
		for k := range size {
			tab[i*size+k] = borderIndex(i+k-half, n, mode)
		}
	}
	return tab
}

// convolveSeparable applies kernel horizontally then vertically and returns the
// unrounded result. The result comes from mempool; release it with
// mempool.PutFloat64.
func convolveSeparable(src GrayBuffer, kernel []float64, mode BorderMode) []float64 {
	w, h := src.Width, src.Height
	size := len(kernel)

	xs := indexTable(w, size, mode)
	tmp := mempool.GetFloat64(w * h)
	defer mempool.PutFloat64(tmp)
	for y := range h {
		row := src.Pix[y*w : (y+1)*w]
		out := tmp[y*w : (y+1)*w]
		for x := range w {
			taps := xs[x*size : (x+1)*size]
			acc := 0.0
			for k, sx := range taps {
				acc += kernel[k] * float64(row[sx])
			}
			out[x] = acc
		}
	}

	ys := indexTable(h, size, mode)
	dst := mempool.GetFloat64(w * h)
	for y := range h {
		taps := ys[y*size : (y+1)*size]
		out := dst[y*w : (y+1)*w]
		for k, sy := range taps {
			wk := kernel[k]
			in := tmp[sy*w : (sy+1)*w]
			for x := range w {
				out[x] += wk * in[x]
			}
		}
	}
	return dst
}

func roundToUint8(v float64) uint8 {
	r := math.Round(v)
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}

// GaussianBlur smooths src with a kernelSize x kernelSize Gaussian. Borders use
// BorderReflect101. A sigma <= 0 is derived from the kernel size.
func GaussianBlur(src GrayBuffer, kernelSize int, sigma float64) (GrayBuffer, error) {
	if err := src.Validate(); err != nil {
		return GrayBuffer{}, err
	}
	kernel, err := GaussianKernel(kernelSize, sigma)
	if err != nil {
		return GrayBuffer{}, err
	}
	sm := convolveSeparable(src, kernel, BorderReflect101)
	defer mempool.PutFloat64(sm)
	out := GrayBuffer{Width: src.Width, Height: src.Height, Pix: mempool.GetUint8(len(sm))}
	for i, v := range sm {
		out.Pix[i] = roundToUint8(v)
	}
	return out, nil
}
