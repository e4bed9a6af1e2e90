package detector

import "github.com/MeKo-Tech/coincount/internal/mempool"

// BT.601 luma weights in 14-bit fixed point (0.299, 0.587, 0.114).
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

// Grayscale reduces an RGB buffer to luminance using the BT.601 weights
// Y = 0.299 R + 0.587 G + 0.114 B, rounded to the nearest integer.
func Grayscale(src ColorBuffer) (GrayBuffer, error) {
	if err := src.Validate(); err != nil {
		return GrayBuffer{}, err
	}
	out := GrayBuffer{Width: src.Width, Height: src.Height, Pix: mempool.GetUint8(src.Width * src.Height)}
	for i := range out.Pix {
		r := uint32(src.Pix[i*3])
		g := uint32(src.Pix[i*3+1])
		b := uint32(src.Pix[i*3+2])
		out.Pix[i] = uint8((lumaR*r + lumaG*g + lumaB*b + lumaRound) >> lumaShift)
	}
	return out, nil
}
