package detector

import "github.com/MeKo-Tech/coincount/internal/mempool"

// ThresholdConfig holds configuration for adaptive binarization.
type ThresholdConfig struct {
	BlockSize int     // Odd window edge length, >= 3 (default: 11)
	Bias      float64 // Subtracted from the local mean (default: 1)
	Invert    bool    // Foreground where the pixel is darker than the local threshold (default: true)
}

// DefaultThresholdConfig returns the default adaptive threshold configuration.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		BlockSize: 11,
		Bias:      1,
		Invert:    true,
	}
}

func (c ThresholdConfig) validate() error {
	if c.BlockSize < 3 || c.BlockSize%2 == 0 {
		return invalidInput("adaptive window %d must be odd and >= 3", c.BlockSize)
	}
	return nil
}

// AdaptiveThreshold binarizes src against a Gaussian-weighted local mean.
// The threshold of each pixel is mean - Bias over a BlockSize window with
// replicated borders. With Invert set a pixel becomes Foreground when it is
// strictly below its threshold, otherwise when strictly above.
func AdaptiveThreshold(src GrayBuffer, cfg ThresholdConfig) (GrayBuffer, error) {
	if err := src.Validate(); err != nil {
		return GrayBuffer{}, err
	}
	if err := cfg.validate(); err != nil {
		return GrayBuffer{}, err
	}
	kernel, err := GaussianKernel(cfg.BlockSize, 0)
	if err != nil {
		return GrayBuffer{}, err
	}
	mean := convolveSeparable(src, kernel, BorderReplicate)
	defer mempool.PutFloat64(mean)

	out := GrayBuffer{Width: src.Width, Height: src.Height, Pix: mempool.GetUint8(len(src.Pix))}
	for i, v := range src.Pix {
		t := mean[i] - cfg.Bias
		p := float64(v)
		if (cfg.Invert && p < t) || (!cfg.Invert && p > t) {
			out.Pix[i] = Foreground
		}
	}
	return out, nil
}
