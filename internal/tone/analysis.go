package tone

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// maxWindow caps the analysis window so long buffers stay cheap to analyze
const maxWindow = 1 << 16

// Spectrum is the result of analyzing one channel of a buffer
type Spectrum struct {
	Peak     float64 // frequency of the strongest bin, Hz
	BinWidth float64 // frequency resolution, Hz
	Window   int     // number of frames analyzed
}

// DominantFrequency returns the frequency with the most energy in channel 0
// of an interleaved buffer. The window is the largest power of two of frames
// available, up to 65536.
func DominantFrequency(samples []int16, channels int, rate uint32) (Spectrum, error) {
	if channels <= 0 || rate == 0 {
		return Spectrum{}, fmt.Errorf("%w: channels=%d rate=%d", ErrInvalidParams, channels, rate)
	}
	frames := len(samples) / channels
	if frames < 2 {
		return Spectrum{}, fmt.Errorf("%w: need at least 2 frames, got %d", ErrInvalidParams, frames)
	}

	n := 1 << (bits.Len(uint(frames)) - 1)
	if n > maxWindow {
		n = maxWindow
	}

	data := make([]float64, n)
	for i := range data {
		// Hann window keeps leakage from masking the peak
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		data[i] = float64(samples[i*channels]) * w
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, data)

	peak := 1
	best := 0.0
	for k := 1; k < len(coeffs); k++ {
		if m := cmplx.Abs(coeffs[k]); m > best {
			best = m
			peak = k
		}
	}

	binWidth := float64(rate) / float64(n)
	return Spectrum{
		Peak:     float64(peak) * binWidth,
		BinWidth: binWidth,
		Window:   n,
	}, nil
}
