// Package tone finds QC2 two-tone pages in received voice: a spectral
// analyzer picks the dominant frequency of each frame, a tracker turns
// the frequency stream into timed tones, and a matcher compares the last
// two tones against the codeplug's page table.
package tone

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyzer computes the dominant frequency of a block of samples. It
// reuses its buffers and is not safe for concurrent use.
type Analyzer struct {
	size   int
	rate   int
	fft    *fourier.FFT
	buf    []float64
	coeffs []complex128
}

// NewAnalyzer creates an analyzer with a transform of size points for
// audio sampled at rate Hz
func NewAnalyzer(size, rate int) *Analyzer {
	return &Analyzer{
		size:   size,
		rate:   rate,
		fft:    fourier.NewFFT(size),
		buf:    make([]float64, size),
		coeffs: make([]complex128, size/2+1),
	}
}

// Dominant returns the frequency in Hz of the strongest bin, rounded to
// the nearest Hz. Input shorter than the transform is zero padded; longer
// input is truncated to its most recent samples. The whole transform
// window is Blackman weighted.
func (a *Analyzer) Dominant(samples []float64) int {
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	n := copy(a.buf, samples)
	clear(a.buf[n:])
	window.Blackman(a.buf)

	a.coeffs = a.fft.Coefficients(a.coeffs, a.buf)

	maxIdx := 0
	maxMag := -1.0
	// the Nyquist bin is excluded
	for i := 0; i < a.size/2; i++ {
		if m := cmplx.Abs(a.coeffs[i]); m > maxMag {
			maxMag = m
			maxIdx = i
		}
	}
	return int(math.Round(float64(maxIdx) * float64(a.rate) / float64(a.size)))
}
