package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"gonum.org/v1/gonum/stat"
)

// Spectrum returns the frequencies (in Hz for samples dt seconds apart)
// and amplitudes of the one-sided spectrum of data with its mean removed.
func Spectrum(data []float64, dt float64) (freqs, amps []float64, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("spectrum of %d samples: %w", len(data), dynamo.ErrInvalidConfig)
	}
	if dt <= 0 {
		return nil, nil, fmt.Errorf("sample spacing %g: %w", dt, dynamo.ErrInvalidConfig)
	}
	mean := stat.Mean(data, nil)
	centred := make([]float64, len(data))
	for i, x := range data {
		centred[i] = x - mean
	}

	n := len(centred)
	coeff := fft.FFTReal(centred)[:n/2+1]
	freqs = make([]float64, len(coeff))
	amps = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = float64(i) / (float64(n) * dt)
		amps[i] = cmplx.Abs(c) * 2 / float64(n)
	}
	return freqs, amps, nil
}

// DominantFrequency returns the frequency of the largest non-zero
// spectral peak.
func DominantFrequency(data []float64, dt float64) (float64, error) {
	freqs, amps, err := Spectrum(data, dt)
	if err != nil {
		return 0, err
	}
	best := 1
	for i := 2; i < len(amps); i++ {
		if amps[i] > amps[best] {
			best = i
		}
	}
	return freqs[best], nil
}

type Summary struct {
	Mean, StdDev float64
	Min, Max     float64
}

func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	s := Summary{Min: data[0], Max: data[0]}
	s.Mean, s.StdDev = stat.MeanStdDev(data, nil)
	if len(data) == 1 {
		s.StdDev = 0
	}
	for _, x := range data {
		s.Min = min(s.Min, x)
		s.Max = max(s.Max, x)
	}
	return s
}

// EnergyDrift is (last-first)/|first|, or the absolute change when the
// first value is zero.
func EnergyDrift(energy []float64) float64 {
	if len(energy) < 2 {
		return 0
	}
	first, last := energy[0], energy[len(energy)-1]
	if first == 0 {
		return last - first
	}
	return (last - first) / math.Abs(first)
}
