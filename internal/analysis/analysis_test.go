package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/ipcsim/internal/dynamo"
)

func TestDominantFrequency(t *testing.T) {
	const dt = 0.01
	data := make([]float64, 256)
	for i := range data {
		tm := float64(i) * dt
		data[i] = 3 + math.Sin(2*math.Pi*5*tm) + 0.2*math.Sin(2*math.Pi*20*tm)
	}
	f, err := DominantFrequency(data, dt)
	if err != nil {
		t.Fatal(err)
	}
	// bin width is 1/(256*0.01) ~ 0.39 Hz
	if math.Abs(f-5) > 0.4 {
		t.Errorf("expected about 5 Hz, got %f", f)
	}
}

func TestSpectrumRejectsShortInput(t *testing.T) {
	if _, _, err := Spectrum([]float64{1, 2}, 0.01); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
	if _, _, err := Spectrum(make([]float64, 8), 0); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4})
	if s.Mean != 2.5 || s.Min != 1 || s.Max != 4 {
		t.Errorf("unexpected summary %+v", s)
	}
	if math.Abs(s.StdDev-math.Sqrt(5.0/3)) > 1e-12 {
		t.Errorf("unexpected std dev %f", s.StdDev)
	}
	if (Summarize(nil) != Summary{}) {
		t.Error("expected a zero summary")
	}
}

func TestEnergyDrift(t *testing.T) {
	tests := []struct {
		energy []float64
		want   float64
	}{
		{[]float64{10, 11, 9}, -0.1},
		{[]float64{-4, -2}, 0.5},
		{[]float64{0, 0.5}, 0.5},
		{[]float64{3}, 0},
	}
	for _, tt := range tests {
		if got := EnergyDrift(tt.energy); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("EnergyDrift(%v) = %f, want %f", tt.energy, got, tt.want)
		}
	}
}
