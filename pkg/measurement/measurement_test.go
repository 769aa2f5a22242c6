package measurement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaussianPeaks samples a Gaussian oscillation envelope centred on mapP
// from high to low pressure in 1 mmHg steps.
func gaussianPeaks(mapP, width, high, low float64) []Peak {
	var peaks []Peak
	for p := high; p >= low; p-- {
		peaks = append(peaks, Peak{
			Pressure:  p,
			Amplitude: math.Exp(-math.Pow((p-mapP)/width, 2)),
		})
	}
	return peaks
}

func TestEstimate_GaussianEnvelope(t *testing.T) {
	peaks := gaussianPeaks(95, 25, 150, 40)

	r, err := Estimate(peaks, 10, 0.57, 0.75)
	require.NoError(t, err)

	assert.Equal(t, 95.0, r.MAP)
	assert.InDelta(t, 95+25*math.Sqrt(-math.Log(0.57)), r.SBP, 0.1)
	assert.InDelta(t, 95-25*math.Sqrt(-math.Log(0.75)), r.DBP, 0.1)
	assert.Equal(t, len(peaks), r.Peaks)
}

func TestEstimate_OrderIndependent(t *testing.T) {
	peaks := gaussianPeaks(100, 20, 160, 50)
	reversed := make([]Peak, len(peaks))
	for i, p := range peaks {
		reversed[len(peaks)-1-i] = p
	}

	a, err := Estimate(peaks, 1, 0.5, 0.7)
	require.NoError(t, err)
	b, err := Estimate(reversed, 1, 0.5, 0.7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEstimate_EnvelopeNeverFalls(t *testing.T) {
	// Amplitude keeps rising as pressure falls: no DBP crossing exists, so
	// the lowest recorded pressure is reported.
	peaks := []Peak{
		{Pressure: 120, Amplitude: 0.2},
		{Pressure: 110, Amplitude: 0.6},
		{Pressure: 100, Amplitude: 1.0},
		{Pressure: 90, Amplitude: 1.2},
	}

	r, err := Estimate(peaks, 4, 0.6, 0.8)
	require.NoError(t, err)
	assert.Equal(t, 90.0, r.MAP)
	assert.Equal(t, 90.0, r.DBP)
	assert.InDelta(t, 107.0, r.SBP, 1e-6) // 0.72 lies between 0.6 at 110 and 1.0 at 100
}

func TestEstimate_InsufficientPeaks(t *testing.T) {
	tests := []struct {
		name     string
		peaks    []Peak
		minPeaks int
	}{
		{name: "none", peaks: nil, minPeaks: 0},
		{name: "below minimum", peaks: gaussianPeaks(95, 25, 100, 95), minPeaks: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(tt.peaks, tt.minPeaks, 0.57, 0.75)
			assert.ErrorIs(t, err, ErrInsufficientPeaks)
		})
	}
}

func TestResult_String(t *testing.T) {
	r := Result{MAP: 95.4, SBP: 121.2, DBP: 79.8, HeartRate: 70.2}
	assert.Equal(t, "121/80 mmHg (MAP 95, 70 bpm)", r.String())
}

func TestFilters(t *testing.T) {
	const rate = 1000.0

	t.Run("low-pass follows a step", func(t *testing.T) {
		f := NewLowPass(10, rate)
		assert.Equal(t, 0.0, f.Filter(0))
		var y float64
		for i := 0; i < 1000; i++ {
			y = f.Filter(1)
		}
		assert.InDelta(t, 1.0, y, 1e-6)
	})

	t.Run("low-pass primes on the first sample", func(t *testing.T) {
		f := NewLowPass(10, rate)
		assert.Equal(t, 120.0, f.Filter(120))
		f.Reset()
		assert.Equal(t, 5.0, f.Filter(5))
	})

	t.Run("high-pass removes DC", func(t *testing.T) {
		f := NewHighPass(0.5, rate)
		assert.Equal(t, 0.0, f.Filter(100))
		var y float64
		for i := 0; i < 2000; i++ {
			y = f.Filter(100)
		}
		assert.Equal(t, 0.0, y)
	})

	t.Run("high-pass passes a step then decays", func(t *testing.T) {
		f := NewHighPass(0.5, rate)
		f.Filter(0)
		first := f.Filter(1)
		assert.InDelta(t, 1.0, first, 0.01)
		var y float64
		for i := 0; i < 3000; i++ {
			y = f.Filter(1)
		}
		assert.Less(t, y, 0.01)
	})

	t.Run("zero cutoff passes through", func(t *testing.T) {
		lp := NewLowPass(0, rate)
		lp.Filter(0)
		assert.Equal(t, 7.0, lp.Filter(7))
	})
}

func TestPeakDetector(t *testing.T) {
	d := newPeakDetector(0.2, 0.3)
	d.reset(-0.5, 0, 100)

	const rate = 100.0
	var peaks []Peak
	// Two beats of a 1 Hz wave with 1.0 peak to trough starting at a trough,
	// then a ripple smaller than the hysteresis.
	for i := 0; i < 300; i++ {
		tm := float64(i) / rate
		x := -0.5 * math.Cos(2*math.Pi*tm)
		if tm >= 2 {
			x = 0.03 * math.Sin(2*math.Pi*5*tm)
		}
		if p, ok := d.add(x, tm, 100-tm); ok {
			peaks = append(peaks, p)
		}
	}

	require.Len(t, peaks, 2)
	assert.InDelta(t, 0.5, peaks[0].Time, 0.011)
	assert.InDelta(t, 1.0, peaks[0].Amplitude, 0.01)
	assert.InDelta(t, 100-peaks[0].Time, peaks[0].Pressure, 1e-9)
	assert.InDelta(t, 1.0, peaks[1].Time-peaks[0].Time, 0.02)
}

func TestPeakDetector_Refractory(t *testing.T) {
	d := newPeakDetector(0.2, 0.4)
	d.reset(0, 0, 0)

	// A 4 Hz sine peaks every 0.25 s, so every other peak is inside the
	// refractory period.
	const rate = 1000.0
	var peaks []Peak
	for i := 0; i < 2000; i++ {
		tm := float64(i) / rate
		if p, ok := d.add(math.Sin(2*math.Pi*4*tm), tm, 0); ok {
			peaks = append(peaks, p)
		}
	}

	require.Len(t, peaks, 4)
	for i := 1; i < len(peaks); i++ {
		assert.InDelta(t, 0.5, peaks[i].Time-peaks[i-1].Time, 0.002)
	}
}
