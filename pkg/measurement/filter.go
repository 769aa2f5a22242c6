package measurement

import "math"

// LowPass is a first order IIR low-pass filter.
type LowPass struct {
	alpha  float64
	y      float64
	primed bool
}

// NewLowPass creates a low-pass filter with the cutoff frequency fc for
// samples taken at rate. A non-positive cutoff passes the input unchanged.
func NewLowPass(fc, rate float64) *LowPass {
	if fc <= 0 || rate <= 0 {
		return &LowPass{alpha: 1}
	}
	dt := 1 / rate
	rc := 1 / (2 * math.Pi * fc)
	return &LowPass{alpha: dt / (rc + dt)}
}

// Filter returns the next output for x. The first sample primes the state.
func (f *LowPass) Filter(x float64) float64 {
	if !f.primed {
		f.y = x
		f.primed = true
		return f.y
	}
	f.y += f.alpha * (x - f.y)
	return f.y
}

// Reset clears the filter state.
func (f *LowPass) Reset() {
	f.y = 0
	f.primed = false
}

// HighPass is a first order IIR high-pass filter.
type HighPass struct {
	alpha  float64
	x      float64
	y      float64
	primed bool
}

// NewHighPass creates a high-pass filter with the cutoff frequency fc for
// samples taken at rate. A non-positive cutoff passes the input unchanged.
func NewHighPass(fc, rate float64) *HighPass {
	if fc <= 0 || rate <= 0 {
		return &HighPass{alpha: 1}
	}
	dt := 1 / rate
	rc := 1 / (2 * math.Pi * fc)
	return &HighPass{alpha: rc / (rc + dt)}
}

// Filter returns the next output for x. The first sample primes the state and
// yields 0.
func (f *HighPass) Filter(x float64) float64 {
	if !f.primed {
		f.x = x
		f.primed = true
		return 0
	}
	f.y = f.alpha * (f.y + x - f.x)
	f.x = x
	return f.y
}

// Reset clears the filter state.
func (f *HighPass) Reset() {
	f.x, f.y = 0, 0
	f.primed = false
}
