package sample

// MovingAverage is the mean of the last window values.
type MovingAverage struct {
	ring *Ring[float64]
	sum  float64
}

// NewMovingAverage creates a moving average over window values.
func NewMovingAverage(window int) *MovingAverage {
	if window <= 0 {
		window = 1 // No averaging if invalid
	}
	return &MovingAverage{ring: NewRing[float64](window)}
}

// Add adds v and returns the current average.
func (m *MovingAverage) Add(v float64) float64 {
	if m.ring.Len() == m.ring.Cap() {
		m.sum -= m.ring.At(0)
	}
	m.ring.Push(v)
	m.sum += v
	return m.Value()
}

// Value returns the current average, or 0 before the first value.
func (m *MovingAverage) Value() float64 {
	if m.ring.Len() == 0 {
		return 0
	}
	return m.sum / float64(m.ring.Len())
}

// Len returns the number of values in the window.
func (m *MovingAverage) Len() int {
	return m.ring.Len()
}

// Reset drops all values.
func (m *MovingAverage) Reset() {
	m.ring.Reset()
	m.sum = 0
}
