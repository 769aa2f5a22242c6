package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample_NoDownsampling(t *testing.T) {
	points := []Point{{T: 0, V: 1}, {T: 0.1, V: 1.1}, {T: 0.2, V: 1.2}}

	// Test with nil dst
	result := Downsample(nil, points, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, points, result)

	// Test with sufficient capacity dst
	dst := make([]Point, 0, 10)
	result = Downsample(dst, points, 10)
	assert.Equal(t, points, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	points := make([]Point, 100)
	for i := range points {
		points[i] = Point{T: float64(i) * 0.01, V: float64(i)}
	}

	dst := make([]Point, 0, 20)
	result := Downsample(dst, points, 10)
	require.Equal(t, 10, len(result))

	// First and newest points are kept
	assert.Equal(t, points[0], result[0])
	assert.Equal(t, points[99], result[9])

	for i := 1; i < len(result); i++ {
		assert.Greater(t, result[i].T, result[i-1].T)
	}
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_Floats(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	result := Downsample(nil, values, 4)
	assert.Equal(t, []float64{0, 2, 4, 7}, result)
}

func TestDownsample_ZeroMaxPointsCopies(t *testing.T) {
	values := []float64{1, 2, 3}
	assert.Equal(t, values, Downsample(nil, values, 0))
}

func TestDownsample_Empty(t *testing.T) {
	result := Downsample[Point](nil, nil, 10)
	assert.Empty(t, result)
}

func TestMinMax(t *testing.T) {
	_, _, ok := MinMax(nil)
	assert.False(t, ok)

	lo, hi, ok := MinMax([]Point{{V: 3}, {V: -2}, {V: 7}})
	require.True(t, ok)
	assert.Equal(t, -2.0, lo)
	assert.Equal(t, 7.0, hi)
}
