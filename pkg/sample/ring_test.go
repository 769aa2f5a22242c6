package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_Eviction(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   int
		want     []int
	}{
		{"empty", 5, 0, nil},
		{"partial", 5, 3, []int{1, 2, 3}},
		{"exactly full", 5, 5, []int{1, 2, 3, 4, 5}},
		{"ten into five", 5, 10, []int{6, 7, 8, 9, 10}},
		{"wraps twice", 3, 8, []int{6, 7, 8}},
		{"capacity one", 1, 4, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing[int](tt.capacity)
			for i := 1; i <= tt.pushes; i++ {
				r.Push(i)
			}
			assert.Equal(t, min(tt.pushes, tt.capacity), r.Len())
			assert.Equal(t, tt.want, r.AppendTo(nil))
		})
	}
}

func TestRing_AtAndLast(t *testing.T) {
	r := NewRing[int](3)

	_, ok := r.Last()
	assert.False(t, ok)

	for i := 1; i <= 4; i++ {
		r.Push(i)
	}
	assert.Equal(t, 2, r.At(0))
	assert.Equal(t, 4, r.At(2))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 4, last)
}

func TestRing_Reset(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Reset()

	assert.Zero(t, r.Len())
	assert.Equal(t, 3, r.Cap())

	r.Push(7)
	assert.Equal(t, []int{7}, r.AppendTo(nil))
}

func TestNewRing_InvalidCapacity(t *testing.T) {
	r := NewRing[int](0)
	assert.Equal(t, 1, r.Cap())
}
