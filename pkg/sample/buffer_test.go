package sample

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_KeepsMostRecent(t *testing.T) {
	b := NewBuffer(5, 10)
	for i := 1; i <= 10; i++ {
		b.Push(SignalPressure, float64(i))
	}

	points := b.Snapshot(SignalPressure, nil)
	require.Len(t, points, 5)
	for i, p := range points {
		assert.Equal(t, float64(i+6), p.V)
		assert.InDelta(t, float64(i+5)/10, p.T, 1e-9)
	}
}

func TestBuffer_FewerThanCapacity(t *testing.T) {
	b := NewBuffer(5, 1)
	b.Push(SignalPressure, 1)
	b.Push(SignalPressure, 2)

	points := b.Snapshot(SignalPressure, nil)
	assert.Equal(t, []Point{{T: 0, V: 1}, {T: 1, V: 2}}, points)
}

func TestBuffer_SignalsAreIndependent(t *testing.T) {
	b := NewBuffer(4, 1)
	b.Push(SignalPressure, 100)
	b.Push(SignalOscillation, -1)
	b.Push(SignalOscillation, 1)

	assert.Len(t, b.Snapshot(SignalPressure, nil), 1)
	assert.Len(t, b.Snapshot(SignalOscillation, nil), 2)
	assert.Empty(t, b.Snapshot("unknown", nil))
	assert.Equal(t, []string{SignalOscillation, SignalPressure}, b.Signals())

	last, ok := b.Last(SignalOscillation)
	require.True(t, ok)
	assert.Equal(t, 1.0, last.V)

	_, ok = b.Last("unknown")
	assert.False(t, ok)
}

func TestBuffer_SnapshotReusesDst(t *testing.T) {
	b := NewBuffer(8, 1)
	for i := 0; i < 4; i++ {
		b.Push(SignalPressure, float64(i))
	}

	dst := make([]Point, 3, 16)
	points := b.Snapshot(SignalPressure, dst)
	assert.Len(t, points, 4)
	assert.Equal(t, cap(dst), cap(points))
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer(4, 2)
	b.Push(SignalPressure, 1)
	b.Push(SignalPressure, 2)
	b.Reset()

	assert.Empty(t, b.Snapshot(SignalPressure, nil))

	b.Push(SignalPressure, 3)
	assert.Equal(t, []Point{{T: 0, V: 3}}, b.Snapshot(SignalPressure, nil))
}

func TestNewBuffer_Bounds(t *testing.T) {
	assert.Equal(t, MaxCapacity, NewBuffer(MaxCapacity*2, 1).Capacity())
	assert.Equal(t, 1, NewBuffer(0, 1).Capacity())
	assert.Equal(t, 1.0, NewBuffer(1, 0).Rate())
}

func TestBuffer_ConcurrentPushAndSnapshot(t *testing.T) {
	b := NewBuffer(64, 1000)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			b.Push(SignalPressure, float64(i))
		}
	}()

	go func() {
		defer wg.Done()
		var dst []Point
		for i := 0; i < 1000; i++ {
			dst = b.Snapshot(SignalPressure, dst)
			// A snapshot is always a contiguous run of arrivals.
			for j := 1; j < len(dst); j++ {
				if dst[j].V != dst[j-1].V+1 {
					t.Errorf("snapshot not contiguous at %d: %v then %v", j, dst[j-1].V, dst[j].V)
					return
				}
			}
		}
	}()

	wg.Wait()

	points := b.Snapshot(SignalPressure, nil)
	require.Len(t, points, 64)
	assert.Equal(t, 9999.0, points[63].V)
}
