package sample

import (
	"slices"
	"sync"
)

// MaxCapacity bounds the history kept per signal.
const MaxCapacity = 1 << 16

// Common signal names.
const (
	SignalPressure    = "pressure"
	SignalOscillation = "oscillation"
)

// Buffer holds the recent history of named signals. The producer pushes at
// the acquisition rate while the renderer takes snapshots; both hold the lock
// only for the copy.
type Buffer struct {
	mu       sync.RWMutex
	rate     float64
	capacity int
	signals  map[string]*signal
}

type signal struct {
	ring *Ring[Point]
	n    uint64
}

// NewBuffer creates a buffer keeping capacity points per signal. Points are
// timestamped n/rate seconds for the n-th sample of a signal.
func NewBuffer(capacity int, rate float64) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	if rate <= 0 {
		rate = 1
	}
	return &Buffer{
		rate:     rate,
		capacity: capacity,
		signals:  make(map[string]*signal),
	}
}

// Push appends one value to the named signal.
func (b *Buffer) Push(name string, v float64) {
	b.mu.Lock()
	s, ok := b.signals[name]
	if !ok {
		s = &signal{ring: NewRing[Point](b.capacity)}
		b.signals[name] = s
	}
	s.ring.Push(Point{T: float64(s.n) / b.rate, V: v})
	s.n++
	b.mu.Unlock()
}

// Snapshot appends the named signal's points to dst[:0] in arrival order.
func (b *Buffer) Snapshot(name string, dst []Point) []Point {
	dst = dst[:0]
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.signals[name]
	if !ok {
		return dst
	}
	return s.ring.AppendTo(dst)
}

// Last returns the newest point of the named signal.
func (b *Buffer) Last(name string) (Point, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.signals[name]
	if !ok {
		return Point{}, false
	}
	return s.ring.Last()
}

// Signals returns the known signal names, sorted.
func (b *Buffer) Signals() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.signals))
	for name := range b.signals {
		names = append(names, name)
	}
	b.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Capacity returns the per-signal capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Rate returns the sample rate used for timestamps.
func (b *Buffer) Rate() float64 {
	return b.rate
}

// Reset clears every signal and restarts the time axis.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.signals {
		s.ring.Reset()
		s.n = 0
	}
}
