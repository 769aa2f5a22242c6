package sample

// Ring is a fixed-capacity FIFO. Pushing into a full ring evicts the oldest
// element. It is not safe for concurrent use.
type Ring[T any] struct {
	data  []T
	start int
	size  int
}

// NewRing creates a ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the ring is full.
func (r *Ring[T]) Push(v T) {
	end := (r.start + r.size) % len(r.data)
	r.data[end] = v
	if r.size < len(r.data) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.data)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }

// At returns the i-th oldest element.
func (r *Ring[T]) At(i int) T {
	return r.data[(r.start+i)%len(r.data)]
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.At(r.size - 1), true
}

// AppendTo appends the elements to dst in arrival order.
func (r *Ring[T]) AppendTo(dst []T) []T {
	first := r.data[r.start:min(r.start+r.size, len(r.data))]
	dst = append(dst, first...)
	if rest := r.size - len(first); rest > 0 {
		dst = append(dst, r.data[:rest]...)
	}
	return dst
}

// Reset removes all elements.
func (r *Ring[T]) Reset() {
	clear(r.data)
	r.start, r.size = 0, 0
}
