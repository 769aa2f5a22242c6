package sample

// Downsample reduces src to at most maxPoints elements by decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// If len(src) <= maxPoints, copies all elements.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	if maxPoints <= 0 || len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
			copy(dst, src)
			return dst
		}
		result := make([]T, len(src))
		copy(result, src)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}
	// Keep the newest point so the trace ends at the current value.
	if n := len(dst); n > 0 {
		dst[n-1] = src[len(src)-1]
	}

	return dst
}

// MinMax returns the value range of points. ok is false for an empty slice.
func MinMax(points []Point) (lo, hi float64, ok bool) {
	if len(points) == 0 {
		return 0, 0, false
	}
	lo, hi = points[0].V, points[0].V
	for _, p := range points[1:] {
		lo = min(lo, p.V)
		hi = max(hi, p.V)
	}
	return lo, hi, true
}
