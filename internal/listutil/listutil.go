// Package listutil holds small generic helpers for numbers and slices.
package listutil

import (
	"cmp"
	"slices"
)

// Clamp limits v to the closed range [lo, hi]. If hi < lo, lo wins.
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// InRange reports whether lo <= v <= hi.
func InRange[T cmp.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// CeilDiv returns ceil(a/b) for a >= 0 and b > 0, and 0 otherwise.
func CeilDiv(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Count returns the number of elements in xs. A nil slice counts as zero.
func Count[T any](xs []T) int {
	return len(xs)
}

// CountFunc returns the number of elements for which pred returns true.
func CountFunc[T any](xs []T, pred func(T) bool) int {
	n := 0
	for _, x := range xs {
		if pred(x) {
			n++
		}
	}
	return n
}

// Max returns the highest value in xs. ok is false for an empty slice.
func Max[T cmp.Ordered](xs []T) (T, bool) {
	var m T
	if len(xs) == 0 {
		return m, false
	}
	m = xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m, true
}

// CloneShallow returns a new slice with the same elements. Pointer elements
// are shared with the original. A nil input returns nil.
func CloneShallow[T any](xs []T) []T {
	return slices.Clone(xs)
}

// ReplaceAt returns a copy of xs with position i set to v. The input is not
// modified.
func ReplaceAt[T any](xs []T, i int, v T) []T {
	out := CloneShallow(xs)
	out[i] = v
	return out
}
