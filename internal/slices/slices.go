// Package slices contains generic slice helpers the standard library does
// not provide.
package slices

// Map returns a new slice with fn applied to each element of slice.
func Map[T, U any](slice []T, fn func(T) U) []U {
	result := make([]U, len(slice))
	for i, v := range slice {
		result[i] = fn(v)
	}
	return result
}
