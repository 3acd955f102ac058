package util

import (
	"cmp"
	"maps"
	"slices"
)

// SortedKeys returns the keys of a map in sorted order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// SortedUnique returns a sorted copy of values with duplicates and empty
// entries removed.
func SortedUnique[T cmp.Ordered](values ...[]T) []T {
	var zero T
	seen := make(map[T]struct{})
	for _, vs := range values {
		for _, v := range vs {
			if v == zero {
				continue
			}
			seen[v] = struct{}{}
		}
	}
	return SortedKeys(seen)
}
