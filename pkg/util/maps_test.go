package util

import (
	"slices"
	"testing"
)

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"c": 3, "a": 1, "b": 2}
	if got := SortedKeys(m); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("SortedKeys = %v", got)
	}
}

func TestSortedUnique(t *testing.T) {
	got := SortedUnique([]string{"B", "A", ""}, []string{"A", "C"})
	if !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Errorf("SortedUnique = %v", got)
	}
	if got := SortedUnique[string](); len(got) != 0 {
		t.Errorf("SortedUnique() = %v, want empty", got)
	}
}
