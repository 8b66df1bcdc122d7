package sortutil

import "testing"

func TestStableSortOrdersByKey(t *testing.T) {
	type pair struct {
		key, seq int
	}

	in := []pair{{2, 0}, {1, 1}, {2, 2}, {1, 3}, {0, 4}}
	StableSort(in, func(a, b pair) bool { return a.key < b.key })

	want := []pair{{0, 4}, {1, 1}, {1, 3}, {2, 0}, {2, 2}}
	for i := range want {
		if in[i] != want[i] {
			t.Fatalf("index %d: got %+v, want %+v (full: %+v)", i, in[i], want[i], in)
		}
	}
}

func TestStableSortEmptyAndSingle(t *testing.T) {
	var empty []int
	StableSort(empty, func(a, b int) bool { return a < b })

	one := []int{42}
	StableSort(one, func(a, b int) bool { return a < b })
	if one[0] != 42 {
		t.Fatalf("single-element slice mutated: got %d", one[0])
	}
}

func TestStableSortDescending(t *testing.T) {
	in := []int{1, 5, 3, 2, 4}
	StableSort(in, func(a, b int) bool { return a > b })

	want := []int{5, 4, 3, 2, 1}
	for i := range want {
		if in[i] != want[i] {
			t.Fatalf("index %d: got %d, want %d", i, in[i], want[i])
		}
	}
}
