package slice

import (
	"strconv"
	"testing"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, strconv.Itoa)
	if len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Errorf("Map() unexpected result %v", got)
	}
}

func TestFilter(t *testing.T) {
	got := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("Filter() unexpected result %v", got)
	}
	if got := Filter([]int{}, func(int) bool { return true }); got == nil || len(got) != 0 {
		t.Errorf("Filter() on empty input should return an empty slice")
	}
}

func TestAll(t *testing.T) {
	if !All([]int{2, 4}, func(v int) bool { return v%2 == 0 }) {
		t.Errorf("All() expected true")
	}
	if All([]int{2, 3}, func(v int) bool { return v%2 == 0 }) {
		t.Errorf("All() expected false")
	}
}
