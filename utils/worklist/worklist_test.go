package worklist

import "testing"

func TestStartV(t *testing.T) {
	var visited []int
	StartV([]int{1, 2}, func(next int, add func(int)) {
		visited = append(visited, next)
		if next < 4 {
			add(next * 2)
		}
	})

	expected := []int{1, 2, 2, 4, 4}
	if len(visited) != len(expected) {
		t.Fatalf("visited %v, expected %v", visited, expected)
	}
	for i := range expected {
		if visited[i] != expected[i] {
			t.Fatalf("visited %v, expected %v", visited, expected)
		}
	}
}
