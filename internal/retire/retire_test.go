package retire

import (
	"errors"
	"slices"
	"testing"
)

func TestArenaGenerations(t *testing.T) {
	var a Arena[string]
	id := a.Insert("vertex buffer")

	if v, err := a.Get(id); err != nil || v != "vertex buffer" {
		t.Fatalf("Get() = (%q, %v)", v, err)
	}
	if _, err := a.Remove(id); err != nil {
		t.Fatal(err)
	}
	reused := a.Insert("index buffer")
	if reused.index != id.index {
		t.Fatalf("slot not reused: %v then %v", id, reused)
	}

	tests := []struct {
		name string
		id   ID[string]
	}{
		{"zero", ID[string]{}},
		{"stale generation", id},
		{"out of range", ID[string]{index: 9, gen: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Get(tt.id); !errors.Is(err, ErrStaleID) {
				t.Errorf("Get(%v) error = %v, want ErrStaleID", tt.id, err)
			}
			if _, err := a.Remove(tt.id); !errors.Is(err, ErrStaleID) {
				t.Errorf("Remove(%v) error = %v, want ErrStaleID", tt.id, err)
			}
		})
	}
	if a.Len() != 1 {
		t.Errorf("Len() = %d, want 1", a.Len())
	}
}

func TestArenaRetire(t *testing.T) {
	var a Arena[int]
	id := a.Insert(7)
	if err := a.Retire(id); err != nil {
		t.Fatal(err)
	}
	if err := a.Retire(id); !errors.Is(err, ErrRetiring) {
		t.Errorf("second Retire() error = %v, want ErrRetiring", err)
	}
	if _, err := a.Get(id); !errors.Is(err, ErrRetiring) {
		t.Errorf("Get() of retiring id error = %v, want ErrRetiring", err)
	}
	if v, err := a.Remove(id); err != nil || v != 7 {
		t.Errorf("Remove() = (%d, %v), want (7, nil)", v, err)
	}
}

func TestQueueCollectBoundary(t *testing.T) {
	var q Queue[string]
	q.Push("a", 5)
	q.Push("b", 5)
	q.Push("c", 7)

	var got []string
	n := q.Collect(8, 2, func(s string) { got = append(got, s) })
	if n != 2 || !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Collect(8, 2) released %v, want [a b]", got)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	// 7+2 < 9 is false; 7+2 < 10 is true.
	if n := q.Collect(9, 2, func(string) {}); n != 0 {
		t.Errorf("Collect(9, 2) released %d, want 0", n)
	}
	if n := q.Collect(10, 2, func(string) {}); n != 1 {
		t.Errorf("Collect(10, 2) released %d, want 1", n)
	}
}

func TestQueueCollectStopsAtFirstUnsafe(t *testing.T) {
	var q Queue[int]
	for i, frame := range []uint64{1, 2, 3, 4, 5} {
		q.Push(i, frame)
	}
	var got []int
	q.Collect(6, 2, func(i int) { got = append(got, i) })
	if !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("Collect(6, 2) = %v, want [0 1 2]", got)
	}
}

func TestQueuePushClampsFrame(t *testing.T) {
	var q Queue[int]
	q.Push(1, 10)
	q.Push(2, 3)
	if f, _ := q.OldestFrame(); f != 10 {
		t.Errorf("OldestFrame() = %d, want 10", f)
	}
	if n := q.Collect(12, 1, func(int) {}); n != 2 {
		t.Errorf("Collect(12, 1) = %d, want both entries", n)
	}
}

func TestQueueFlush(t *testing.T) {
	var q Queue[int]
	q.Push(1, 100)
	q.Push(2, 200)
	var got []int
	if n := q.Flush(func(i int) { got = append(got, i) }); n != 2 {
		t.Errorf("Flush() = %d, want 2", n)
	}
	if !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Flush order = %v", got)
	}
	if _, ok := q.OldestFrame(); ok {
		t.Error("queue not empty after Flush")
	}
}
