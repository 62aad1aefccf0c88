package cache

import (
	"errors"
	"slices"
	"testing"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, _ int) { evicted = append(evicted, k) })

	create := func(v int) func() (int, error) { return func() (int, error) { return v, nil } }
	_, _ = c.GetOrCreate("a", create(1))
	_, _ = c.GetOrCreate("b", create(2))
	c.Get("a") // b is now the oldest
	_, _ = c.GetOrCreate("c", create(3))

	if !slices.Equal(evicted, []string{"b"}) {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found an evicted entry")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = (%d, %v), want (1, true)", v, ok)
	}
}

func TestLRUGetOrCreateOnce(t *testing.T) {
	c := New[int, string](0, nil)
	calls := 0
	create := func() (string, error) {
		calls++
		return "sampler", nil
	}
	for range 5 {
		if v, err := c.GetOrCreate(1, create); err != nil || v != "sampler" {
			t.Fatalf("GetOrCreate() = (%q, %v)", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
	s := c.Stats()
	if s.Hits != 4 || s.Misses != 1 {
		t.Errorf("Stats() = %v, want 4 hits and 1 miss", s)
	}
}

func TestLRUCreateError(t *testing.T) {
	c := New[int, int](4, nil)
	errBoom := errors.New("boom")
	if _, err := c.GetOrCreate(1, func() (int, error) { return 0, errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("GetOrCreate() error = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed create, want 0", c.Len())
	}
}

func TestLRUDeleteAndPurge(t *testing.T) {
	var evicted []int
	c := New[int, int](0, func(k, _ int) { evicted = append(evicted, k) })
	for i := range 4 {
		_, _ = c.GetOrCreate(i, func() (int, error) { return i * 10, nil })
	}

	if v, ok := c.Delete(2); !ok || v != 20 {
		t.Errorf("Delete(2) = (%d, %v), want (20, true)", v, ok)
	}
	if _, ok := c.Delete(2); ok {
		t.Error("second Delete(2) reported success")
	}
	if len(evicted) != 0 {
		t.Errorf("Delete invoked the eviction callback: %v", evicted)
	}

	c.Purge()
	if !slices.Equal(evicted, []int{0, 1, 3}) {
		t.Errorf("Purge evicted %v, want [0 1 3]", evicted)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Purge", c.Len())
	}
}
