// Package retire holds typed containers for deferred destruction: a
// generational arena owning native objects, and a frame-ordered queue of
// arena IDs waiting to be destroyed.
package retire

import (
	"errors"
	"fmt"
)

// Arena errors.
var (
	// ErrStaleID is returned for IDs whose slot was removed or reused.
	ErrStaleID = errors.New("retire: stale or zero id")

	// ErrRetiring is returned when an ID is retired twice.
	ErrRetiring = errors.New("retire: id is already retiring")
)

// ID is a generational index into an Arena[T]. The zero ID is never valid.
type ID[T any] struct {
	index uint32
	gen   uint32
}

// IsZero reports whether id is the zero ID.
func (id ID[T]) IsZero() bool { return id.gen == 0 }

func (id ID[T]) String() string {
	return fmt.Sprintf("%d@%d", id.index, id.gen)
}

type slot[T any] struct {
	val      T
	gen      uint32
	used     bool
	retiring bool
}

// Arena stores values addressed by generational IDs. Removing a value bumps
// its slot generation so every outstanding ID for it turns stale.
//
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

// Insert stores v and returns its ID.
func (a *Arena[T]) Insert(v T) ID[T] {
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		i = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[i]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.val, s.used, s.retiring = v, true, false
	a.n++
	return ID[T]{index: i, gen: s.gen}
}

func (a *Arena[T]) lookup(id ID[T]) (*slot[T], error) {
	if id.gen == 0 || int(id.index) >= len(a.slots) {
		return nil, fmt.Errorf("%w: %v", ErrStaleID, id)
	}
	s := &a.slots[id.index]
	if !s.used || s.gen != id.gen {
		return nil, fmt.Errorf("%w: %v", ErrStaleID, id)
	}
	return s, nil
}

// Get returns the live, non-retiring value for id.
func (a *Arena[T]) Get(id ID[T]) (T, error) {
	var zero T
	s, err := a.lookup(id)
	if err != nil {
		return zero, err
	}
	if s.retiring {
		return zero, fmt.Errorf("%w: %v", ErrRetiring, id)
	}
	return s.val, nil
}

// Retire marks id as scheduled for removal. Get fails for it afterwards.
func (a *Arena[T]) Retire(id ID[T]) error {
	s, err := a.lookup(id)
	if err != nil {
		return err
	}
	if s.retiring {
		return fmt.Errorf("%w: %v", ErrRetiring, id)
	}
	s.retiring = true
	return nil
}

// Remove deletes id and returns its value.
func (a *Arena[T]) Remove(id ID[T]) (T, error) {
	var zero T
	s, err := a.lookup(id)
	if err != nil {
		return zero, err
	}
	v := s.val
	s.val, s.used, s.retiring = zero, false, false
	a.free = append(a.free, id.index)
	a.n--
	return v, nil
}

// Len returns the number of stored values, retiring ones included.
func (a *Arena[T]) Len() int { return a.n }

// Each calls fn for every stored value.
func (a *Arena[T]) Each(fn func(ID[T], T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.used {
			fn(ID[T]{index: uint32(i), gen: s.gen}, s.val)
		}
	}
}
