package descriptor

import (
	"fmt"
	"sync"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/logging"
)

// Allocator is a free-list allocator over CPU-only descriptor heaps of one
// kind. Backing heaps are created lazily, countPerHeap slots at a time, and
// are never destroyed before Shutdown.
//
// Release must only be called once the GPU can no longer read the slot;
// resource owners route releases through the memory handler.
//
// Thread Safety: Allocator is safe for concurrent use.
type Allocator struct {
	dev          hw.Device
	kind         hw.DescriptorKind
	countPerHeap uint32

	mu    sync.Mutex
	heaps []hw.DescriptorHeap
	free  []Handle
	live  map[hw.CPUAddress]struct{}
}

// NewAllocator creates an allocator with no backing heaps.
func NewAllocator(dev hw.Device, kind hw.DescriptorKind, countPerHeap uint32) (*Allocator, error) {
	if countPerHeap == 0 {
		return nil, fmt.Errorf("%w: %v allocator heap size", ErrZeroCount, kind)
	}
	return &Allocator{
		dev:          dev,
		kind:         kind,
		countPerHeap: countPerHeap,
		live:         make(map[hw.CPUAddress]struct{}),
	}, nil
}

// Kind returns the descriptor kind.
func (a *Allocator) Kind() hw.DescriptorKind { return a.kind }

// Allocate pops a free slot, growing by one heap when the list is empty.
func (a *Allocator) Allocate() (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		if err := a.growLocked(); err != nil {
			return Handle{}, err
		}
	}
	h := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.live[h.CPU] = struct{}{}
	return h, nil
}

func (a *Allocator) growLocked() error {
	heap, err := a.dev.CreateDescriptorHeap(hw.DescriptorHeapDesc{
		Label: fmt.Sprintf("%v cpu heap %d", a.kind, len(a.heaps)),
		Kind:  a.kind,
		Count: a.countPerHeap,
	})
	if err != nil {
		return fmt.Errorf("descriptor: grow %v allocator: %w", a.kind, err)
	}
	a.heaps = append(a.heaps, heap)

	start := Handle{Kind: a.kind, CPU: heap.CPUStart()}
	inc := heap.Increment()
	// Push in reverse so slots come out in address order.
	for i := a.countPerHeap; i > 0; i-- {
		a.free = append(a.free, start.Offset(i-1, inc))
	}
	logging.Logger().Debug("descriptor: cpu heap grew",
		"kind", a.kind.String(), "heaps", len(a.heaps), "capacity", a.capacityLocked())
	return nil
}

// Release returns h to the free list.
func (a *Allocator) Release(h Handle) error {
	if !h.IsValid() || h.Kind != a.kind {
		return fmt.Errorf("%w: release of %v into %v allocator", ErrInvalidHandle, h, a.kind)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[h.CPU]; !ok {
		return fmt.Errorf("%w: %v", ErrDoubleRelease, h)
	}
	delete(a.live, h.CPU)
	a.free = append(a.free, h)
	return nil
}

// HeapCount returns the number of backing heaps.
func (a *Allocator) HeapCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.heaps)
}

// FreeCount returns the number of free slots.
func (a *Allocator) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Capacity returns the total number of slots across all heaps.
func (a *Allocator) Capacity() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacityLocked()
}

func (a *Allocator) capacityLocked() int {
	return len(a.heaps) * int(a.countPerHeap)
}

// InUse returns the number of allocated slots.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Shutdown destroys every backing heap.
func (a *Allocator) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.heaps {
		h.Destroy()
	}
	a.heaps = nil
	a.free = nil
	clear(a.live)
}
