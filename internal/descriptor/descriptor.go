// Package descriptor allocates descriptor slots.
//
// Allocator hands out long-lived slots in CPU-only heaps from a free list,
// growing by whole heaps on demand. Heap is a shader-visible bump allocator
// reset once per frame slot; permanent views are copied into it to become
// bindable.
package descriptor

import (
	"errors"
	"fmt"

	"github.com/gogpu/framekit/hw"
)

// Descriptor errors.
var (
	// ErrHeapFull is returned when a shader-visible heap has no room left
	// before its next Reset.
	ErrHeapFull = errors.New("descriptor: shader-visible heap is full")

	// ErrInvalidHandle is returned for zero handles and handles of another
	// kind or allocator.
	ErrInvalidHandle = errors.New("descriptor: invalid handle")

	// ErrDoubleRelease is returned when a handle is released twice.
	ErrDoubleRelease = errors.New("descriptor: handle released twice")

	// ErrZeroCount is returned for empty allocations or copies.
	ErrZeroCount = errors.New("descriptor: zero descriptor count")
)

// Handle addresses one descriptor slot. GPU is zero for CPU-only slots.
type Handle struct {
	Kind hw.DescriptorKind
	CPU  hw.CPUAddress
	GPU  hw.GPUAddress
}

// IsValid reports whether h refers to a slot.
func (h Handle) IsValid() bool { return h.CPU != 0 }

// IsShaderVisible reports whether h can be bound as a descriptor table base.
func (h Handle) IsShaderVisible() bool { return h.GPU != 0 }

// Offset returns the handle n slots after h.
func (h Handle) Offset(n, increment uint32) Handle {
	d := uint64(n) * uint64(increment)
	out := Handle{Kind: h.Kind, CPU: h.CPU + hw.CPUAddress(d)}
	if h.GPU != 0 {
		out.GPU = h.GPU + hw.GPUAddress(d)
	}
	return out
}

func (h Handle) String() string {
	if h.GPU != 0 {
		return fmt.Sprintf("%v{cpu=%#x gpu=%#x}", h.Kind, uint64(h.CPU), uint64(h.GPU))
	}
	return fmt.Sprintf("%v{cpu=%#x}", h.Kind, uint64(h.CPU))
}

// Copy duplicates count CPU-only descriptors starting at src into the next
// free slots of dst and returns the shader-visible handle of the first.
func Copy(dev hw.Device, dst *Heap, src Handle, count uint32) (Handle, error) {
	if !src.IsValid() {
		return Handle{}, fmt.Errorf("%w: copy source %v", ErrInvalidHandle, src)
	}
	if src.Kind != dst.Kind() {
		return Handle{}, fmt.Errorf("%w: copy of %v into %v heap", ErrInvalidHandle, src.Kind, dst.Kind())
	}
	out, err := dst.AllocateRange(count)
	if err != nil {
		return Handle{}, err
	}
	if err := dev.CopyDescriptors(src.Kind, out.CPU, src.CPU, count); err != nil {
		return Handle{}, fmt.Errorf("descriptor: copy %d %v descriptors: %w", count, src.Kind, err)
	}
	return out, nil
}
