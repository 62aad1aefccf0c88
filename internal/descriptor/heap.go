package descriptor

import (
	"fmt"

	"github.com/gogpu/framekit/hw"
)

// Heap is a shader-visible bump allocator with fixed capacity.
//
// Slots are valid until the next Reset. The owner resets the heap only
// after work that reads it has completed.
//
// Thread Safety: Heap is single-writer. Only the recording goroutine may
// allocate from it.
type Heap struct {
	native hw.DescriptorHeap
	kind   hw.DescriptorKind
	cap    uint32
	cursor uint32
	peak   uint32
}

// NewHeap creates a shader-visible heap of count slots.
func NewHeap(dev hw.Device, kind hw.DescriptorKind, count uint32, label string) (*Heap, error) {
	if count == 0 {
		return nil, fmt.Errorf("%w: %v shader heap", ErrZeroCount, kind)
	}
	native, err := dev.CreateDescriptorHeap(hw.DescriptorHeapDesc{
		Label:         label,
		Kind:          kind,
		Count:         count,
		ShaderVisible: true,
	})
	if err != nil {
		return nil, fmt.Errorf("descriptor: create %v shader heap: %w", kind, err)
	}
	return &Heap{native: native, kind: kind, cap: count}, nil
}

// Native returns the hardware heap for SetDescriptorHeaps.
func (h *Heap) Native() hw.DescriptorHeap { return h.native }

// Kind returns the descriptor kind.
func (h *Heap) Kind() hw.DescriptorKind { return h.kind }

// Allocate returns the next slot.
func (h *Heap) Allocate() (Handle, error) { return h.AllocateRange(1) }

// AllocateRange returns the first of n contiguous slots.
func (h *Heap) AllocateRange(n uint32) (Handle, error) {
	if n == 0 {
		return Handle{}, fmt.Errorf("%w: %v shader heap", ErrZeroCount, h.kind)
	}
	if n > h.cap-h.cursor {
		return Handle{}, fmt.Errorf("%w: %v heap has %d of %d slots left, %d requested",
			ErrHeapFull, h.kind, h.cap-h.cursor, h.cap, n)
	}
	start := Handle{Kind: h.kind, CPU: h.native.CPUStart(), GPU: h.native.GPUStart()}
	out := start.Offset(h.cursor, h.native.Increment())
	h.cursor += n
	h.peak = max(h.peak, h.cursor)
	return out, nil
}

// Reset rewinds the cursor to slot 0.
func (h *Heap) Reset() { h.cursor = 0 }

// Used returns the number of slots allocated since the last Reset.
func (h *Heap) Used() uint32 { return h.cursor }

// Peak returns the highest Used value ever reached.
func (h *Heap) Peak() uint32 { return h.peak }

// Capacity returns the slot count.
func (h *Heap) Capacity() uint32 { return h.cap }

// Destroy releases the hardware heap.
func (h *Heap) Destroy() {
	if h.native != nil {
		h.native.Destroy()
		h.native = nil
	}
}
