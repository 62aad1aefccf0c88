// Package hwutil holds bookkeeping shared by hw backends that have no native
// descriptor heaps: a synthetic address space for descriptor slots and for
// buffer GPU addresses.
package hwutil

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/framekit/hw"
)

// DescriptorIncrement is the slot stride of synthetic descriptor heaps.
const DescriptorIncrement = 32

// heapGap separates consecutive heaps so that off-by-one addresses fall
// outside any heap.
const heapGap = 1 << 16

// DescriptorSpace maps synthetic descriptor addresses to view contents.
//
// Thread Safety: DescriptorSpace is safe for concurrent use.
type DescriptorSpace struct {
	mu      sync.RWMutex
	nextCPU hw.CPUAddress
	nextGPU hw.GPUAddress
	heaps   []*Heap // sorted by cpu base
}

// NewDescriptorSpace creates an empty address space.
func NewDescriptorSpace() *DescriptorSpace {
	return &DescriptorSpace{
		nextCPU: 0x1000_0000,
		nextGPU: 0x8000_0000,
	}
}

// Heap is a descriptor heap carved out of a DescriptorSpace.
// It implements hw.DescriptorHeap.
type Heap struct {
	space *DescriptorSpace
	desc  hw.DescriptorHeapDesc
	cpu   hw.CPUAddress
	gpu   hw.GPUAddress
	slots []hw.ViewDesc
}

// Reserve creates a heap for desc.
func (s *DescriptorSpace) Reserve(desc hw.DescriptorHeapDesc) (*Heap, error) {
	if desc.Count == 0 {
		return nil, fmt.Errorf("hwutil: descriptor heap %q with zero slots", desc.Label)
	}
	if desc.ShaderVisible && !desc.Kind.ShaderVisibleAllowed() {
		return nil, fmt.Errorf("hwutil: %s heaps cannot be shader-visible: %w", desc.Kind, hw.ErrUnsupported)
	}
	span := uint64(desc.Count) * DescriptorIncrement

	s.mu.Lock()
	defer s.mu.Unlock()

	h := &Heap{
		space: s,
		desc:  desc,
		cpu:   s.nextCPU,
		slots: make([]hw.ViewDesc, desc.Count),
	}
	s.nextCPU += hw.CPUAddress(span + heapGap)
	if desc.ShaderVisible {
		h.gpu = s.nextGPU
		s.nextGPU += hw.GPUAddress(span + heapGap)
	}
	s.heaps = append(s.heaps, h)
	return h, nil
}

func (h *Heap) Desc() hw.DescriptorHeapDesc { return h.desc }
func (h *Heap) CPUStart() hw.CPUAddress     { return h.cpu }
func (h *Heap) GPUStart() hw.GPUAddress     { return h.gpu }
func (h *Heap) Increment() uint32           { return DescriptorIncrement }

// Destroy removes the heap from its address space.
func (h *Heap) Destroy() {
	s := h.space
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.heaps {
		if other == h {
			s.heaps = append(s.heaps[:i], s.heaps[i+1:]...)
			break
		}
	}
	h.slots = nil
}

// Len returns the number of live heaps.
func (s *DescriptorSpace) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.heaps)
}

// lookup resolves a CPU address to its heap and slot index. Caller holds mu.
func (s *DescriptorSpace) lookup(addr hw.CPUAddress) (*Heap, int, error) {
	i := sort.Search(len(s.heaps), func(i int) bool { return s.heaps[i].cpu > addr }) - 1
	if i < 0 {
		return nil, 0, fmt.Errorf("%w: %#x", hw.ErrInvalidDescriptor, uint64(addr))
	}
	h := s.heaps[i]
	off := uint64(addr - h.cpu)
	if off%DescriptorIncrement != 0 || off/DescriptorIncrement >= uint64(len(h.slots)) {
		return nil, 0, fmt.Errorf("%w: %#x", hw.ErrInvalidDescriptor, uint64(addr))
	}
	return h, int(off / DescriptorIncrement), nil
}

// Write stores view at dst.
func (s *DescriptorSpace) Write(dst hw.CPUAddress, view hw.ViewDesc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, i, err := s.lookup(dst)
	if err != nil {
		return err
	}
	if view.DescriptorKind() != h.desc.Kind {
		return fmt.Errorf("hwutil: %s view in %s heap: %w", view.Kind, h.desc.Kind, hw.ErrInvalidDescriptor)
	}
	h.slots[i] = view
	return nil
}

// Read returns the view stored at addr.
func (s *DescriptorSpace) Read(addr hw.CPUAddress) (hw.ViewDesc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, i, err := s.lookup(addr)
	if err != nil {
		return hw.ViewDesc{}, err
	}
	return h.slots[i], nil
}

// ReadGPU returns count views starting at a shader-visible address.
func (s *DescriptorSpace) ReadGPU(addr hw.GPUAddress, count uint32) ([]hw.ViewDesc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.heaps {
		if h.gpu == 0 || addr < h.gpu {
			continue
		}
		off := uint64(addr - h.gpu)
		if off%DescriptorIncrement != 0 {
			continue
		}
		first := off / DescriptorIncrement
		if first+uint64(count) > uint64(len(h.slots)) {
			continue
		}
		out := make([]hw.ViewDesc, count)
		copy(out, h.slots[first:first+uint64(count)])
		return out, nil
	}
	return nil, fmt.Errorf("%w: gpu %#x", hw.ErrInvalidDescriptor, uint64(addr))
}

// Copy copies count slots from src to dst. Both ranges must lie within a
// single heap of the given kind.
func (s *DescriptorSpace) Copy(kind hw.DescriptorKind, dst, src hw.CPUAddress, count uint32) error {
	if count == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, si, err := s.lookup(src)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	dh, di, err := s.lookup(dst)
	if err != nil {
		return fmt.Errorf("copy destination: %w", err)
	}
	if sh.desc.Kind != kind || dh.desc.Kind != kind {
		return fmt.Errorf("hwutil: copy of %s descriptors between %s and %s heaps: %w",
			kind, sh.desc.Kind, dh.desc.Kind, hw.ErrInvalidDescriptor)
	}
	if si+int(count) > len(sh.slots) || di+int(count) > len(dh.slots) {
		return fmt.Errorf("hwutil: copy of %d descriptors overruns heap: %w", count, hw.ErrInvalidDescriptor)
	}
	copy(dh.slots[di:di+int(count)], sh.slots[si:si+int(count)])
	return nil
}
