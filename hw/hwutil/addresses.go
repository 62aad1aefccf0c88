package hwutil

import (
	"sort"
	"sync"

	"github.com/gogpu/framekit/hw"
)

// bufferAlignment is the alignment of synthetic buffer base addresses.
const bufferAlignment = 1 << 16

type addressRange struct {
	base hw.GPUAddress
	size uint64
	buf  hw.Buffer
}

// AddressSpace hands out GPU virtual addresses for buffers on backends
// without them, and resolves addresses back to (buffer, offset).
//
// Thread Safety: AddressSpace is safe for concurrent use.
type AddressSpace struct {
	mu     sync.RWMutex
	next   hw.GPUAddress
	ranges []addressRange // sorted by base
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{next: 0x1_0000_0000}
}

// Map assigns a base address to buf.
func (a *AddressSpace) Map(buf hw.Buffer, size uint64) hw.GPUAddress {
	a.mu.Lock()
	defer a.mu.Unlock()
	base := a.next
	span := (size + bufferAlignment - 1) &^ (bufferAlignment - 1)
	if span == 0 {
		span = bufferAlignment
	}
	a.next += hw.GPUAddress(span + bufferAlignment)
	a.ranges = append(a.ranges, addressRange{base: base, size: size, buf: buf})
	return base
}

// Unmap releases the range starting at base.
func (a *AddressSpace) Unmap(base hw.GPUAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].base >= base })
	if i < len(a.ranges) && a.ranges[i].base == base {
		a.ranges = append(a.ranges[:i], a.ranges[i+1:]...)
	}
}

// Resolve returns the buffer containing addr and the offset into it.
func (a *AddressSpace) Resolve(addr hw.GPUAddress) (hw.Buffer, uint64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].base > addr }) - 1
	if i < 0 {
		return nil, 0, false
	}
	r := a.ranges[i]
	off := uint64(addr - r.base)
	if off >= r.size {
		return nil, 0, false
	}
	return r.buf, off, true
}
