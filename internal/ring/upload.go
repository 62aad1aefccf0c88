package ring

import (
	"fmt"

	"github.com/gogpu/framekit/hw"
)

// Span is a sub-allocation of the upload buffer. It borrows the ring's
// memory; it is never freed on its own and is valid until the frame that
// allocated it retires.
type Span struct {
	Buffer hw.Buffer
	Offset uint64
	Size   uint64
	GPU    hw.GPUAddress

	// Data is the CPU-writable window onto the span.
	Data []byte
}

// Upload couples a Ring with a persistently mapped upload-heap buffer.
//
// Thread Safety: Upload is single-writer, like Ring.
type Upload struct {
	*Ring
	buf    hw.Buffer
	mapped []byte
}

// NewUpload creates and maps a size-byte upload buffer.
func NewUpload(dev hw.Device, size uint64) (*Upload, error) {
	r, err := New(size)
	if err != nil {
		return nil, err
	}
	buf, err := dev.CreateBuffer(hw.BufferDesc{
		Label:        "upload ring",
		Size:         size,
		Heap:         hw.HeapUpload,
		InitialState: hw.StateGenericRead,
	})
	if err != nil {
		return nil, fmt.Errorf("ring: create upload buffer: %w", err)
	}
	mapped, err := buf.Map()
	if err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("ring: map upload buffer: %w", err)
	}
	return &Upload{Ring: r, buf: buf, mapped: mapped}, nil
}

// Buffer returns the backing buffer.
func (u *Upload) Buffer() hw.Buffer { return u.buf }

// AllocateSpan reserves size bytes and returns a view of them.
func (u *Upload) AllocateSpan(size, align uint64) (Span, error) {
	off, err := u.Allocate(size, align)
	if err != nil {
		return Span{}, err
	}
	return Span{
		Buffer: u.buf,
		Offset: off,
		Size:   size,
		GPU:    u.buf.GPUAddress() + hw.GPUAddress(off),
		Data:   u.mapped[off : off+size : off+size],
	}, nil
}

// Destroy unmaps and releases the buffer. The GPU must be idle.
func (u *Upload) Destroy() {
	if u.buf == nil {
		return
	}
	u.buf.Unmap(0, u.Size())
	u.buf.Destroy()
	u.buf, u.mapped = nil, nil
}
