package framekit

import (
	"fmt"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/ring"
)

type ringSpan = ring.Span

// AllocateUpload reserves size bytes of upload ring memory for the current
// frame. The view is valid until the frame retires.
//
// ErrUploadRingFull is returned when the frames still in flight occupy the
// ring. The caller may present to retire frames, or split the upload.
//
// Must be called from the submission goroutine.
func (d *Device) AllocateUpload(size, align uint64) (BufferView, error) {
	if err := d.usable(); err != nil {
		return BufferView{}, err
	}
	span, err := d.mem.Upload().AllocateSpan(size, align)
	if err != nil {
		return BufferView{}, fmt.Errorf("framekit: upload allocation: %w", err)
	}
	return BufferView{span: span}, nil
}

// AllocateTextureUpload reserves texture staging memory with the 512-byte
// placement alignment texture copies require.
func (d *Device) AllocateTextureUpload(size uint64) (BufferView, error) {
	return d.AllocateUpload(size, ring.TextureAlignment)
}

// AllocateConstants reserves size bytes, rounded up to 256, for constants
// bound with SetGraphicsRootConstantBufferView.
func (d *Device) AllocateConstants(size uint64) (BufferView, error) {
	return d.AllocateUpload(alignConstant(size), ring.ConstantAlignment)
}

// UploadRingFull reports whether the ring has no free bytes left.
func (d *Device) UploadRingFull() bool { return d.mem.Upload().IsFull() }

// ConstantBuffer is an upload-heap buffer with a constant buffer view over
// its whole size.
type ConstantBuffer struct {
	*Buffer
	view *Descriptor
}

// NewConstantBuffer creates a constant buffer of at least size bytes. The
// size is rounded up to 256.
func (d *Device) NewConstantBuffer(label string, size uint64) (*ConstantBuffer, error) {
	size = alignConstant(size)
	buf, err := d.CreateBuffer(hw.BufferDesc{
		Label: label,
		Size:  size,
		Heap:  hw.HeapUpload,
		Bind:  hw.BindConstantBuffer,
	})
	if err != nil {
		return nil, err
	}
	view, err := d.CreateConstantBufferView(buf, 0, size)
	if err != nil {
		_ = buf.Release()
		return nil, err
	}
	return &ConstantBuffer{Buffer: buf, view: view}, nil
}

// View returns the constant buffer view.
func (c *ConstantBuffer) View() *Descriptor { return c.view }

// Write copies data to the start of the buffer.
func (c *ConstantBuffer) Write(data []byte) error {
	return c.SetData(nil, 0, data)
}

// Release schedules the buffer and its view for destruction.
func (c *ConstantBuffer) Release() error {
	verr := c.view.Release()
	if err := c.Buffer.Release(); err != nil {
		return err
	}
	return verr
}
