package halgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
)

// Buffer is a hal buffer with a synthetic GPU address.
//
// hal writes buffers through the queue, so upload and readback heaps keep a
// CPU shadow: Unmap writes the touched range, Map on a readback buffer reads
// the whole buffer back.
type Buffer struct {
	dev  *Device
	hal  hal.Buffer
	desc hw.BufferDesc
	addr hw.GPUAddress

	mu     sync.Mutex
	shadow []byte
}

var _ hw.Buffer = (*Buffer)(nil)

// CreateBuffer creates a buffer. The hal size is rounded up to 4 bytes.
func (d *Device) CreateBuffer(desc hw.BufferDesc) (hw.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("halgpu: buffer %q with zero size: %w", desc.Label, hw.ErrInvalidUsage)
	}
	native, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  (desc.Size + 3) &^ 3,
		Usage: bufferUsage(desc),
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create buffer %q: %w: %v", desc.Label, hw.ErrOutOfDeviceMemory, err)
	}
	b := &Buffer{dev: d, hal: native, desc: desc}
	if desc.Heap != hw.HeapDefault {
		b.shadow = make([]byte, desc.Size)
	}
	b.addr = d.addresses.Map(b, desc.Size)
	return b, nil
}

func (b *Buffer) ResourceKind() hw.ResourceKind { return hw.ResourceBuffer }
func (b *Buffer) Size() uint64                  { return b.desc.Size }
func (b *Buffer) GPUAddress() hw.GPUAddress     { return b.addr }

// Hal returns the wrapped hal buffer.
func (b *Buffer) Hal() hal.Buffer { return b.hal }

// Map returns the CPU shadow of upload and readback buffers.
func (b *Buffer) Map() ([]byte, error) {
	switch b.desc.Heap {
	case hw.HeapUpload:
		return b.shadow, nil
	case hw.HeapReadback:
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.dev.queue.ReadBuffer(b.hal, 0, b.shadow); err != nil {
			return nil, fmt.Errorf("halgpu: read back %q: %w", b.desc.Label, err)
		}
		return b.shadow, nil
	}
	return nil, fmt.Errorf("halgpu: map %q: %w", b.desc.Label, hw.ErrNotMappable)
}

// Unmap writes [offset, offset+size) of the shadow to the GPU buffer.
func (b *Buffer) Unmap(offset, size uint64) {
	if b.desc.Heap != hw.HeapUpload || size == 0 || offset >= b.desc.Size {
		return
	}
	end := min(offset+size, b.desc.Size)
	// Queue writes need 4-byte aligned ranges.
	start := offset &^ 3
	end = min((end+3)&^3, uint64(len(b.shadow)))
	data := b.shadow[start:end]
	if len(data)%4 != 0 {
		padded := make([]byte, (len(data)+3)&^3)
		copy(padded, data)
		data = padded
	}
	b.dev.queue.WriteBuffer(b.hal, start, data)
}

// Destroy releases the hal buffer and its address range.
func (b *Buffer) Destroy() {
	b.dev.addresses.Unmap(b.addr)
	b.dev.hal.DestroyBuffer(b.hal)
}

// Texture is a hal texture together with its default view.
type Texture struct {
	dev    *Device
	hal    hal.Texture
	view   hal.TextureView
	desc   hw.TextureDesc
	format gputypes.TextureFormat

	// owner is set for swap-chain buffers, which are destroyed by the chain.
	owner *SwapChain
}

var _ hw.Texture = (*Texture)(nil)

// CreateTexture creates a 2D texture and a view over all of it.
func (d *Device) CreateTexture(desc hw.TextureDesc) (hw.Texture, error) {
	return d.createTexture(desc)
}

func (d *Device) createTexture(desc hw.TextureDesc) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("halgpu: texture %q is %dx%d: %w", desc.Label, desc.Width, desc.Height, hw.ErrInvalidUsage)
	}
	format, err := textureFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	native, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Bind),
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create texture %q: %w: %v", desc.Label, hw.ErrOutOfDeviceMemory, err)
	}
	view, err := d.hal.CreateTextureView(native, &hal.TextureViewDescriptor{
		Label: desc.Label + "_view",
	})
	if err != nil {
		d.hal.DestroyTexture(native)
		return nil, fmt.Errorf("halgpu: create view of %q: %w", desc.Label, err)
	}
	return &Texture{dev: d, hal: native, view: view, desc: desc, format: format}, nil
}

func (t *Texture) ResourceKind() hw.ResourceKind { return hw.ResourceTexture2D }
func (t *Texture) Width() uint32                 { return t.desc.Width }
func (t *Texture) Height() uint32                { return t.desc.Height }
func (t *Texture) Format() hw.Format             { return t.desc.Format }

// Hal returns the wrapped hal texture.
func (t *Texture) Hal() hal.Texture { return t.hal }

// View returns the default view.
func (t *Texture) View() hal.TextureView { return t.view }

// Destroy releases the view and the texture. Swap-chain buffers are owned
// by their chain and ignore Destroy.
func (t *Texture) Destroy() {
	if t.owner != nil {
		return
	}
	t.destroy()
}

func (t *Texture) destroy() {
	t.dev.hal.DestroyTextureView(t.view)
	t.dev.hal.DestroyTexture(t.hal)
}

func asBuffer(b hw.Buffer) (*Buffer, error) {
	buf, ok := b.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("halgpu: foreign buffer %T: %w", b, hw.ErrInvalidUsage)
	}
	return buf, nil
}

func asTexture(t hw.Texture) (*Texture, error) {
	tex, ok := t.(*Texture)
	if !ok || tex == nil {
		return nil, fmt.Errorf("halgpu: foreign texture %T: %w", t, hw.ErrInvalidUsage)
	}
	return tex, nil
}
