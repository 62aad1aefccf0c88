package sim

import (
	"fmt"

	"github.com/gogpu/framekit/hw"
)

// Buffer is a simulated buffer backed by a byte slice.
type Buffer struct {
	dev       *Device
	desc      hw.BufferDesc
	data      []byte
	addr      hw.GPUAddress
	destroyed bool
}

var _ hw.Buffer = (*Buffer)(nil)

func (b *Buffer) ResourceKind() hw.ResourceKind { return hw.ResourceBuffer }
func (b *Buffer) Size() uint64                  { return b.desc.Size }
func (b *Buffer) GPUAddress() hw.GPUAddress     { return b.addr }

// Desc returns the creation descriptor.
func (b *Buffer) Desc() hw.BufferDesc { return b.desc }

// Map returns the backing slice for upload and readback buffers.
func (b *Buffer) Map() ([]byte, error) {
	if b.desc.Heap == hw.HeapDefault {
		return nil, fmt.Errorf("sim: map of %q: %w", b.desc.Label, hw.ErrNotMappable)
	}
	return b.data, nil
}

// Unmap is a no-op: simulated memory is coherent.
func (b *Buffer) Unmap(uint64, uint64) {}

// Bytes returns the buffer contents as the GPU sees them, regardless of
// heap kind. Intended for tests.
func (b *Buffer) Bytes() []byte {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Destroyed reports whether Destroy was called.
func (b *Buffer) Destroyed() bool {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return b.destroyed
}

// Destroy releases the buffer.
func (b *Buffer) Destroy() {
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.destroyed {
		d.violate("buffer %q destroyed twice", b.desc.Label)
		return
	}
	b.destroyed = true
	d.addresses.Unmap(b.addr)
	d.stats.MemoryUsed -= b.desc.Size
	d.stats.Live.Buffers--
}

// Texture is a simulated texture. Texels of the first mip level are
// stored once a copy writes them.
type Texture struct {
	dev       *Device
	desc      hw.TextureDesc
	size      uint64
	texels    []byte
	destroyed bool
}

var _ hw.Texture = (*Texture)(nil)

func (t *Texture) ResourceKind() hw.ResourceKind { return hw.ResourceTexture2D }
func (t *Texture) Width() uint32                 { return t.desc.Width }
func (t *Texture) Height() uint32                { return t.desc.Height }
func (t *Texture) Format() hw.Format             { return t.desc.Format }

// Texels returns a copy of the first mip level, tightly packed row by row.
// A texture never written to reads as zeros.
func (t *Texture) Texels() []byte {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if t.texels == nil {
		return make([]byte, t.rowBytes()*int(t.desc.Height))
	}
	return append([]byte(nil), t.texels...)
}

func (t *Texture) rowBytes() int {
	return int(t.desc.Width * t.desc.Format.BytesPerElement())
}

// Destroyed reports whether Destroy was called.
func (t *Texture) Destroyed() bool {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.destroyed
}

// Destroy releases the texture.
func (t *Texture) Destroy() {
	d := t.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.destroyed {
		d.violate("texture %q destroyed twice", t.desc.Label)
		return
	}
	t.destroyed = true
	d.stats.MemoryUsed -= t.size
	d.stats.Live.Textures--
}

// RootSignature is a simulated root signature.
type RootSignature struct {
	dev  *Device
	desc hw.RootSignatureDesc
}

func (r *RootSignature) Desc() hw.RootSignatureDesc { return r.desc }

func (r *RootSignature) Destroy() {
	r.dev.mu.Lock()
	r.dev.stats.Live.RootSignatures--
	r.dev.mu.Unlock()
}

// Pipeline is a simulated pipeline.
type Pipeline struct {
	dev  *Device
	desc hw.PipelineDesc
}

func (p *Pipeline) Destroy() {
	p.dev.mu.Lock()
	p.dev.stats.Live.Pipelines--
	p.dev.mu.Unlock()
}

// SwapChain is an offscreen swap chain whose back buffers are simulated
// textures.
type SwapChain struct {
	dev     *Device
	desc    hw.SwapChainDesc
	buffers []*Texture
}

var _ hw.SwapChain = (*SwapChain)(nil)

func (s *SwapChain) createBuffers(width, height uint32) error {
	s.buffers = s.buffers[:0]
	for i := range s.desc.BufferCount {
		tex, err := s.dev.CreateTexture(hw.TextureDesc{
			Label:  fmt.Sprintf("backbuffer_%d", i),
			Width:  width,
			Height: height,
			Format: s.desc.Format,
			Bind:   hw.BindRenderTarget,
		})
		if err != nil {
			s.destroyBuffers()
			return fmt.Errorf("sim: create back buffer %d: %w", i, err)
		}
		s.buffers = append(s.buffers, tex.(*Texture))
	}
	s.desc.Surface.Width, s.desc.Surface.Height = width, height
	return nil
}

func (s *SwapChain) destroyBuffers() {
	for _, b := range s.buffers {
		b.Destroy()
	}
	s.buffers = nil
}

func (s *SwapChain) BufferCount() int { return len(s.buffers) }

func (s *SwapChain) Buffer(i int) (hw.Texture, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("sim: back buffer %d of %d: %w", i, len(s.buffers), hw.ErrInvalidUsage)
	}
	return s.buffers[i], nil
}

// Present counts the presentation.
func (s *SwapChain) Present(uint32) error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	d.stats.Presents++
	return nil
}

// Resize recreates the back buffers.
func (s *SwapChain) Resize(width, height uint32) error {
	s.destroyBuffers()
	return s.createBuffers(width, height)
}

func (s *SwapChain) Destroy() {
	s.destroyBuffers()
	s.dev.mu.Lock()
	s.dev.stats.Live.SwapChains--
	s.dev.mu.Unlock()
}
