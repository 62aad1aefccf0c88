package framekit

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/descriptor"
	"github.com/gogpu/framekit/internal/ring"
)

// DescriptorSource is a CPU descriptor that CommandList.CopyDescriptors
// can place into a shader-visible table: a *Descriptor holding a
// constant-buffer, shader-resource or unordered-access view, or a Sampler.
type DescriptorSource interface {
	cpuHandle() (descriptor.Handle, error)
}

// Descriptor is an owning CPU descriptor slot holding one view. Release
// returns the slot once no frame in flight can reference it.
type Descriptor struct {
	dev      *Device
	h        descriptor.Handle
	kind     hw.ViewKind
	released atomic.Bool
}

// Kind returns the view kind.
func (v *Descriptor) Kind() hw.ViewKind { return v.kind }

// Handle returns the CPU slot.
func (v *Descriptor) Handle() descriptor.Handle { return v.h }

// Release schedules the slot for reuse.
func (v *Descriptor) Release() error {
	if v.released.Swap(true) {
		return fmt.Errorf("framekit: %v descriptor: %w", v.kind, ErrReleased)
	}
	v.dev.mem.ReleaseDescriptor(v.h)
	return nil
}

func (v *Descriptor) handleOf(kinds ...hw.ViewKind) (descriptor.Handle, error) {
	if v.released.Load() {
		return descriptor.Handle{}, fmt.Errorf("framekit: %v descriptor: %w", v.kind, ErrReleased)
	}
	for _, k := range kinds {
		if v.kind == k {
			return v.h, nil
		}
	}
	return descriptor.Handle{}, fmt.Errorf("framekit: %v descriptor used as %v: %w", v.kind, kinds[0], hw.ErrInvalidUsage)
}

func (v *Descriptor) rtvHandle() (descriptor.Handle, error) {
	return v.handleOf(hw.ViewRenderTarget)
}

func (v *Descriptor) dsvHandle() (descriptor.Handle, error) {
	return v.handleOf(hw.ViewDepthStencil)
}

func (v *Descriptor) cpuHandle() (descriptor.Handle, error) {
	return v.handleOf(hw.ViewShaderResource, hw.ViewConstantBuffer, hw.ViewUnorderedAccess)
}

func (d *Device) createView(view hw.ViewDesc) (*Descriptor, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	h, err := d.writeView(view)
	if err != nil {
		return nil, err
	}
	return &Descriptor{dev: d, h: h, kind: view.Kind}, nil
}

func requireBind(label string, have, want hw.BindFlags) error {
	if !have.Has(want) {
		return fmt.Errorf("framekit: %q was not created for this view: %w", label, hw.ErrInvalidUsage)
	}
	return nil
}

// CreateRenderTargetView creates a render target view of tex.
func (d *Device) CreateRenderTargetView(tex *Texture) (*Descriptor, error) {
	if _, err := tex.hwResource(); err != nil {
		return nil, err
	}
	if err := requireBind(tex.desc.Label, tex.desc.Bind, hw.BindRenderTarget); err != nil {
		return nil, err
	}
	return d.createView(hw.ViewDesc{Kind: hw.ViewRenderTarget, Texture: tex.native})
}

// CreateDepthStencilView creates a depth stencil view of tex.
func (d *Device) CreateDepthStencilView(tex *Texture) (*Descriptor, error) {
	if _, err := tex.hwResource(); err != nil {
		return nil, err
	}
	if !tex.desc.Format.IsDepth() {
		return nil, fmt.Errorf("framekit: depth view of %v texture %q: %w", tex.desc.Format, tex.desc.Label, hw.ErrInvalidUsage)
	}
	if err := requireBind(tex.desc.Label, tex.desc.Bind, hw.BindDepthStencil); err != nil {
		return nil, err
	}
	return d.createView(hw.ViewDesc{Kind: hw.ViewDepthStencil, Texture: tex.native})
}

// CreateShaderResourceView creates a shader resource view of tex.
func (d *Device) CreateShaderResourceView(tex *Texture) (*Descriptor, error) {
	if _, err := tex.hwResource(); err != nil {
		return nil, err
	}
	if err := requireBind(tex.desc.Label, tex.desc.Bind, hw.BindShaderResource); err != nil {
		return nil, err
	}
	return d.createView(hw.ViewDesc{Kind: hw.ViewShaderResource, Texture: tex.native})
}

// CreateBufferShaderResourceView creates a structured view of buf with
// elements of the buffer's stride.
func (d *Device) CreateBufferShaderResourceView(buf *Buffer) (*Descriptor, error) {
	if err := buf.checkRange(0, 0); err != nil {
		return nil, err
	}
	if err := requireBind(buf.desc.Label, buf.desc.Bind, hw.BindShaderResource); err != nil {
		return nil, err
	}
	return d.createView(hw.ViewDesc{
		Kind:   hw.ViewShaderResource,
		Buffer: buf.native,
		Size:   buf.desc.Size,
		Stride: buf.desc.Stride,
	})
}

// CreateUnorderedAccessView creates a read-write view of buf.
func (d *Device) CreateUnorderedAccessView(buf *Buffer) (*Descriptor, error) {
	if err := buf.checkRange(0, 0); err != nil {
		return nil, err
	}
	if err := requireBind(buf.desc.Label, buf.desc.Bind, hw.BindUnorderedAccess); err != nil {
		return nil, err
	}
	return d.createView(hw.ViewDesc{
		Kind:   hw.ViewUnorderedAccess,
		Buffer: buf.native,
		Size:   buf.desc.Size,
		Stride: buf.desc.Stride,
	})
}

// CreateConstantBufferView creates a view of size bytes of buf at offset.
// Offset must be a multiple of 256; size is rounded up to 256.
func (d *Device) CreateConstantBufferView(buf *Buffer, offset, size uint64) (*Descriptor, error) {
	if offset%ring.ConstantAlignment != 0 {
		return nil, fmt.Errorf("framekit: constant buffer offset %d is not %d-aligned: %w",
			offset, ring.ConstantAlignment, hw.ErrInvalidUsage)
	}
	size = alignConstant(size)
	if err := buf.checkRange(offset, size); err != nil {
		return nil, err
	}
	return d.createView(hw.ViewDesc{
		Kind:   hw.ViewConstantBuffer,
		Buffer: buf.native,
		Offset: offset,
		Size:   size,
	})
}

func alignConstant(size uint64) uint64 {
	const a = ring.ConstantAlignment
	return (size + a - 1) &^ (a - 1)
}

// Sampler is a de-duplicated sampler descriptor. It has no Release method:
// the device owns cached samplers and releases them on eviction. A Sampler
// stays usable for BufferCount frames after it was evicted, so fetch it
// with CreateSampler every frame rather than holding it.
type Sampler struct {
	h    descriptor.Handle
	desc hw.SamplerDesc
}

// Desc returns the sampler description.
func (s Sampler) Desc() hw.SamplerDesc { return s.desc }

func (s Sampler) cpuHandle() (descriptor.Handle, error) {
	if !s.h.IsValid() {
		return descriptor.Handle{}, fmt.Errorf("framekit: zero sampler: %w", hw.ErrInvalidUsage)
	}
	return s.h, nil
}

// CreateSampler returns the cached sampler for desc, creating it on first
// use.
func (d *Device) CreateSampler(desc hw.SamplerDesc) (Sampler, error) {
	if err := d.usable(); err != nil {
		return Sampler{}, err
	}
	h, err := d.samplers.GetOrCreate(desc, func() (descriptor.Handle, error) {
		return d.writeView(hw.ViewDesc{Kind: hw.ViewSampler, Sampler: &desc})
	})
	if err != nil {
		return Sampler{}, err
	}
	return Sampler{h: h, desc: desc}, nil
}

// GPUDescriptor is the base of a descriptor table in the current frame's
// shader-visible heap. It is valid only for the frame it was created in.
type GPUDescriptor struct {
	h     descriptor.Handle
	count uint32
}

// GPUAddress returns the table base.
func (g GPUDescriptor) GPUAddress() hw.GPUAddress { return g.h.GPU }

// Count returns the number of descriptors in the table.
func (g GPUDescriptor) Count() uint32 { return g.count }
