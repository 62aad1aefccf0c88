package framekit

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/descriptor"
	"github.com/gogpu/framekit/internal/memory"
	"github.com/gogpu/framekit/internal/ring"
)

// uploadAlignment is the placement alignment of buffer staging spans.
const uploadAlignment = 16

// Buffer is an owning GPU buffer. Release schedules its destruction once
// no frame in flight can reference it.
type Buffer struct {
	dev      *Device
	id       memory.ResourceID
	native   hw.Buffer
	desc     hw.BufferDesc
	state    hw.ResourceState
	released atomic.Bool
}

// CreateBuffer allocates a buffer. Upload-heap buffers start in
// StateGenericRead and readback buffers in StateCopyDest unless desc says
// otherwise.
func (d *Device) CreateBuffer(desc hw.BufferDesc) (*Buffer, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if desc.InitialState == hw.StateCommon {
		switch desc.Heap {
		case hw.HeapUpload:
			desc.InitialState = hw.StateGenericRead
		case hw.HeapReadback:
			desc.InitialState = hw.StateCopyDest
		}
	}
	native, err := d.hw.CreateBuffer(desc)
	if err != nil {
		return nil, d.fail(fmt.Errorf("framekit: create buffer %q: %w", desc.Label, err))
	}
	return &Buffer{
		dev:    d,
		id:     d.mem.TrackResource(native),
		native: native,
		desc:   desc,
		state:  desc.InitialState,
	}, nil
}

// Size returns the size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Desc returns the creation descriptor.
func (b *Buffer) Desc() hw.BufferDesc { return b.desc }

// State returns the tracked state as of the last executed command list.
func (b *Buffer) State() hw.ResourceState { return b.state }

// GPUAddress returns the base GPU address.
func (b *Buffer) GPUAddress() hw.GPUAddress { return b.native.GPUAddress() }

// Native returns the hardware buffer.
func (b *Buffer) Native() hw.Buffer { return b.native }

// Released reports whether Release was called.
func (b *Buffer) Released() bool { return b.released.Load() }

// Release schedules destruction. The buffer must not be recorded into lists
// after this call.
func (b *Buffer) Release() error {
	if b.released.Swap(true) {
		return fmt.Errorf("framekit: buffer %q: %w", b.desc.Label, ErrReleased)
	}
	return b.dev.mem.ReleaseResource(b.id)
}

func (b *Buffer) hwResource() (hw.Resource, error) {
	if b.released.Load() {
		return nil, fmt.Errorf("framekit: buffer %q: %w", b.desc.Label, ErrReleased)
	}
	return b.native, nil
}

func (b *Buffer) stateRef() *hw.ResourceState { return &b.state }

func (b *Buffer) gpuRange() (hw.GPUAddress, uint64, error) {
	if b.released.Load() {
		return 0, 0, fmt.Errorf("framekit: buffer %q: %w", b.desc.Label, ErrReleased)
	}
	return b.native.GPUAddress(), b.desc.Size, nil
}

func (b *Buffer) checkRange(offset, size uint64) error {
	if b.released.Load() {
		return fmt.Errorf("framekit: buffer %q: %w", b.desc.Label, ErrReleased)
	}
	if offset > b.desc.Size || size > b.desc.Size-offset {
		return fmt.Errorf("%w: [%d, %d) of %d-byte buffer %q",
			ErrOutOfRange, offset, offset+size, b.desc.Size, b.desc.Label)
	}
	return nil
}

// SetData writes data at offset.
//
// Upload-heap buffers are written through their mapping and cl may be nil.
// Default-heap buffers are staged in the upload ring and copied by cl, which
// must be recording; the buffer is transitioned to StateCopyDest for the copy
// and back to its previous state afterwards.
func (b *Buffer) SetData(cl *CommandList, offset uint64, data []byte) error {
	if err := b.checkRange(offset, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	switch b.desc.Heap {
	case hw.HeapUpload:
		mapped, err := b.native.Map()
		if err != nil {
			return fmt.Errorf("framekit: map buffer %q: %w", b.desc.Label, err)
		}
		copy(mapped[offset:], data)
		b.native.Unmap(offset, uint64(len(data)))
		return nil
	case hw.HeapReadback:
		return fmt.Errorf("framekit: write to readback buffer %q: %w", b.desc.Label, hw.ErrInvalidUsage)
	}

	if cl == nil || cl.dev != b.dev {
		return fmt.Errorf("framekit: default-heap buffer %q needs a command list: %w",
			b.desc.Label, hw.ErrInvalidUsage)
	}
	if !cl.recording {
		return ErrNotRecording
	}
	span, err := b.dev.mem.Upload().AllocateSpan(uint64(len(data)), uploadAlignment)
	if err != nil {
		return fmt.Errorf("framekit: stage %d bytes for %q: %w", len(data), b.desc.Label, err)
	}
	copy(span.Data, data)
	span.Buffer.Unmap(span.Offset, span.Size)

	before := cl.stateOf(&b.state)
	cl.Transition(b, hw.StateCopyDest)
	if cl.check("set data") {
		cl.native.CopyBufferRegion(b.native, offset, span.Buffer, span.Offset, span.Size)
	}
	cl.Transition(b, before)
	return cl.err
}

// Texture is an owning 2D texture.
type Texture struct {
	dev      *Device
	id       memory.ResourceID
	native   hw.Texture
	desc     hw.TextureDesc
	state    hw.ResourceState
	released atomic.Bool
}

// CreateTexture allocates a texture. Zero mip and sample counts mean 1.
func (d *Device) CreateTexture(desc hw.TextureDesc) (*Texture, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	native, err := d.hw.CreateTexture(desc)
	if err != nil {
		return nil, d.fail(fmt.Errorf("framekit: create texture %q: %w", desc.Label, err))
	}
	return &Texture{
		dev:    d,
		id:     d.mem.TrackResource(native),
		native: native,
		desc:   desc,
		state:  desc.InitialState,
	}, nil
}

// Width returns the width in texels.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height returns the height in texels.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Format returns the texel format.
func (t *Texture) Format() hw.Format { return t.desc.Format }

// Desc returns the creation descriptor.
func (t *Texture) Desc() hw.TextureDesc { return t.desc }

// State returns the tracked state as of the last executed command list.
func (t *Texture) State() hw.ResourceState { return t.state }

// Native returns the hardware texture.
func (t *Texture) Native() hw.Texture { return t.native }

// Release schedules destruction.
func (t *Texture) Release() error {
	if t.released.Swap(true) {
		return fmt.Errorf("framekit: texture %q: %w", t.desc.Label, ErrReleased)
	}
	return t.dev.mem.ReleaseResource(t.id)
}

func (t *Texture) hwResource() (hw.Resource, error) {
	if t.released.Load() {
		return nil, fmt.Errorf("framekit: texture %q: %w", t.desc.Label, ErrReleased)
	}
	return t.native, nil
}

func (t *Texture) stateRef() *hw.ResourceState { return &t.state }

// SetData replaces the first mip level. data holds Height rows of Width
// texels without padding.
//
// The rows are staged in the upload ring at the aligned row pitch and
// copied by cl, which must be recording. The texture is transitioned to
// StateCopyDest for the copy and back to its previous state afterwards.
func (t *Texture) SetData(cl *CommandList, data []byte) error {
	if t.released.Load() {
		return fmt.Errorf("framekit: texture %q: %w", t.desc.Label, ErrReleased)
	}
	bpp := t.desc.Format.BytesPerElement()
	if bpp == 0 || t.desc.Format.IsDepth() {
		return fmt.Errorf("framekit: upload to %v texture %q: %w", t.desc.Format, t.desc.Label, hw.ErrUnsupported)
	}
	row := uint64(t.desc.Width) * uint64(bpp)
	if uint64(len(data)) != row*uint64(t.desc.Height) {
		return fmt.Errorf("%w: %d bytes for %dx%d %v texture %q", ErrOutOfRange,
			len(data), t.desc.Width, t.desc.Height, t.desc.Format, t.desc.Label)
	}
	if cl == nil || cl.dev != t.dev {
		return fmt.Errorf("framekit: texture %q needs a command list: %w", t.desc.Label, hw.ErrInvalidUsage)
	}
	if !cl.recording {
		return ErrNotRecording
	}

	pitch := hw.RowPitchFor(t.desc.Format, t.desc.Width)
	span, err := t.dev.mem.Upload().AllocateSpan(uint64(pitch)*uint64(t.desc.Height), ring.TextureAlignment)
	if err != nil {
		return fmt.Errorf("framekit: stage %d bytes for %q: %w", len(data), t.desc.Label, err)
	}
	for y := range uint64(t.desc.Height) {
		copy(span.Data[y*uint64(pitch):], data[y*row:(y+1)*row])
	}
	span.Buffer.Unmap(span.Offset, span.Size)

	before := cl.stateOf(&t.state)
	cl.Transition(t, hw.StateCopyDest)
	if cl.check("set texture data") {
		cl.native.CopyTextureRegion(t.native, span.Buffer, hw.TextureFootprint{
			Offset:   span.Offset,
			Width:    t.desc.Width,
			Height:   t.desc.Height,
			RowPitch: pitch,
		})
	}
	cl.Transition(t, before)
	return cl.err
}

// BufferView is a non-owning window onto upload ring memory. It is valid
// until the frame that allocated it retires and has no Release method.
type BufferView struct {
	span ringSpan
}

// Data returns the CPU-writable bytes of the view.
func (v BufferView) Data() []byte { return v.span.Data }

// Size returns the size in bytes.
func (v BufferView) Size() uint64 { return v.span.Size }

// Offset returns the offset inside the upload buffer.
func (v BufferView) Offset() uint64 { return v.span.Offset }

// GPUAddress returns the GPU address of the first byte.
func (v BufferView) GPUAddress() hw.GPUAddress { return v.span.GPU }

func (v BufferView) gpuRange() (hw.GPUAddress, uint64, error) {
	if v.span.Buffer == nil {
		return 0, 0, fmt.Errorf("framekit: empty buffer view: %w", hw.ErrInvalidUsage)
	}
	// Binding the view publishes what the CPU wrote into it.
	v.publish()
	return v.span.GPU, v.span.Size, nil
}

// publish makes CPU writes to the view visible to the GPU.
func (v BufferView) publish() {
	if v.span.Buffer != nil {
		v.span.Buffer.Unmap(v.span.Offset, v.span.Size)
	}
}

// BackBuffer is the current swap-chain image. It does not own the texture
// and becomes stale on Resize.
type BackBuffer struct {
	t *target
}

// DepthBuffer is the depth buffer of the current frame slot. It is owned
// by the device and becomes stale on Resize.
type DepthBuffer struct {
	t *target
}

// BackBuffer returns the swap-chain image of the current frame slot.
func (d *Device) BackBuffer() BackBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slot >= len(d.targets) {
		return BackBuffer{}
	}
	return BackBuffer{t: d.targets[d.slot]}
}

// DepthBuffer returns the depth buffer of the current frame slot. Using it
// fails when Config.DepthFormat is FormatUnknown.
func (d *Device) DepthBuffer() DepthBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slot >= len(d.targets) {
		return DepthBuffer{}
	}
	return DepthBuffer{t: d.targets[d.slot]}
}

func (b BackBuffer) live() (*target, error) {
	if b.t == nil || b.t.stale {
		return nil, ErrStaleTarget
	}
	return b.t, nil
}

// Texture returns the swap-chain texture.
func (b BackBuffer) Texture() (hw.Texture, error) {
	t, err := b.live()
	if err != nil {
		return nil, err
	}
	return t.texture, nil
}

// State returns the tracked state of the image as of the last executed
// command list.
func (b BackBuffer) State() hw.ResourceState {
	if b.t == nil {
		return hw.StateCommon
	}
	return b.t.state
}

func (b BackBuffer) hwResource() (hw.Resource, error) {
	t, err := b.live()
	if err != nil {
		return nil, err
	}
	return t.texture, nil
}

func (b BackBuffer) stateRef() *hw.ResourceState {
	if b.t == nil {
		return new(hw.ResourceState)
	}
	return &b.t.state
}

func (b BackBuffer) rtvHandle() (descriptor.Handle, error) {
	t, err := b.live()
	if err != nil {
		return descriptor.Handle{}, err
	}
	return t.rtv, nil
}

func (b DepthBuffer) live() (*target, error) {
	if b.t == nil || b.t.stale {
		return nil, ErrStaleTarget
	}
	if b.t.depth == nil {
		return nil, fmt.Errorf("%w: device has no depth buffers", ErrInvalidState)
	}
	return b.t, nil
}

// Texture returns the depth texture.
func (b DepthBuffer) Texture() (hw.Texture, error) {
	t, err := b.live()
	if err != nil {
		return nil, err
	}
	return t.depth, nil
}

func (b DepthBuffer) hwResource() (hw.Resource, error) {
	t, err := b.live()
	if err != nil {
		return nil, err
	}
	return t.depth, nil
}

func (b DepthBuffer) stateRef() *hw.ResourceState {
	if b.t == nil {
		return new(hw.ResourceState)
	}
	return &b.t.depthState
}

func (b DepthBuffer) dsvHandle() (descriptor.Handle, error) {
	t, err := b.live()
	if err != nil {
		return descriptor.Handle{}, err
	}
	return t.dsv, nil
}
