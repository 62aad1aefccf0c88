package halgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
)

// Allocator owns the hal command buffers and per-draw bind groups of the
// lists recorded into it until Reset.
type Allocator struct {
	dev  *Device
	kind hw.QueueKind

	mu      sync.Mutex
	buffers []hal.CommandBuffer
	groups  []hal.BindGroup
}

var _ hw.RecordingAllocator = (*Allocator)(nil)

// CreateRecordingAllocator creates an allocator for lists of kind.
func (d *Device) CreateRecordingAllocator(kind hw.QueueKind) (hw.RecordingAllocator, error) {
	return &Allocator{dev: d, kind: kind}, nil
}

// Kind returns the queue kind.
func (a *Allocator) Kind() hw.QueueKind { return a.kind }

func (a *Allocator) keep(buf hal.CommandBuffer, groups []hal.BindGroup) {
	a.mu.Lock()
	a.buffers = append(a.buffers, buf)
	a.groups = append(a.groups, groups...)
	a.mu.Unlock()
}

// Reset frees every command buffer and bind group recorded since the last
// Reset. The caller guarantees the GPU finished with them.
func (a *Allocator) Reset() error {
	a.mu.Lock()
	buffers, groups := a.buffers, a.groups
	a.buffers, a.groups = nil, nil
	a.mu.Unlock()

	for _, b := range buffers {
		a.dev.hal.FreeCommandBuffer(b)
	}
	for _, g := range groups {
		a.dev.hal.DestroyBindGroup(g)
	}
	return nil
}

// Destroy frees what Reset would.
func (a *Allocator) Destroy() { _ = a.Reset() }

// op is one recorded command, replayed into a hal encoder by Close.
type op func(*encoder) error

// CommandList records commands and encodes them into a hal command buffer
// on Close. Render passes are implicit: draws open one on the bound render
// targets, anything else closes it.
type CommandList struct {
	dev   *Device
	kind  hw.QueueKind
	alloc *Allocator

	recording bool
	ops       []op
	err       error

	// encoded is the command buffer of the last Close, owned by alloc.
	encoded hal.CommandBuffer
}

var _ hw.CommandList = (*CommandList)(nil)

// CreateCommandList creates a recording list bound to alloc.
func (d *Device) CreateCommandList(kind hw.QueueKind, alloc hw.RecordingAllocator) (hw.CommandList, error) {
	l := &CommandList{dev: d, kind: kind}
	if err := l.Reset(alloc); err != nil {
		return nil, err
	}
	return l, nil
}

// Kind returns the queue kind.
func (l *CommandList) Kind() hw.QueueKind { return l.kind }

// Reset starts a new recording into alloc.
func (l *CommandList) Reset(alloc hw.RecordingAllocator) error {
	a, ok := alloc.(*Allocator)
	if !ok || a == nil {
		return fmt.Errorf("halgpu: foreign allocator %T: %w", alloc, hw.ErrInvalidUsage)
	}
	if a.kind != l.kind {
		return fmt.Errorf("halgpu: %v allocator for %v list: %w", a.kind, l.kind, hw.ErrInvalidUsage)
	}
	if l.recording {
		return fmt.Errorf("halgpu: reset of a list that is still recording: %w", hw.ErrInvalidUsage)
	}
	l.alloc = a
	l.recording = true
	l.ops = l.ops[:0]
	l.err = nil
	l.encoded = nil
	return nil
}

// Close ends recording and encodes the list. Recording errors and
// encoding failures are reported here.
func (l *CommandList) Close() error {
	if !l.recording {
		return fmt.Errorf("halgpu: close of a list that is not recording: %w", hw.ErrInvalidUsage)
	}
	l.recording = false
	if l.err != nil {
		return l.err
	}
	buf, groups, err := l.encode()
	if err != nil {
		return err
	}
	l.encoded = buf
	l.alloc.keep(buf, groups)
	return nil
}

// Destroy drops the recording. Encoded buffers stay with the allocator.
func (l *CommandList) Destroy() {
	l.ops = nil
	l.recording = false
}

func (l *CommandList) record(o op) {
	if l.err == nil {
		l.ops = append(l.ops, o)
	}
}

func (l *CommandList) fail(format string, args ...any) {
	if l.err == nil {
		l.err = fmt.Errorf("halgpu: "+format+": %w", append(args, hw.ErrInvalidUsage)...)
	}
}

func (l *CommandList) requireDirect(name string) bool {
	if l.kind != hw.QueueDirect {
		l.fail("%s on a %v list", name, l.kind)
		return false
	}
	return true
}

// ResourceBarrier records texture transitions. Buffer barriers need no hal
// command; Before equal to After is invalid.
func (l *CommandList) ResourceBarrier(barriers ...hw.Barrier) {
	var out []hal.TextureBarrier
	for _, b := range barriers {
		if b.Before == b.After {
			l.fail("barrier from %v to itself", b.Before)
			return
		}
		if b.Resource == nil {
			l.fail("barrier on nil resource")
			return
		}
		if b.Resource.ResourceKind() != hw.ResourceTexture2D {
			continue
		}
		tex, ok := b.Resource.(*Texture)
		if !ok {
			l.fail("barrier on foreign texture %T", b.Resource)
			return
		}
		oldUsage, newUsage := stateUsage(b.Before), stateUsage(b.After)
		if oldUsage == newUsage {
			continue
		}
		out = append(out, hal.TextureBarrier{
			Texture: tex.hal,
			Usage:   hal.TextureUsageTransition{OldUsage: oldUsage, NewUsage: newUsage},
		})
	}
	if len(out) == 0 {
		return
	}
	l.record(func(e *encoder) error {
		e.endPass()
		e.enc.TransitionTextures(out)
		return nil
	})
}

// CopyBufferRegion records a buffer copy. hal copies whole words, so size
// is rounded up to 4 bytes; both offsets must be word aligned.
func (l *CommandList) CopyBufferRegion(dst hw.Buffer, dstOffset uint64, src hw.Buffer, srcOffset, size uint64) {
	d, err := asBuffer(dst)
	if err != nil {
		l.fail("copy destination: %v", err)
		return
	}
	s, err := asBuffer(src)
	if err != nil {
		l.fail("copy source: %v", err)
		return
	}
	if dstOffset+size > d.Size() || srcOffset+size > s.Size() {
		l.fail("copy of %d bytes out of bounds", size)
		return
	}
	if dstOffset%4 != 0 || srcOffset%4 != 0 {
		l.fail("copy offsets %d, %d are not 4-byte aligned", srcOffset, dstOffset)
		return
	}
	size = (size + 3) &^ 3
	l.record(func(e *encoder) error {
		e.endPass()
		e.enc.CopyBufferToBuffer(s.hal, d.hal, []hal.BufferCopy{{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		}})
		return nil
	})
}

// CopyTextureRegion records a buffer to texture copy into mip level 0.
func (l *CommandList) CopyTextureRegion(dst hw.Texture, src hw.Buffer, fp hw.TextureFootprint) {
	t, err := asTexture(dst)
	if err != nil {
		l.fail("texture copy destination: %v", err)
		return
	}
	s, err := asBuffer(src)
	if err != nil {
		l.fail("texture copy source: %v", err)
		return
	}
	if err := fp.Validate(t, s.Size()); err != nil {
		l.fail("texture copy into %q: %v", t.desc.Label, err)
		return
	}
	l.record(func(e *encoder) error {
		e.endPass()
		e.enc.CopyBufferToTexture(s.hal, t.hal, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: fp.Offset, BytesPerRow: fp.RowPitch, RowsPerImage: fp.Height},
			TextureBase:  hal.ImageCopyTexture{Texture: t.hal, MipLevel: 0},
			Size:         hal.Extent3D{Width: fp.Width, Height: fp.Height, DepthOrArrayLayers: 1},
		}})
		return nil
	})
}

// SetDescriptorHeaps validates the heaps. Tables are resolved by address,
// so nothing is recorded.
func (l *CommandList) SetDescriptorHeaps(heaps ...hw.DescriptorHeap) {
	for _, h := range heaps {
		if !h.Desc().ShaderVisible {
			l.fail("binding CPU-only %v heap %q", h.Desc().Kind, h.Desc().Label)
			return
		}
	}
}

func (l *CommandList) SetGraphicsRootSignature(rs hw.RootSignature) {
	if !l.requireDirect("SetGraphicsRootSignature") {
		return
	}
	root, ok := rs.(*RootSignature)
	if !ok || root == nil {
		l.fail("foreign root signature %T", rs)
		return
	}
	l.record(func(e *encoder) error {
		e.setRoot(root)
		return nil
	})
}

func (l *CommandList) SetGraphicsRootDescriptorTable(index uint32, base hw.GPUAddress) {
	if !l.requireDirect("SetGraphicsRootDescriptorTable") {
		return
	}
	if base == 0 {
		l.fail("root table %d at null address", index)
		return
	}
	l.record(func(e *encoder) error {
		e.tables[index] = binding{addr: base}
		return nil
	})
}

// SetGraphicsRoot32BitConstants has no hal equivalent; the constants are
// dropped and logged at debug level when the list is encoded.
func (l *CommandList) SetGraphicsRoot32BitConstants(index uint32, values []uint32, _ uint32) {
	if !l.requireDirect("SetGraphicsRoot32BitConstants") {
		return
	}
	n := len(values)
	l.record(func(e *encoder) error {
		e.skipped("root constants", "index", index, "values", n)
		return nil
	})
}

func (l *CommandList) SetGraphicsRootConstantBufferView(index uint32, addr hw.GPUAddress) {
	if !l.requireDirect("SetGraphicsRootConstantBufferView") {
		return
	}
	buf, off, ok := l.dev.addresses.Resolve(addr)
	if !ok {
		l.fail("root constant buffer %d at unmapped address %#x", index, uint64(addr))
		return
	}
	b := buf.(*Buffer)
	l.record(func(e *encoder) error {
		e.tables[index] = binding{addr: addr, inline: true, buf: b, offset: off}
		return nil
	})
}

func (l *CommandList) SetPipeline(p hw.Pipeline) {
	if !l.requireDirect("SetPipeline") {
		return
	}
	pipe, ok := p.(*Pipeline)
	if !ok || pipe == nil {
		l.fail("foreign pipeline %T", p)
		return
	}
	l.record(func(e *encoder) error {
		e.pipeline = pipe
		return nil
	})
}

// SetPrimitiveTopology is fixed by the pipeline in hal.
func (l *CommandList) SetPrimitiveTopology(hw.Topology) {
	l.requireDirect("SetPrimitiveTopology")
}

func (l *CommandList) SetViewports(viewports ...hw.Viewport) {
	if !l.requireDirect("SetViewports") || len(viewports) == 0 {
		return
	}
	vp := viewports[0]
	l.record(func(e *encoder) error {
		e.viewport = &vp
		return nil
	})
}

func (l *CommandList) SetScissorRects(rects ...hw.Rect) {
	if !l.requireDirect("SetScissorRects") || len(rects) == 0 {
		return
	}
	r := rects[0]
	if r.Right < r.Left || r.Bottom < r.Top {
		l.fail("inverted scissor %+v", r)
		return
	}
	l.record(func(e *encoder) error {
		e.scissor = &r
		return nil
	})
}

// viewTexture resolves a CPU descriptor to the texture of a view of kind.
func (l *CommandList) viewTexture(addr hw.CPUAddress, kind hw.ViewKind) (*Texture, bool) {
	v, err := l.dev.descriptors.Read(addr)
	if err != nil {
		l.fail("%v descriptor: %v", kind, err)
		return nil, false
	}
	if v.Kind != kind {
		l.fail("%v descriptor holds a %v view", kind, v.Kind)
		return nil, false
	}
	tex, err := asTexture(v.Texture)
	if err != nil {
		l.fail("%v view: %v", kind, err)
		return nil, false
	}
	return tex, true
}

func (l *CommandList) SetRenderTargets(rtvs []hw.CPUAddress, dsv hw.CPUAddress) {
	if !l.requireDirect("SetRenderTargets") {
		return
	}
	colors := make([]*Texture, 0, len(rtvs))
	for _, a := range rtvs {
		tex, ok := l.viewTexture(a, hw.ViewRenderTarget)
		if !ok {
			return
		}
		colors = append(colors, tex)
	}
	var depth *Texture
	if dsv != 0 {
		var ok bool
		if depth, ok = l.viewTexture(dsv, hw.ViewDepthStencil); !ok {
			return
		}
	}
	l.record(func(e *encoder) error {
		e.endPass()
		e.colors, e.depth = colors, depth
		return nil
	})
}

func (l *CommandList) ClearRenderTargetView(rtv hw.CPUAddress, color [4]float32) {
	if !l.requireDirect("ClearRenderTargetView") {
		return
	}
	tex, ok := l.viewTexture(rtv, hw.ViewRenderTarget)
	if !ok {
		return
	}
	l.record(func(e *encoder) error {
		e.clearColor(tex, color)
		return nil
	})
}

func (l *CommandList) ClearDepthStencilView(dsv hw.CPUAddress, depth float32, stencil uint8) {
	if !l.requireDirect("ClearDepthStencilView") {
		return
	}
	tex, ok := l.viewTexture(dsv, hw.ViewDepthStencil)
	if !ok {
		return
	}
	l.record(func(e *encoder) error {
		e.clearDepth(tex, depth, stencil)
		return nil
	})
}

func (l *CommandList) SetVertexBuffers(startSlot uint32, views ...hw.VertexBufferView) {
	if !l.requireDirect("SetVertexBuffers") {
		return
	}
	for i, v := range views {
		buf, off, ok := l.dev.addresses.Resolve(v.Address)
		if !ok {
			l.fail("vertex buffer %d at unmapped address %#x", startSlot+uint32(i), uint64(v.Address))
			return
		}
		slot, b := startSlot+uint32(i), buf.(*Buffer)
		l.record(func(e *encoder) error {
			e.vertex[slot] = binding{buf: b, offset: off}
			return nil
		})
	}
}

func (l *CommandList) SetIndexBuffer(view hw.IndexBufferView) {
	if !l.requireDirect("SetIndexBuffer") {
		return
	}
	format, err := indexFormat(view.Format)
	if err != nil {
		l.fail("index buffer: %v", err)
		return
	}
	buf, off, ok := l.dev.addresses.Resolve(view.Address)
	if !ok {
		l.fail("index buffer at unmapped address %#x", uint64(view.Address))
		return
	}
	b := buf.(*Buffer)
	l.record(func(e *encoder) error {
		e.index = &indexBinding{binding: binding{buf: b, offset: off}, format: format}
		return nil
	})
}

func (l *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	if !l.requireDirect("DrawInstanced") {
		return
	}
	l.record(func(e *encoder) error {
		pass, err := e.prepareDraw(false)
		if err != nil {
			return err
		}
		pass.Draw(vertexCount, instanceCount, startVertex, startInstance)
		return nil
	})
}

func (l *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !l.requireDirect("DrawIndexedInstanced") {
		return
	}
	l.record(func(e *encoder) error {
		pass, err := e.prepareDraw(true)
		if err != nil {
			return err
		}
		pass.DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance)
		return nil
	})
}

// errNoTarget is returned when a draw has no render target bound.
var errNoTarget = errors.New("halgpu: draw without a render target")
