package framekit

import (
	"fmt"
	"math"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/cmdpool"
	"github.com/gogpu/framekit/internal/descriptor"
)

// Transitionable is a resource whose state a command list tracks:
// *Buffer, *Texture, BackBuffer and DepthBuffer.
type Transitionable interface {
	hwResource() (hw.Resource, error)
	stateRef() *hw.ResourceState
}

// BufferRange is GPU memory bindable as vertex, index or constant data:
// *Buffer and BufferView.
type BufferRange interface {
	gpuRange() (hw.GPUAddress, uint64, error)
}

// RenderTarget is a bindable render target view: BackBuffer or a
// *Descriptor created by CreateRenderTargetView.
type RenderTarget interface {
	rtvHandle() (descriptor.Handle, error)
}

// DepthTarget is a bindable depth stencil view: DepthBuffer or a
// *Descriptor created by CreateDepthStencilView.
type DepthTarget interface {
	dsvHandle() (descriptor.Handle, error)
}

// CommandList records GPU work for one queue.
//
// Recording methods do not return errors. The first misuse is remembered
// and returned by SubmitCommandList, which then executes nothing.
//
// A CommandList is only valid until it is submitted.
//
// Transitions take effect on the tracked resource states when the list is
// executed. A list that fails to submit leaves them unchanged.
type CommandList struct {
	dev       *Device
	kind      hw.QueueKind
	id        cmdpool.ListID
	native    hw.CommandList
	slot      int
	recording bool
	err       error
	states    map[*hw.ResourceState]hw.ResourceState
}

// Kind returns the queue kind the list records for.
func (cl *CommandList) Kind() hw.QueueKind { return cl.kind }

// Native returns the hardware command list.
func (cl *CommandList) Native() hw.CommandList { return cl.native }

// Err returns the first recording error.
func (cl *CommandList) Err() error { return cl.err }

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = err
	}
}

func (cl *CommandList) check(op string) bool {
	if !cl.recording {
		cl.fail(fmt.Errorf("framekit: %s: %w", op, ErrNotRecording))
		return false
	}
	return cl.err == nil
}

// Transition records a barrier moving r into state after. It records
// nothing when r is already in that state.
func (cl *CommandList) Transition(r Transitionable, after hw.ResourceState) {
	if !cl.check("transition") {
		return
	}
	res, err := r.hwResource()
	if err != nil {
		cl.fail(err)
		return
	}
	ref := r.stateRef()
	before := cl.stateOf(ref)
	if before == after {
		return
	}
	cl.native.ResourceBarrier(hw.Barrier{Resource: res, Before: before, After: after})
	if cl.states == nil {
		cl.states = make(map[*hw.ResourceState]hw.ResourceState)
	}
	cl.states[ref] = after
}

// stateOf returns the state ref is in at the current point of the list.
func (cl *CommandList) stateOf(ref *hw.ResourceState) hw.ResourceState {
	if s, ok := cl.states[ref]; ok {
		return s
	}
	return *ref
}

// commitStates applies the list's transitions once it has been executed.
func (cl *CommandList) commitStates() {
	for ref, s := range cl.states {
		*ref = s
	}
	cl.states = nil
}

// CopyBuffer copies size bytes between owning buffers.
func (cl *CommandList) CopyBuffer(dst *Buffer, dstOffset uint64, src *Buffer, srcOffset, size uint64) {
	if !cl.check("copy buffer") {
		return
	}
	if err := src.checkRange(srcOffset, size); err != nil {
		cl.fail(err)
		return
	}
	if err := dst.checkRange(dstOffset, size); err != nil {
		cl.fail(err)
		return
	}
	cl.native.CopyBufferRegion(dst.native, dstOffset, src.native, srcOffset, size)
}

// CopyFromUpload copies an upload view into dst at dstOffset.
func (cl *CommandList) CopyFromUpload(dst *Buffer, dstOffset uint64, src BufferView) {
	if !cl.check("copy from upload") {
		return
	}
	if err := dst.checkRange(dstOffset, src.span.Size); err != nil {
		cl.fail(err)
		return
	}
	src.publish()
	cl.native.CopyBufferRegion(dst.native, dstOffset, src.span.Buffer, src.span.Offset, src.span.Size)
}

// SetDescriptorHeaps binds the shader-visible heaps of the list's frame
// slot. BeginCommandList already does this for direct and compute lists.
func (cl *CommandList) SetDescriptorHeaps() {
	if !cl.check("set descriptor heaps") {
		return
	}
	s := cl.dev.mem.SlotHeaps(cl.slot)
	cl.native.SetDescriptorHeaps(s.Resource.Native(), s.Sampler.Native())
}

// CopyDescriptors copies CPU descriptors into contiguous slots of the
// current frame's shader-visible heap and returns the table base. All
// sources must share a heap kind: resource views or samplers.
func (cl *CommandList) CopyDescriptors(srcs ...DescriptorSource) (GPUDescriptor, error) {
	if !cl.recording {
		return GPUDescriptor{}, ErrNotRecording
	}
	if len(srcs) == 0 {
		return GPUDescriptor{}, fmt.Errorf("framekit: copy descriptors: %w", descriptor.ErrZeroCount)
	}
	handles := make([]descriptor.Handle, len(srcs))
	for i, s := range srcs {
		h, err := s.cpuHandle()
		if err != nil {
			return GPUDescriptor{}, err
		}
		if i > 0 && h.Kind != handles[0].Kind {
			return GPUDescriptor{}, fmt.Errorf("framekit: table mixes %v and %v descriptors: %w",
				handles[0].Kind, h.Kind, hw.ErrInvalidUsage)
		}
		handles[i] = h
	}

	slot := cl.dev.mem.SlotHeaps(cl.slot)
	var heap *descriptor.Heap
	switch handles[0].Kind {
	case hw.DescriptorResource:
		heap = slot.Resource
	case hw.DescriptorSampler:
		heap = slot.Sampler
	default:
		return GPUDescriptor{}, fmt.Errorf("framekit: %v descriptors are not shader-visible: %w",
			handles[0].Kind, hw.ErrInvalidUsage)
	}

	base, err := heap.AllocateRange(uint32(len(handles)))
	if err != nil {
		return GPUDescriptor{}, err
	}
	inc := heap.Native().Increment()
	for i, h := range handles {
		dst := base.Offset(uint32(i), inc)
		if err := cl.dev.hw.CopyDescriptors(h.Kind, dst.CPU, h.CPU, 1); err != nil {
			return GPUDescriptor{}, fmt.Errorf("framekit: copy descriptor %d: %w", i, err)
		}
	}
	return GPUDescriptor{h: base, count: uint32(len(handles))}, nil
}

// SetGraphicsRootSignature binds rs.
func (cl *CommandList) SetGraphicsRootSignature(rs *RootSignature) {
	if !cl.check("set root signature") {
		return
	}
	native, err := rs.nativeRoot()
	if err != nil {
		cl.fail(err)
		return
	}
	cl.native.SetGraphicsRootSignature(native)
}

// SetGraphicsRootDescriptorTable binds table to root parameter index.
func (cl *CommandList) SetGraphicsRootDescriptorTable(index uint32, table GPUDescriptor) {
	if !cl.check("set descriptor table") {
		return
	}
	if !table.h.IsShaderVisible() {
		cl.fail(fmt.Errorf("framekit: descriptor table for parameter %d is not shader-visible: %w",
			index, hw.ErrInvalidUsage))
		return
	}
	cl.native.SetGraphicsRootDescriptorTable(index, table.h.GPU)
}

// SetGraphicsRoot32BitConstants writes values into a root constants
// parameter starting at offset, in 32-bit units.
func (cl *CommandList) SetGraphicsRoot32BitConstants(index uint32, values []uint32, offset uint32) {
	if cl.check("set root constants") {
		cl.native.SetGraphicsRoot32BitConstants(index, values, offset)
	}
}

// SetGraphicsRootConstantBufferView binds constant data to an inline root
// descriptor.
func (cl *CommandList) SetGraphicsRootConstantBufferView(index uint32, data BufferRange) {
	if !cl.check("set root constant buffer") {
		return
	}
	addr, _, err := data.gpuRange()
	if err != nil {
		cl.fail(err)
		return
	}
	cl.native.SetGraphicsRootConstantBufferView(index, addr)
}

// SetPipeline binds p.
func (cl *CommandList) SetPipeline(p *Pipeline) {
	if !cl.check("set pipeline") {
		return
	}
	native, err := p.nativePipeline()
	if err != nil {
		cl.fail(err)
		return
	}
	cl.native.SetPipeline(native)
}

// SetPrimitiveTopology sets the topology for subsequent draws.
func (cl *CommandList) SetPrimitiveTopology(t hw.Topology) {
	if cl.check("set topology") {
		cl.native.SetPrimitiveTopology(t)
	}
}

// SetViewport sets a single viewport.
func (cl *CommandList) SetViewport(v hw.Viewport) {
	if cl.check("set viewport") {
		cl.native.SetViewports(v)
	}
}

// SetScissor sets a single scissor rectangle.
func (cl *CommandList) SetScissor(r hw.Rect) {
	if cl.check("set scissor") {
		cl.native.SetScissorRects(r)
	}
}

// SetFullViewport sets the viewport and scissor to the whole surface.
func (cl *CommandList) SetFullViewport() {
	w, h := cl.dev.Size()
	cl.SetViewport(hw.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1})
	cl.SetScissor(hw.Rect{Right: int32(w), Bottom: int32(h)})
}

// BindRenderTarget binds rt and, when depth is not nil, a depth target.
func (cl *CommandList) BindRenderTarget(rt RenderTarget, depth DepthTarget) {
	if !cl.check("bind render target") {
		return
	}
	rtv, err := rt.rtvHandle()
	if err != nil {
		cl.fail(err)
		return
	}
	var dsv hw.CPUAddress
	if depth != nil {
		h, err := depth.dsvHandle()
		if err != nil {
			cl.fail(err)
			return
		}
		dsv = h.CPU
	}
	cl.native.SetRenderTargets([]hw.CPUAddress{rtv.CPU}, dsv)
}

// ClearRenderTarget fills rt with color.
func (cl *CommandList) ClearRenderTarget(rt RenderTarget, color [4]float32) {
	if !cl.check("clear render target") {
		return
	}
	rtv, err := rt.rtvHandle()
	if err != nil {
		cl.fail(err)
		return
	}
	cl.native.ClearRenderTargetView(rtv.CPU, color)
}

// ClearDepthStencil fills a depth target.
func (cl *CommandList) ClearDepthStencil(dt DepthTarget, depth float32, stencil uint8) {
	if !cl.check("clear depth stencil") {
		return
	}
	dsv, err := dt.dsvHandle()
	if err != nil {
		cl.fail(err)
		return
	}
	cl.native.ClearDepthStencilView(dsv.CPU, depth, stencil)
}

// BindVertexBuffer binds data to an input slot.
func (cl *CommandList) BindVertexBuffer(slot uint32, data BufferRange, stride uint32) {
	if !cl.check("bind vertex buffer") {
		return
	}
	addr, size, err := data.gpuRange()
	if err != nil {
		cl.fail(err)
		return
	}
	n, err := inputSize(size)
	if err != nil {
		cl.fail(fmt.Errorf("framekit: vertex buffer: %w", err))
		return
	}
	cl.native.SetVertexBuffers(slot, hw.VertexBufferView{Address: addr, Size: n, Stride: stride})
}

// BindIndexBuffer binds 16- or 32-bit index data.
func (cl *CommandList) BindIndexBuffer(data BufferRange, format hw.Format) {
	if !cl.check("bind index buffer") {
		return
	}
	addr, size, err := data.gpuRange()
	if err != nil {
		cl.fail(err)
		return
	}
	n, err := inputSize(size)
	if err != nil {
		cl.fail(fmt.Errorf("framekit: index buffer: %w", err))
		return
	}
	cl.native.SetIndexBuffer(hw.IndexBufferView{Address: addr, Size: n, Format: format})
}

// inputSize narrows an input-assembler range to the 32-bit view size.
func inputSize(size uint64) (uint32, error) {
	if size > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes exceed a 32-bit view", ErrOutOfRange, size)
	}
	return uint32(size), nil
}

// Draw records a non-indexed instanced draw.
func (cl *CommandList) Draw(vertexCount, instanceCount, startVertex, startInstance uint32) {
	if cl.check("draw") {
		cl.native.DrawInstanced(vertexCount, instanceCount, startVertex, startInstance)
	}
}

// DrawIndexed records an indexed instanced draw.
func (cl *CommandList) DrawIndexed(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if cl.check("draw indexed") {
		cl.native.DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance)
	}
}
