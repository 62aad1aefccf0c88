package sim

import (
	"fmt"

	"github.com/gogpu/framekit/hw"
)

// Allocator is a simulated recording allocator.
type Allocator struct {
	dev     *Device
	kind    hw.QueueKind
	pending int
	resets  int
}

var _ hw.RecordingAllocator = (*Allocator)(nil)

// Kind returns the queue kind.
func (a *Allocator) Kind() hw.QueueKind { return a.kind }

// Reset fails with ErrAllocatorInUse while lists recorded into the
// allocator are pending on a queue.
func (a *Allocator) Reset() error {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.pending > 0 {
		d.violate("%v allocator reset with %d lists pending", a.kind, a.pending)
		return ErrAllocatorInUse
	}
	a.resets++
	return nil
}

// Resets returns how many times the allocator was reset.
func (a *Allocator) Resets() int {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	return a.resets
}

// Destroy releases the allocator.
func (a *Allocator) Destroy() {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.pending > 0 {
		d.violate("%v allocator destroyed with %d lists pending", a.kind, a.pending)
	}
	d.stats.Live.Allocators--
}

// command is one recorded operation. run executes its effect on the
// simulated memory.
type command struct {
	name string
	refs []hw.Resource
	run  func()
}

// CommandList is a simulated command list.
type CommandList struct {
	dev       *Device
	kind      hw.QueueKind
	alloc     *Allocator
	recording bool
	invalid   error
	pending   int
	cmds      []command
}

var _ hw.CommandList = (*CommandList)(nil)

// Kind returns the queue kind.
func (l *CommandList) Kind() hw.QueueKind { return l.kind }

// Commands returns the names of the recorded commands.
func (l *CommandList) Commands() []string {
	names := make([]string, len(l.cmds))
	for i, c := range l.cmds {
		names[i] = c.name
	}
	return names
}

// Reset starts a new recording into alloc.
func (l *CommandList) Reset(alloc hw.RecordingAllocator) error {
	a, ok := alloc.(*Allocator)
	if !ok || a.kind != l.kind {
		return fmt.Errorf("sim: allocator does not serve %v lists: %w", l.kind, hw.ErrInvalidUsage)
	}
	if l.recording {
		return fmt.Errorf("sim: reset of a list that is still recording: %w", hw.ErrInvalidUsage)
	}
	l.alloc = a
	l.recording = true
	l.invalid = nil
	l.cmds = nil
	return nil
}

// Close ends recording and reports the first recording error.
func (l *CommandList) Close() error {
	if !l.recording {
		return fmt.Errorf("sim: close of a list that is not recording: %w", hw.ErrInvalidUsage)
	}
	l.recording = false
	return l.invalid
}

// Destroy releases the list.
func (l *CommandList) Destroy() {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if l.pending > 0 {
		d.violate("%v command list destroyed with %d executions pending", l.kind, l.pending)
	}
	d.stats.Live.Lists--
}

func (l *CommandList) record(c command) {
	if !l.recording {
		if l.invalid == nil {
			l.invalid = fmt.Errorf("sim: %s recorded outside of recording: %w", c.name, hw.ErrInvalidUsage)
		}
		return
	}
	l.cmds = append(l.cmds, c)
}

func (l *CommandList) fail(format string, args ...any) {
	if l.invalid == nil {
		l.invalid = fmt.Errorf("sim: "+format+": %w", append(args, hw.ErrInvalidUsage)...)
	}
}

func (l *CommandList) requireDirect(name string) bool {
	if l.kind != hw.QueueDirect {
		l.fail("%s on a %v list", name, l.kind)
		return false
	}
	return true
}

func (l *CommandList) ResourceBarrier(barriers ...hw.Barrier) {
	refs := make([]hw.Resource, 0, len(barriers))
	for _, b := range barriers {
		if b.Before == b.After {
			l.fail("barrier with identical states %v", b.Before)
			return
		}
		refs = append(refs, b.Resource)
	}
	l.record(command{name: "ResourceBarrier", refs: refs})
}

func (l *CommandList) CopyBufferRegion(dst hw.Buffer, dstOffset uint64, src hw.Buffer, srcOffset, size uint64) {
	db, ok1 := dst.(*Buffer)
	sb, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		l.fail("copy between foreign buffers")
		return
	}
	if dstOffset+size > db.desc.Size || srcOffset+size > sb.desc.Size {
		l.fail("copy of %d bytes out of range", size)
		return
	}
	l.record(command{
		name: "CopyBufferRegion",
		refs: []hw.Resource{db, sb},
		run: func() {
			copy(db.data[dstOffset:dstOffset+size], sb.data[srcOffset:srcOffset+size])
		},
	})
}

func (l *CommandList) CopyTextureRegion(dst hw.Texture, src hw.Buffer, fp hw.TextureFootprint) {
	tex, ok1 := dst.(*Texture)
	sb, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		l.fail("texture copy between foreign resources")
		return
	}
	if err := fp.Validate(tex, sb.desc.Size); err != nil {
		l.fail("texture copy into %q: %v", tex.desc.Label, err)
		return
	}
	l.record(command{
		name: "CopyTextureRegion",
		refs: []hw.Resource{tex, sb},
		run: func() {
			pitch := tex.rowBytes()
			if tex.texels == nil {
				tex.texels = make([]byte, pitch*int(tex.desc.Height))
			}
			n := int(fp.Width * tex.desc.Format.BytesPerElement())
			for y := range int(fp.Height) {
				from := int(fp.Offset) + y*int(fp.RowPitch)
				copy(tex.texels[y*pitch:y*pitch+n], sb.data[from:from+n])
			}
		},
	})
}

func (l *CommandList) SetDescriptorHeaps(heaps ...hw.DescriptorHeap) {
	for _, h := range heaps {
		if !h.Desc().ShaderVisible {
			l.fail("binding CPU-only %v heap", h.Desc().Kind)
			return
		}
	}
	l.record(command{name: "SetDescriptorHeaps"})
}

func (l *CommandList) SetGraphicsRootSignature(hw.RootSignature) {
	if l.requireDirect("SetGraphicsRootSignature") {
		l.record(command{name: "SetGraphicsRootSignature"})
	}
}

func (l *CommandList) SetGraphicsRootDescriptorTable(_ uint32, base hw.GPUAddress) {
	if base == 0 {
		l.fail("descriptor table at GPU address 0")
		return
	}
	l.record(command{name: "SetGraphicsRootDescriptorTable"})
}

func (l *CommandList) SetGraphicsRoot32BitConstants(uint32, []uint32, uint32) {
	l.record(command{name: "SetGraphicsRoot32BitConstants"})
}

func (l *CommandList) SetGraphicsRootConstantBufferView(_ uint32, addr hw.GPUAddress) {
	l.record(command{name: "SetGraphicsRootConstantBufferView", refs: l.resolve(addr)})
}

func (l *CommandList) SetPipeline(hw.Pipeline) {
	l.record(command{name: "SetPipeline"})
}

func (l *CommandList) SetPrimitiveTopology(hw.Topology) {
	l.record(command{name: "SetPrimitiveTopology"})
}

func (l *CommandList) SetViewports(...hw.Viewport) {
	l.record(command{name: "SetViewports"})
}

func (l *CommandList) SetScissorRects(...hw.Rect) {
	l.record(command{name: "SetScissorRects"})
}

func (l *CommandList) SetRenderTargets(rtvs []hw.CPUAddress, dsv hw.CPUAddress) {
	if !l.requireDirect("SetRenderTargets") {
		return
	}
	for _, rtv := range rtvs {
		if !l.checkView(rtv, hw.ViewRenderTarget) {
			return
		}
	}
	if dsv != 0 && !l.checkView(dsv, hw.ViewDepthStencil) {
		return
	}
	l.record(command{name: "SetRenderTargets"})
}

func (l *CommandList) ClearRenderTargetView(rtv hw.CPUAddress, _ [4]float32) {
	if l.requireDirect("ClearRenderTargetView") && l.checkView(rtv, hw.ViewRenderTarget) {
		l.record(command{name: "ClearRenderTargetView"})
	}
}

func (l *CommandList) ClearDepthStencilView(dsv hw.CPUAddress, _ float32, _ uint8) {
	if l.requireDirect("ClearDepthStencilView") && l.checkView(dsv, hw.ViewDepthStencil) {
		l.record(command{name: "ClearDepthStencilView"})
	}
}

func (l *CommandList) SetVertexBuffers(_ uint32, views ...hw.VertexBufferView) {
	var refs []hw.Resource
	for _, v := range views {
		refs = append(refs, l.resolve(v.Address)...)
	}
	l.record(command{name: "SetVertexBuffers", refs: refs})
}

func (l *CommandList) SetIndexBuffer(view hw.IndexBufferView) {
	if view.Format != hw.FormatR16Uint && view.Format != hw.FormatR32Uint {
		l.fail("index format %v", view.Format)
		return
	}
	l.record(command{name: "SetIndexBuffer", refs: l.resolve(view.Address)})
}

func (l *CommandList) DrawInstanced(uint32, uint32, uint32, uint32) {
	if l.requireDirect("DrawInstanced") {
		l.record(command{name: "DrawInstanced"})
	}
}

func (l *CommandList) DrawIndexedInstanced(uint32, uint32, uint32, int32, uint32) {
	if l.requireDirect("DrawIndexedInstanced") {
		l.record(command{name: "DrawIndexedInstanced"})
	}
}

func (l *CommandList) resolve(addr hw.GPUAddress) []hw.Resource {
	buf, _, ok := l.dev.addresses.Resolve(addr)
	if !ok {
		l.fail("GPU address %#x does not belong to a buffer", uint64(addr))
		return nil
	}
	return []hw.Resource{buf}
}

func (l *CommandList) checkView(addr hw.CPUAddress, kind hw.ViewKind) bool {
	v, err := l.dev.descriptors.Read(addr)
	if err != nil {
		if l.invalid == nil {
			l.invalid = err
		}
		return false
	}
	if v.Kind != kind {
		l.fail("descriptor %#x holds %v, want %v", uint64(addr), v.Kind, kind)
		return false
	}
	return true
}
