package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/logging"
)

// maxUniformBinding is the largest uniform range hal guarantees to bind.
const maxUniformBinding = 64 << 10

// binding is a root argument or a vertex/index buffer binding.
type binding struct {
	addr   hw.GPUAddress // table base or inline address
	inline bool
	buf    *Buffer
	offset uint64
}

type indexBinding struct {
	binding
	format gputypes.IndexFormat
}

// encoder carries the pipeline state while a list is replayed into hal.
type encoder struct {
	dev  *Device
	kind hw.QueueKind
	enc  hal.CommandEncoder

	pass   hal.RenderPassEncoder
	colors []*Texture
	depth  *Texture

	root     *RootSignature
	pipeline *Pipeline
	tables   map[uint32]binding
	vertex   map[uint32]binding
	index    *indexBinding
	viewport *hw.Viewport
	scissor  *hw.Rect

	// groups caches the bind groups built for root arguments, keyed by
	// parameter and address. All of them are handed to the allocator.
	groups  map[groupKey]hal.BindGroup
	created []hal.BindGroup

	skips map[string]int
}

type groupKey struct {
	index uint32
	addr  hw.GPUAddress
}

func (l *CommandList) encode() (hal.CommandBuffer, []hal.BindGroup, error) {
	label := "framekit_" + l.kind.String()
	enc, err := l.dev.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, nil, fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, nil, fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	e := &encoder{
		dev:    l.dev,
		kind:   l.kind,
		enc:    enc,
		tables: make(map[uint32]binding),
		vertex: make(map[uint32]binding),
		groups: make(map[groupKey]hal.BindGroup),
	}
	for _, o := range l.ops {
		if err := o(e); err != nil {
			e.endPass()
			enc.DiscardEncoding()
			e.release()
			return nil, nil, err
		}
	}
	e.endPass()
	buf, err := enc.EndEncoding()
	if err != nil {
		e.release()
		return nil, nil, fmt.Errorf("halgpu: end encoding: %w", err)
	}
	for what, n := range e.skips {
		logging.Logger().Debug("halgpu: commands without hal equivalent skipped", "command", what, "count", n)
	}
	return buf, e.created, nil
}

// release destroys bind groups of a list that failed to encode.
func (e *encoder) release() {
	for _, g := range e.created {
		e.dev.hal.DestroyBindGroup(g)
	}
	e.created = nil
}

func (e *encoder) skipped(what string, _ ...any) {
	if e.skips == nil {
		e.skips = make(map[string]int)
	}
	e.skips[what]++
}

func (e *encoder) endPass() {
	if e.pass != nil {
		e.pass.End()
		e.pass = nil
	}
}

func (e *encoder) setRoot(rs *RootSignature) {
	if e.root != rs {
		e.root = rs
		clear(e.tables)
		clear(e.groups)
	}
}

func colorValue(c [4]float32) gputypes.Color {
	return gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
}

func hasStencil(t *Texture) bool { return t.desc.Format == hw.FormatD24UnormS8Uint }

// clearColor clears tex with a render pass of its own.
func (e *encoder) clearColor(tex *Texture, color [4]float32) {
	e.endPass()
	pass := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "framekit_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       tex.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: colorValue(color),
		}},
	})
	pass.End()
}

func (e *encoder) clearDepth(tex *Texture, depth float32, stencil uint8) {
	e.endPass()
	att := &hal.RenderPassDepthStencilAttachment{
		View:            tex.view,
		DepthLoadOp:     gputypes.LoadOpClear,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: depth,
	}
	if hasStencil(tex) {
		att.StencilLoadOp = gputypes.LoadOpClear
		att.StencilStoreOp = gputypes.StoreOpStore
		att.StencilClearValue = uint32(stencil)
	}
	pass := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  "framekit_clear_depth",
		DepthStencilAttachment: att,
	})
	pass.End()
}

// beginPass opens a render pass that loads and stores the bound targets.
func (e *encoder) beginPass() error {
	if len(e.colors) == 0 && e.depth == nil {
		return errNoTarget
	}
	desc := &hal.RenderPassDescriptor{Label: "framekit_pass"}
	for _, c := range e.colors {
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:    c.view,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		})
	}
	if e.depth != nil {
		att := &hal.RenderPassDepthStencilAttachment{
			View:         e.depth.view,
			DepthLoadOp:  gputypes.LoadOpLoad,
			DepthStoreOp: gputypes.StoreOpStore,
		}
		if hasStencil(e.depth) {
			att.StencilLoadOp = gputypes.LoadOpLoad
			att.StencilStoreOp = gputypes.StoreOpStore
		}
		desc.DepthStencilAttachment = att
	}
	e.pass = e.enc.BeginRenderPass(desc)
	return nil
}

// prepareDraw opens a pass if needed and applies the current state.
func (e *encoder) prepareDraw(indexed bool) (hal.RenderPassEncoder, error) {
	if e.pipeline == nil {
		return nil, fmt.Errorf("halgpu: draw without a pipeline: %w", hw.ErrInvalidUsage)
	}
	if e.pipeline.root != e.root {
		return nil, fmt.Errorf("halgpu: pipeline and bound root signature differ: %w", hw.ErrInvalidUsage)
	}
	if indexed && e.index == nil {
		return nil, fmt.Errorf("halgpu: indexed draw without an index buffer: %w", hw.ErrInvalidUsage)
	}
	if e.pass == nil {
		if err := e.beginPass(); err != nil {
			return nil, fmt.Errorf("%w: %w", err, hw.ErrInvalidUsage)
		}
	}
	p := e.pass
	p.SetPipeline(e.pipeline.hal)

	for i := range e.root.desc.Parameters {
		idx := uint32(i)
		if g, ok := e.root.fixed[idx]; ok {
			p.SetBindGroup(idx, g, nil)
			continue
		}
		b, ok := e.tables[idx]
		if !ok {
			continue
		}
		g, err := e.bindGroup(idx, b)
		if err != nil {
			return nil, err
		}
		p.SetBindGroup(idx, g, nil)
	}
	if len(e.root.desc.StaticSamplers) > 0 {
		idx := uint32(len(e.root.desc.Parameters))
		p.SetBindGroup(idx, e.root.fixed[idx], nil)
	}

	for slot, v := range e.vertex {
		p.SetVertexBuffer(slot, v.buf.hal, v.offset)
	}
	if indexed {
		p.SetIndexBuffer(e.index.buf.hal, e.index.format, e.index.offset)
	}
	if vp := e.viewport; vp != nil {
		p.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	}
	if r := e.scissor; r != nil {
		x, y := max(r.Left, 0), max(r.Top, 0)
		p.SetScissorRect(uint32(x), uint32(y), uint32(max(r.Right-x, 0)), uint32(max(r.Bottom-y, 0)))
	}
	return p, nil
}

// bindGroup builds, or returns the cached, bind group for root argument b
// of parameter index.
func (e *encoder) bindGroup(index uint32, b binding) (hal.BindGroup, error) {
	key := groupKey{index: index, addr: b.addr}
	if g, ok := e.groups[key]; ok {
		return g, nil
	}
	if int(index) >= len(e.root.desc.Parameters) {
		return nil, fmt.Errorf("halgpu: root parameter %d out of range: %w", index, hw.ErrInvalidUsage)
	}

	var entries []gputypes.BindGroupEntry
	switch e.root.desc.Parameters[index].(type) {
	case hw.InlineDescriptor:
		if !b.inline {
			return nil, fmt.Errorf("halgpu: table bound to inline parameter %d: %w", index, hw.ErrInvalidUsage)
		}
		size := min(b.buf.Size()-b.offset, maxUniformBinding)
		entries = []gputypes.BindGroupEntry{{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: b.buf.hal.NativeHandle(), Offset: b.offset, Size: size},
		}}
	case hw.DescriptorTable:
		if b.inline {
			return nil, fmt.Errorf("halgpu: inline descriptor bound to table parameter %d: %w", index, hw.ErrInvalidUsage)
		}
		var err error
		if entries, err = e.tableEntries(index, b.addr); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("halgpu: root parameter %d takes no descriptor: %w", index, hw.ErrInvalidUsage)
	}

	g, err := e.dev.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s_param%d", e.root.desc.Label, index),
		Layout:  e.root.groups[index],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create bind group for parameter %d: %w", index, err)
	}
	e.groups[key] = g
	e.created = append(e.created, g)
	return g, nil
}

func (e *encoder) tableEntries(index uint32, base hw.GPUAddress) ([]gputypes.BindGroupEntry, error) {
	layout := e.root.tables[index]
	views, err := e.dev.descriptors.ReadGPU(base, layout.size)
	if err != nil {
		return nil, fmt.Errorf("halgpu: table %d: %w", index, err)
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(views))
	for slot, v := range views {
		entry, err := e.viewEntry(uint32(slot), layout.kinds[slot], v)
		if err != nil {
			return nil, fmt.Errorf("halgpu: table %d slot %d: %w", index, slot, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// viewEntry converts a descriptor slot into a bind group entry.
func (e *encoder) viewEntry(slot uint32, kind hw.RangeKind, v hw.ViewDesc) (gputypes.BindGroupEntry, error) {
	entry := gputypes.BindGroupEntry{Binding: slot}
	switch {
	case v.Kind == hw.ViewNone:
		return entry, fmt.Errorf("descriptor was never written: %w", hw.ErrInvalidDescriptor)
	case v.Kind == hw.ViewSampler && kind == hw.RangeSampler && v.Sampler != nil:
		s, err := e.dev.sampler(*v.Sampler)
		if err != nil {
			return entry, err
		}
		entry.Resource = samplerBinding(s)
	case v.Kind == hw.ViewShaderResource && kind == hw.RangeShaderResource && v.Texture != nil:
		tex, err := asTexture(v.Texture)
		if err != nil {
			return entry, err
		}
		entry.Resource = gputypes.TextureViewBinding{TextureView: uintptr(tex.view.NativeHandle())}
	case (v.Kind == hw.ViewConstantBuffer && kind == hw.RangeConstantBuffer) ||
		(v.Kind == hw.ViewUnorderedAccess && kind == hw.RangeUnorderedAccess):
		buf, err := asBuffer(v.Buffer)
		if err != nil {
			return entry, err
		}
		size := v.Size
		if size == 0 {
			size = buf.Size() - v.Offset
		}
		entry.Resource = gputypes.BufferBinding{Buffer: buf.hal.NativeHandle(), Offset: v.Offset, Size: size}
	default:
		return entry, fmt.Errorf("%v view in a %v range: %w", v.Kind, rangeKindName(kind), hw.ErrUnsupported)
	}
	return entry, nil
}

func samplerBinding(s hal.Sampler) gputypes.SamplerBinding {
	return gputypes.SamplerBinding{Sampler: uintptr(s.NativeHandle())}
}

func rangeKindName(k hw.RangeKind) string {
	switch k {
	case hw.RangeShaderResource:
		return "shader resource"
	case hw.RangeUnorderedAccess:
		return "unordered access"
	case hw.RangeConstantBuffer:
		return "constant buffer"
	case hw.RangeSampler:
		return "sampler"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}
