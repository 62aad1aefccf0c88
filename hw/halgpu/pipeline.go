package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
)

// RootSignature maps a root signature onto a hal pipeline layout.
//
// Root parameter i is bind group i. A descriptor table binds slot n of the
// table at @binding(n); an inline descriptor binds at @binding(0). Root
// constants have no hal equivalent and occupy an empty group. Static
// samplers form one extra group after the parameters, bound by register.
type RootSignature struct {
	dev  *Device
	desc hw.RootSignatureDesc

	groups []hal.BindGroupLayout
	layout hal.PipelineLayout

	// tables[i] holds the resolved layout of parameter i when it is a table.
	tables []tableLayout

	// fixed[i] is a bind group set once per draw regardless of root
	// arguments: empty groups for root constants and the static samplers.
	fixed map[uint32]hal.BindGroup
}

type tableLayout struct {
	size  uint32
	kinds []hw.RangeKind // per slot
}

var _ hw.RootSignature = (*RootSignature)(nil)

func tableEntries(t hw.DescriptorTable) ([]gputypes.BindGroupLayoutEntry, tableLayout) {
	offsets, size := t.Offsets()
	tl := tableLayout{size: size, kinds: make([]hw.RangeKind, size)}
	var entries []gputypes.BindGroupLayoutEntry
	vis := shaderStages(t.Stage)
	for i, r := range t.Ranges {
		for j := uint32(0); j < r.Count; j++ {
			slot := offsets[i] + j
			tl.kinds[slot] = r.Kind
			e := gputypes.BindGroupLayoutEntry{Binding: slot, Visibility: vis}
			switch r.Kind {
			case hw.RangeShaderResource:
				e.Texture = &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				}
			case hw.RangeUnorderedAccess:
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
			case hw.RangeConstantBuffer:
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
			case hw.RangeSampler:
				e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
			}
			entries = append(entries, e)
		}
	}
	return entries, tl
}

func inlineEntry(p hw.InlineDescriptor) gputypes.BindGroupLayoutEntry {
	kind := gputypes.BufferBindingTypeUniform
	switch p.Kind {
	case hw.InlineShaderResource:
		kind = gputypes.BufferBindingTypeReadOnlyStorage
	case hw.InlineUnorderedAccess:
		kind = gputypes.BufferBindingTypeStorage
	}
	return gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: shaderStages(p.Stage),
		Buffer:     &gputypes.BufferBindingLayout{Type: kind},
	}
}

// CreateRootSignature creates one bind group layout per parameter and the
// pipeline layout over them.
func (d *Device) CreateRootSignature(desc hw.RootSignatureDesc) (hw.RootSignature, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	rs := &RootSignature{
		dev:    d,
		desc:   desc,
		tables: make([]tableLayout, len(desc.Parameters)),
		fixed:  make(map[uint32]hal.BindGroup),
	}

	var empty []uint32
	for i, p := range desc.Parameters {
		var entries []gputypes.BindGroupLayoutEntry
		switch p := p.(type) {
		case hw.DescriptorTable:
			entries, rs.tables[i] = tableEntries(p)
		case hw.InlineDescriptor:
			entries = []gputypes.BindGroupLayoutEntry{inlineEntry(p)}
		case hw.RootConstants:
			empty = append(empty, uint32(i))
		}
		if err := rs.addGroup(fmt.Sprintf("%s_param%d", desc.Label, i), entries); err != nil {
			rs.Destroy()
			return nil, err
		}
	}
	for _, i := range empty {
		if err := rs.setFixed(i, nil); err != nil {
			rs.Destroy()
			return nil, err
		}
	}
	if err := rs.addStaticSamplers(); err != nil {
		rs.Destroy()
		return nil, err
	}

	layout, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: rs.groups,
	})
	if err != nil {
		rs.Destroy()
		return nil, fmt.Errorf("halgpu: create pipeline layout %q: %w", desc.Label, err)
	}
	rs.layout = layout
	return rs, nil
}

func (rs *RootSignature) addGroup(label string, entries []gputypes.BindGroupLayoutEntry) error {
	g, err := rs.dev.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create bind group layout %q: %w", label, err)
	}
	rs.groups = append(rs.groups, g)
	return nil
}

func (rs *RootSignature) setFixed(index uint32, entries []gputypes.BindGroupEntry) error {
	g, err := rs.dev.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s_fixed%d", rs.desc.Label, index),
		Layout:  rs.groups[index],
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create bind group %d of %q: %w", index, rs.desc.Label, err)
	}
	rs.fixed[index] = g
	return nil
}

func (rs *RootSignature) addStaticSamplers() error {
	if len(rs.desc.StaticSamplers) == 0 {
		return nil
	}
	layouts := make([]gputypes.BindGroupLayoutEntry, len(rs.desc.StaticSamplers))
	entries := make([]gputypes.BindGroupEntry, len(rs.desc.StaticSamplers))
	for i, s := range rs.desc.StaticSamplers {
		native, err := rs.dev.sampler(s.Sampler)
		if err != nil {
			return err
		}
		layouts[i] = gputypes.BindGroupLayoutEntry{
			Binding:    s.Register,
			Visibility: shaderStages(s.Stage),
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		}
		entries[i] = gputypes.BindGroupEntry{Binding: s.Register, Resource: samplerBinding(native)}
	}
	index := uint32(len(rs.groups))
	if err := rs.addGroup(rs.desc.Label+"_static_samplers", layouts); err != nil {
		return err
	}
	return rs.setFixed(index, entries)
}

// Desc returns the creation descriptor.
func (rs *RootSignature) Desc() hw.RootSignatureDesc { return rs.desc }

// Destroy releases the layout objects.
func (rs *RootSignature) Destroy() {
	h := rs.dev.hal
	for _, g := range rs.fixed {
		h.DestroyBindGroup(g)
	}
	if rs.layout != nil {
		h.DestroyPipelineLayout(rs.layout)
	}
	for _, g := range rs.groups {
		h.DestroyBindGroupLayout(g)
	}
	rs.fixed, rs.groups, rs.layout = nil, nil, nil
}

// Pipeline is a hal render pipeline and its shader module.
type Pipeline struct {
	dev    *Device
	hal    hal.RenderPipeline
	shader hal.ShaderModule
	root   *RootSignature
}

var _ hw.Pipeline = (*Pipeline)(nil)

// CreatePipeline compiles the shader and creates a render pipeline. Entry
// points default to vs_main and fs_main.
func (d *Device) CreatePipeline(desc hw.PipelineDesc) (hw.Pipeline, error) {
	root, ok := desc.RootSignature.(*RootSignature)
	if !ok || root == nil {
		return nil, fmt.Errorf("halgpu: pipeline %q: foreign root signature %T: %w", desc.Label, desc.RootSignature, hw.ErrInvalidUsage)
	}

	vertexBuffers, err := vertexLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("halgpu: pipeline %q: %w", desc.Label, err)
	}
	targets := make([]gputypes.ColorTargetState, len(desc.RenderTargets))
	for i, f := range desc.RenderTargets {
		format, err := textureFormat(f)
		if err != nil {
			return nil, fmt.Errorf("halgpu: pipeline %q: %w", desc.Label, err)
		}
		targets[i] = gputypes.ColorTargetState{Format: format, WriteMask: gputypes.ColorWriteMaskAll}
	}
	var depth *hal.DepthStencilState
	if desc.DepthFormat != hw.FormatUnknown {
		format, err := textureFormat(desc.DepthFormat)
		if err != nil {
			return nil, fmt.Errorf("halgpu: pipeline %q: %w", desc.Label, err)
		}
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		depth = &hal.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}

	shader, err := d.createShaderModule(desc.Label, desc.Shader.WGSL)
	if err != nil {
		return nil, err
	}
	vs, fs := desc.Shader.VertexEntry, desc.Shader.FragmentEntry
	if vs == "" {
		vs = "vs_main"
	}
	if fs == "" {
		fs = "fs_main"
	}
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}

	native, err := d.hal.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: root.layout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: vs,
			Buffers:    vertexBuffers,
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: fs,
			Targets:    targets,
		},
		DepthStencil: depth,
		Primitive: gputypes.PrimitiveState{
			Topology: topology(desc.Topology),
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		d.hal.DestroyShaderModule(shader)
		return nil, fmt.Errorf("halgpu: create pipeline %q: %w", desc.Label, err)
	}
	return &Pipeline{dev: d, hal: native, shader: shader, root: root}, nil
}

func vertexLayout(desc hw.PipelineDesc) ([]gputypes.VertexBufferLayout, error) {
	if len(desc.InputLayout) == 0 {
		return nil, nil
	}
	attrs := make([]gputypes.VertexAttribute, len(desc.InputLayout))
	for i, e := range desc.InputLayout {
		format, err := vertexFormat(e.Format)
		if err != nil {
			return nil, fmt.Errorf("vertex element %q: %w", e.Semantic, err)
		}
		attrs[i] = gputypes.VertexAttribute{Format: format, Offset: uint64(e.Offset), ShaderLocation: e.Location}
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(desc.VertexStride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}, nil
}

// Destroy releases the pipeline and its shader module.
func (p *Pipeline) Destroy() {
	p.dev.hal.DestroyRenderPipeline(p.hal)
	p.dev.hal.DestroyShaderModule(p.shader)
}
