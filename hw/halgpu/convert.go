package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
)

var formats = []struct {
	hw  hw.Format
	hal gputypes.TextureFormat
}{
	{hw.FormatR8Unorm, gputypes.TextureFormatR8Unorm},
	{hw.FormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm},
	{hw.FormatBGRA8Unorm, gputypes.TextureFormatBGRA8Unorm},
	{hw.FormatRGBA16Float, gputypes.TextureFormatRGBA16Float},
	{hw.FormatR16Uint, gputypes.TextureFormatR16Uint},
	{hw.FormatR32Uint, gputypes.TextureFormatR32Uint},
	{hw.FormatR32Float, gputypes.TextureFormatR32Float},
	{hw.FormatRG32Float, gputypes.TextureFormatRG32Float},
	{hw.FormatRGBA32Float, gputypes.TextureFormatRGBA32Float},
	{hw.FormatD24UnormS8Uint, gputypes.TextureFormatDepth24PlusStencil8},
	{hw.FormatD32Float, gputypes.TextureFormatDepth32Float},
}

// textureFormat returns the hal texture format of f.
func textureFormat(f hw.Format) (gputypes.TextureFormat, error) {
	for _, m := range formats {
		if m.hw == f {
			return m.hal, nil
		}
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("halgpu: texture format %v: %w", f, hw.ErrUnsupported)
}

func formatFromHal(f gputypes.TextureFormat) hw.Format {
	for _, m := range formats {
		if m.hal == f {
			return m.hw
		}
	}
	return hw.FormatUnknown
}

func vertexFormat(f hw.Format) (gputypes.VertexFormat, error) {
	switch f {
	case hw.FormatR32Float:
		return gputypes.VertexFormatFloat32, nil
	case hw.FormatRG32Float:
		return gputypes.VertexFormatFloat32x2, nil
	case hw.FormatRGB32Float:
		return gputypes.VertexFormatFloat32x3, nil
	case hw.FormatRGBA32Float:
		return gputypes.VertexFormatFloat32x4, nil
	case hw.FormatR32Uint:
		return gputypes.VertexFormatUint32, nil
	case hw.FormatRGBA8Unorm:
		return gputypes.VertexFormatUnorm8x4, nil
	}
	return 0, fmt.Errorf("halgpu: vertex format %v: %w", f, hw.ErrUnsupported)
}

func indexFormat(f hw.Format) (gputypes.IndexFormat, error) {
	switch f {
	case hw.FormatR16Uint:
		return gputypes.IndexFormatUint16, nil
	case hw.FormatR32Uint:
		return gputypes.IndexFormatUint32, nil
	}
	return 0, fmt.Errorf("halgpu: index format %v: %w", f, hw.ErrInvalidUsage)
}

func topology(t hw.Topology) gputypes.PrimitiveTopology {
	switch t {
	case hw.TopologyTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case hw.TopologyLineList:
		return gputypes.PrimitiveTopologyLineList
	case hw.TopologyPointList:
		return gputypes.PrimitiveTopologyPointList
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

// bufferUsage derives hal usage from the heap and bind flags. Every buffer
// can take queue writes and be a copy source; readback buffers are only copy
// destinations.
func bufferUsage(desc hw.BufferDesc) gputypes.BufferUsage {
	if desc.Heap == hw.HeapReadback {
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if desc.Bind.Has(hw.BindVertexBuffer) {
		usage |= gputypes.BufferUsageVertex
	}
	if desc.Bind.Has(hw.BindIndexBuffer) {
		usage |= gputypes.BufferUsageIndex
	}
	if desc.Bind.Has(hw.BindConstantBuffer) {
		usage |= gputypes.BufferUsageUniform
	}
	if desc.Bind.Has(hw.BindShaderResource) || desc.Bind.Has(hw.BindUnorderedAccess) {
		usage |= gputypes.BufferUsageStorage
	}
	return usage
}

func textureUsage(bind hw.BindFlags) gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if bind.Has(hw.BindRenderTarget) || bind.Has(hw.BindDepthStencil) {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	if bind.Has(hw.BindShaderResource) {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if bind.Has(hw.BindUnorderedAccess) {
		usage |= gputypes.TextureUsageStorageBinding
	}
	return usage
}

// stateUsage maps a resource state to the texture usage hal transitions
// between. Present maps to CopySrc: offscreen back buffers are read out by
// copies. Common has no usage.
func stateUsage(s hw.ResourceState) gputypes.TextureUsage {
	switch {
	case s&(hw.StateRenderTarget|hw.StateDepthWrite|hw.StateDepthRead) != 0:
		return gputypes.TextureUsageRenderAttachment
	case s&hw.StateUnorderedAccess != 0:
		return gputypes.TextureUsageStorageBinding
	case s&hw.StateShaderResource != 0:
		return gputypes.TextureUsageTextureBinding
	case s&hw.StateCopyDest != 0:
		return gputypes.TextureUsageCopyDst
	case s&(hw.StateCopySource|hw.StatePresent) != 0:
		return gputypes.TextureUsageCopySrc
	}
	return 0
}

func addressMode(m hw.AddressMode) gputypes.AddressMode {
	switch m {
	case hw.AddressWrap:
		return gputypes.AddressModeRepeat
	case hw.AddressMirror:
		return gputypes.AddressModeMirrorRepeat
	default:
		// hal has no border color; clamp is the closest match.
		return gputypes.AddressModeClampToEdge
	}
}

// samplerDescriptor converts desc. LOD bias and clamps are not carried.
func samplerDescriptor(desc hw.SamplerDesc) *hal.SamplerDescriptor {
	filter := gputypes.FilterModeLinear
	if desc.Filter == hw.FilterPoint {
		filter = gputypes.FilterModeNearest
	}
	return &hal.SamplerDescriptor{
		Label:        "framekit_sampler",
		AddressModeU: addressMode(desc.AddressU),
		AddressModeV: addressMode(desc.AddressV),
		AddressModeW: addressMode(desc.AddressW),
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: filter,
	}
}

func shaderStages(v hw.ShaderVisibility) gputypes.ShaderStage {
	switch v {
	case hw.VisibilityVertex:
		return gputypes.ShaderStageVertex
	case hw.VisibilityPixel:
		return gputypes.ShaderStageFragment
	default:
		return gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	}
}
