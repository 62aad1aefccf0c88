package hw

import "fmt"

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label string

	// Size in bytes. Must be non-zero.
	Size uint64

	// Stride is the element size for structured and vertex data, 0 for raw.
	Stride uint32

	Heap         HeapKind
	Bind         BindFlags
	InitialState ResourceState
}

// TextureDesc describes a 2D texture allocation.
type TextureDesc struct {
	Label         string
	Width, Height uint32

	// MipLevels defaults to 1 when zero.
	MipLevels uint32

	// SampleCount defaults to 1 when zero.
	SampleCount uint32

	Format       Format
	Bind         BindFlags
	InitialState ResourceState

	// ClearColor and ClearDepth are the optimized clear values.
	ClearColor [4]float32
	ClearDepth float32
}

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Label         string
	Kind          DescriptorKind
	Count         uint32
	ShaderVisible bool
}

// ViewKind identifies the view a descriptor slot holds.
type ViewKind uint8

const (
	ViewNone ViewKind = iota
	ViewConstantBuffer
	ViewShaderResource
	ViewUnorderedAccess
	ViewRenderTarget
	ViewDepthStencil
	ViewSampler
)

// String returns the string representation of ViewKind.
func (k ViewKind) String() string {
	switch k {
	case ViewNone:
		return "None"
	case ViewConstantBuffer:
		return "ConstantBuffer"
	case ViewShaderResource:
		return "ShaderResource"
	case ViewUnorderedAccess:
		return "UnorderedAccess"
	case ViewRenderTarget:
		return "RenderTarget"
	case ViewDepthStencil:
		return "DepthStencil"
	case ViewSampler:
		return "Sampler"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// DescriptorKind returns the heap kind that stores views of this kind.
func (k ViewKind) DescriptorKind() DescriptorKind {
	switch k {
	case ViewRenderTarget:
		return DescriptorRenderTarget
	case ViewDepthStencil:
		return DescriptorDepthStencil
	case ViewSampler:
		return DescriptorSampler
	default:
		return DescriptorResource
	}
}

// ViewDesc is the content of one descriptor slot. Exactly one of Buffer,
// Texture or Sampler is set, according to Kind.
type ViewDesc struct {
	Kind ViewKind

	Buffer Buffer

	// Offset and Size select a byte range of Buffer. Size 0 means the rest
	// of the buffer.
	Offset, Size uint64

	// Stride is the element size for structured buffer views.
	Stride uint32

	Texture Texture

	// Format overrides the resource format when not FormatUnknown.
	Format Format

	Sampler *SamplerDesc
}

// DescriptorKind returns the heap kind that stores the view.
func (v ViewDesc) DescriptorKind() DescriptorKind { return v.Kind.DescriptorKind() }

// FilterMode selects texture filtering.
type FilterMode uint8

const (
	FilterPoint FilterMode = iota
	FilterLinear
	FilterAnisotropic
)

// AddressMode selects texture coordinate wrapping.
type AddressMode uint8

const (
	AddressWrap AddressMode = iota
	AddressMirror
	AddressClamp
	AddressBorder
)

// SamplerDesc describes a sampler. It is comparable and used as a cache key.
type SamplerDesc struct {
	Filter                       FilterMode
	AddressU, AddressV, AddressW AddressMode
	MaxAnisotropy                uint32
	MipLODBias                   float32
	MinLOD, MaxLOD               float32
}

// DefaultSampler is a linear, wrapping sampler over all mip levels.
func DefaultSampler() SamplerDesc {
	return SamplerDesc{
		Filter:   FilterLinear,
		AddressU: AddressWrap,
		AddressV: AddressWrap,
		AddressW: AddressWrap,
		MaxLOD:   1000,
	}
}

// VertexElement describes one vertex attribute.
type VertexElement struct {
	Semantic string
	Location uint32
	Format   Format
	Offset   uint32
}

// ShaderSource holds the shader program of a pipeline.
type ShaderSource struct {
	// WGSL source containing both entry points.
	WGSL string

	VertexEntry   string
	FragmentEntry string
}

// PipelineDesc describes a graphics pipeline.
type PipelineDesc struct {
	Label         string
	RootSignature RootSignature
	Shader        ShaderSource
	InputLayout   []VertexElement
	VertexStride  uint32
	Topology      Topology
	RenderTargets []Format
	DepthFormat   Format

	// SampleCount defaults to 1 when zero.
	SampleCount uint32
}

// SurfaceDesc is the platform window consumed at init and resize.
type SurfaceDesc struct {
	// Window is the native window handle. Zero selects an offscreen surface.
	Window        uintptr
	Width, Height uint32
}

// SwapChainDesc describes a swap chain.
type SwapChainDesc struct {
	Surface     SurfaceDesc
	BufferCount int
	Format      Format
}
