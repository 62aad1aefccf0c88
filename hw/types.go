package hw

import (
	"fmt"
	"strings"
)

// QueueKind identifies a hardware execution queue.
type QueueKind uint8

const (
	// QueueDirect executes graphics, compute and copy work.
	QueueDirect QueueKind = iota

	// QueueCompute executes compute and copy work.
	QueueCompute

	// QueueCopy executes copy work only.
	QueueCopy
)

// Accepts reports whether a queue of kind k can execute lists recorded for
// kind list. Direct queues run everything, compute queues run compute and
// copy lists, copy queues only copy lists.
func (k QueueKind) Accepts(list QueueKind) bool {
	switch k {
	case QueueDirect:
		return true
	case QueueCompute:
		return list == QueueCompute || list == QueueCopy
	default:
		return list == QueueCopy
	}
}

// QueueKindCount is the number of queue kinds.
const QueueKindCount = 3

// String returns the string representation of QueueKind.
func (k QueueKind) String() string {
	switch k {
	case QueueDirect:
		return "Direct"
	case QueueCompute:
		return "Compute"
	case QueueCopy:
		return "Copy"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// DescriptorKind identifies the class of descriptor a heap stores.
type DescriptorKind uint8

const (
	// DescriptorResource holds constant-buffer, shader-resource and
	// unordered-access views.
	DescriptorResource DescriptorKind = iota

	// DescriptorSampler holds samplers.
	DescriptorSampler

	// DescriptorRenderTarget holds render-target views.
	DescriptorRenderTarget

	// DescriptorDepthStencil holds depth-stencil views.
	DescriptorDepthStencil
)

// DescriptorKindCount is the number of descriptor kinds.
const DescriptorKindCount = 4

// String returns the string representation of DescriptorKind.
func (k DescriptorKind) String() string {
	switch k {
	case DescriptorResource:
		return "Resource"
	case DescriptorSampler:
		return "Sampler"
	case DescriptorRenderTarget:
		return "RenderTarget"
	case DescriptorDepthStencil:
		return "DepthStencil"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ShaderVisibleAllowed reports whether heaps of this kind can be bound to
// shaders. Render-target and depth-stencil heaps are CPU-only.
func (k DescriptorKind) ShaderVisibleAllowed() bool {
	return k == DescriptorResource || k == DescriptorSampler
}

// CPUAddress is the CPU-side address of a descriptor slot.
type CPUAddress uint64

// GPUAddress is a GPU virtual address. For descriptors it addresses a
// shader-visible heap slot; for buffers it addresses device memory.
// Zero means "none".
type GPUAddress uint64

// HeapKind selects the memory pool a resource lives in.
type HeapKind uint8

const (
	// HeapDefault is device-local memory, not CPU accessible.
	HeapDefault HeapKind = iota

	// HeapUpload is CPU-writable, GPU-readable memory.
	HeapUpload

	// HeapReadback is GPU-writable, CPU-readable memory.
	HeapReadback
)

// String returns the string representation of HeapKind.
func (k HeapKind) String() string {
	switch k {
	case HeapDefault:
		return "Default"
	case HeapUpload:
		return "Upload"
	case HeapReadback:
		return "Readback"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ResourceKind distinguishes buffers from textures.
type ResourceKind uint8

const (
	// ResourceBuffer is a linear byte buffer.
	ResourceBuffer ResourceKind = iota

	// ResourceTexture2D is a two-dimensional texture.
	ResourceTexture2D
)

// String returns the string representation of ResourceKind.
func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "Buffer"
	case ResourceTexture2D:
		return "Texture2D"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ResourceState is a bit set describing how the GPU may access a resource.
type ResourceState uint32

const (
	// StateCommon is the zero state, required for cross-queue use.
	StateCommon ResourceState = 0

	StateVertexAndConstantBuffer ResourceState = 1 << iota
	StateIndexBuffer
	StateRenderTarget
	StateUnorderedAccess
	StateDepthWrite
	StateDepthRead
	StateShaderResource
	StateCopyDest
	StateCopySource
	StatePresent
)

// StateGenericRead is the required state for upload-heap resources.
const StateGenericRead = StateVertexAndConstantBuffer | StateIndexBuffer |
	StateShaderResource | StateCopySource

var stateNames = []struct {
	bit  ResourceState
	name string
}{
	{StateVertexAndConstantBuffer, "VertexAndConstantBuffer"},
	{StateIndexBuffer, "IndexBuffer"},
	{StateRenderTarget, "RenderTarget"},
	{StateUnorderedAccess, "UnorderedAccess"},
	{StateDepthWrite, "DepthWrite"},
	{StateDepthRead, "DepthRead"},
	{StateShaderResource, "ShaderResource"},
	{StateCopyDest, "CopyDest"},
	{StateCopySource, "CopySource"},
	{StatePresent, "Present"},
}

// String returns the set bits joined by "|", or "Common" for zero.
func (s ResourceState) String() string {
	if s == StateCommon {
		return "Common"
	}
	var parts []string
	rest := s
	for _, n := range stateNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(%#x)", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// BindFlags declares how a resource will be bound.
type BindFlags uint32

const (
	BindVertexBuffer BindFlags = 1 << iota
	BindIndexBuffer
	BindConstantBuffer
	BindShaderResource
	BindUnorderedAccess
	BindRenderTarget
	BindDepthStencil
)

// Has reports whether all bits of f are set.
func (b BindFlags) Has(f BindFlags) bool { return b&f == f }

// Format is a texel or vertex-element format.
type Format uint16

const (
	FormatUnknown Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatR16Uint
	FormatR32Uint
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatD24UnormS8Uint
	FormatD32Float
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "Unknown"
	case FormatR8Unorm:
		return "R8Unorm"
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatBGRA8Unorm:
		return "BGRA8Unorm"
	case FormatRGBA16Float:
		return "RGBA16Float"
	case FormatR16Uint:
		return "R16Uint"
	case FormatR32Uint:
		return "R32Uint"
	case FormatR32Float:
		return "R32Float"
	case FormatRG32Float:
		return "RG32Float"
	case FormatRGB32Float:
		return "RGB32Float"
	case FormatRGBA32Float:
		return "RGBA32Float"
	case FormatD24UnormS8Uint:
		return "D24UnormS8Uint"
	case FormatD32Float:
		return "D32Float"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// ParseFormat returns the Format whose String matches name,
// case-insensitively.
func ParseFormat(name string) (Format, error) {
	for f := FormatR8Unorm; f <= FormatD32Float; f++ {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("hw: unknown format %q", name)
}

// BytesPerElement returns the size of one texel or element, or 0 for
// FormatUnknown.
func (f Format) BytesPerElement() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR16Uint:
		return 2
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatR32Uint, FormatR32Float,
		FormatD24UnormS8Uint, FormatD32Float:
		return 4
	case FormatRGBA16Float, FormatRG32Float:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// IsDepth reports whether f is a depth or depth-stencil format.
func (f Format) IsDepth() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32Float
}

// Topology is the primitive topology used for draws.
type Topology uint8

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

// String returns the string representation of Topology.
func (t Topology) String() string {
	switch t {
	case TopologyTriangleList:
		return "TriangleList"
	case TopologyTriangleStrip:
		return "TriangleStrip"
	case TopologyLineList:
		return "LineList"
	case TopologyPointList:
		return "PointList"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Viewport describes the viewport transform.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle in pixels.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// VertexBufferView binds a byte range of a buffer as vertex input.
type VertexBufferView struct {
	Address GPUAddress
	Size    uint32
	Stride  uint32
}

// IndexBufferView binds a byte range of a buffer as index input.
// Format is FormatR16Uint or FormatR32Uint.
type IndexBufferView struct {
	Address GPUAddress
	Size    uint32
	Format  Format
}

// Placement rules for texel data staged in a buffer.
const (
	// TextureRowPitchAlignment is the byte alignment of each staged row.
	TextureRowPitchAlignment = 256

	// TexturePlacementAlignment is the byte alignment of the first row.
	TexturePlacementAlignment = 512
)

// TextureFootprint places Height rows of Width texels in a buffer,
// RowPitch bytes apart, starting at Offset.
type TextureFootprint struct {
	Offset   uint64
	Width    uint32
	Height   uint32
	RowPitch uint32
}

// RowPitchFor returns the aligned row pitch of width texels of format f.
func RowPitchFor(f Format, width uint32) uint32 {
	row := width * f.BytesPerElement()
	return (row + TextureRowPitchAlignment - 1) &^ (TextureRowPitchAlignment - 1)
}

// Validate checks the footprint against the destination texture and the
// size of the source buffer.
func (fp TextureFootprint) Validate(dst Texture, bufferSize uint64) error {
	bpp := dst.Format().BytesPerElement()
	switch {
	case bpp == 0:
		return fmt.Errorf("hw: copy into %v texture: %w", dst.Format(), ErrUnsupported)
	case fp.Width == 0 || fp.Height == 0:
		return fmt.Errorf("hw: empty %dx%d texture copy: %w", fp.Width, fp.Height, ErrInvalidUsage)
	case fp.Width > dst.Width() || fp.Height > dst.Height():
		return fmt.Errorf("hw: %dx%d copy into a %dx%d texture: %w",
			fp.Width, fp.Height, dst.Width(), dst.Height(), ErrInvalidUsage)
	case fp.RowPitch%TextureRowPitchAlignment != 0 || fp.RowPitch < fp.Width*bpp:
		return fmt.Errorf("hw: row pitch %d for %d-byte rows: %w", fp.RowPitch, fp.Width*bpp, ErrInvalidUsage)
	case fp.Offset%TexturePlacementAlignment != 0:
		return fmt.Errorf("hw: texture data at offset %d is not %d-aligned: %w",
			fp.Offset, TexturePlacementAlignment, ErrInvalidUsage)
	}
	end := fp.Offset + uint64(fp.RowPitch)*uint64(fp.Height-1) + uint64(fp.Width*bpp)
	if end > bufferSize {
		return fmt.Errorf("hw: texture data ends at %d in a %d-byte buffer: %w", end, bufferSize, ErrInvalidUsage)
	}
	return nil
}

// Barrier transitions a resource between states.
type Barrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}
