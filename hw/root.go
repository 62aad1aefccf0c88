package hw

import (
	"errors"
	"fmt"
)

// Root signature validation errors.
var (
	// ErrEmptyTable is returned when a descriptor table has no ranges.
	ErrEmptyTable = errors.New("hw: descriptor table has no ranges")

	// ErrMixedSamplerTable is returned when a table mixes sampler and
	// non-sampler ranges.
	ErrMixedSamplerTable = errors.New("hw: descriptor table mixes sampler and resource ranges")

	// ErrOverlappingRanges is returned when explicit range offsets overlap.
	ErrOverlappingRanges = errors.New("hw: descriptor table ranges overlap")

	// ErrZeroConstants is returned for root constants with no values.
	ErrZeroConstants = errors.New("hw: root constants with zero values")
)

// ShaderVisibility selects the shader stages that can read a parameter.
type ShaderVisibility uint8

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
)

// String returns the string representation of ShaderVisibility.
func (v ShaderVisibility) String() string {
	switch v {
	case VisibilityAll:
		return "All"
	case VisibilityVertex:
		return "Vertex"
	case VisibilityPixel:
		return "Pixel"
	default:
		return fmt.Sprintf("Unknown(%d)", int(v))
	}
}

// RangeKind is the descriptor class of a table range.
type RangeKind uint8

const (
	RangeShaderResource RangeKind = iota
	RangeUnorderedAccess
	RangeConstantBuffer
	RangeSampler
)

// RangeOffsetAppend places a range directly after the previous one.
const RangeOffsetAppend = ^uint32(0)

// DescriptorRange is a run of registers inside a descriptor table.
type DescriptorRange struct {
	Kind         RangeKind
	Count        uint32
	BaseRegister uint32
	Space        uint32

	// Offset is the slot offset from the start of the table, or
	// RangeOffsetAppend.
	Offset uint32
}

// RootParameter is one root slot: a DescriptorTable, RootConstants or
// InlineDescriptor. The interface is sealed.
type RootParameter interface {
	// Visibility returns the shader stages that see the parameter.
	Visibility() ShaderVisibility

	rootParameter()
}

// DescriptorTable binds a contiguous run of shader-visible descriptors.
type DescriptorTable struct {
	Ranges []DescriptorRange
	Stage  ShaderVisibility
}

// RootConstants binds 32-bit values directly in the root.
type RootConstants struct {
	Register uint32
	Space    uint32
	Count    uint32
	Stage    ShaderVisibility
}

// InlineKind is the view class of an inline root descriptor.
type InlineKind uint8

const (
	InlineConstantBuffer InlineKind = iota
	InlineShaderResource
	InlineUnorderedAccess
)

// InlineDescriptor binds a buffer GPU address directly in the root.
type InlineDescriptor struct {
	Kind     InlineKind
	Register uint32
	Space    uint32
	Stage    ShaderVisibility
}

func (t DescriptorTable) Visibility() ShaderVisibility  { return t.Stage }
func (c RootConstants) Visibility() ShaderVisibility    { return c.Stage }
func (d InlineDescriptor) Visibility() ShaderVisibility { return d.Stage }

func (DescriptorTable) rootParameter()  {}
func (RootConstants) rootParameter()    {}
func (InlineDescriptor) rootParameter() {}

// Offsets resolves RangeOffsetAppend and returns the slot offset of each
// range together with the total number of slots the table spans.
func (t DescriptorTable) Offsets() (offsets []uint32, size uint32) {
	offsets = make([]uint32, len(t.Ranges))
	var next uint32
	for i, r := range t.Ranges {
		off := r.Offset
		if off == RangeOffsetAppend {
			off = next
		}
		offsets[i] = off
		next = off + r.Count
		if next > size {
			size = next
		}
	}
	return offsets, size
}

// IsSamplerTable reports whether the table holds sampler ranges.
func (t DescriptorTable) IsSamplerTable() bool {
	return len(t.Ranges) > 0 && t.Ranges[0].Kind == RangeSampler
}

func (t DescriptorTable) validate() error {
	if len(t.Ranges) == 0 {
		return ErrEmptyTable
	}
	sampler := t.Ranges[0].Kind == RangeSampler
	for _, r := range t.Ranges[1:] {
		if (r.Kind == RangeSampler) != sampler {
			return ErrMixedSamplerTable
		}
	}
	offsets, _ := t.Offsets()
	for i := range t.Ranges {
		for j := i + 1; j < len(t.Ranges); j++ {
			a0, a1 := offsets[i], offsets[i]+t.Ranges[i].Count
			b0, b1 := offsets[j], offsets[j]+t.Ranges[j].Count
			if a0 < b1 && b0 < a1 {
				return ErrOverlappingRanges
			}
		}
	}
	return nil
}

// RootSignatureFlags are layout-wide options.
type RootSignatureFlags uint32

const (
	// RootAllowInputAssembler enables vertex input.
	RootAllowInputAssembler RootSignatureFlags = 1 << iota
)

// StaticSampler is a sampler baked into the root signature.
type StaticSampler struct {
	Sampler  SamplerDesc
	Register uint32
	Space    uint32
	Stage    ShaderVisibility
}

// RootSignatureDesc describes a root signature.
type RootSignatureDesc struct {
	Label          string
	Parameters     []RootParameter
	StaticSamplers []StaticSampler
	Flags          RootSignatureFlags
}

// Validate checks every parameter.
func (d RootSignatureDesc) Validate() error {
	for i, p := range d.Parameters {
		var err error
		switch p := p.(type) {
		case DescriptorTable:
			err = p.validate()
		case RootConstants:
			if p.Count == 0 {
				err = ErrZeroConstants
			}
		case InlineDescriptor:
		default:
			err = fmt.Errorf("hw: unknown root parameter type %T", p)
		}
		if err != nil {
			return fmt.Errorf("root parameter %d: %w", i, err)
		}
	}
	return nil
}
