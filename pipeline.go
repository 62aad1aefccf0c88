package framekit

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/memory"
)

// RootSignature is an owning binding layout.
type RootSignature struct {
	dev      *Device
	id       memory.RootSignatureID
	native   hw.RootSignature
	desc     hw.RootSignatureDesc
	released atomic.Bool
}

// CreateRootSignature validates desc and creates the layout.
func (d *Device) CreateRootSignature(desc hw.RootSignatureDesc) (*RootSignature, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("framekit: root signature %q: %w", desc.Label, err)
	}
	native, err := d.hw.CreateRootSignature(desc)
	if err != nil {
		return nil, d.fail(fmt.Errorf("framekit: create root signature %q: %w", desc.Label, err))
	}
	return &RootSignature{dev: d, id: d.mem.TrackRootSignature(native), native: native, desc: desc}, nil
}

// Desc returns the creation descriptor.
func (rs *RootSignature) Desc() hw.RootSignatureDesc { return rs.desc }

// Release schedules destruction.
func (rs *RootSignature) Release() error {
	if rs.released.Swap(true) {
		return fmt.Errorf("framekit: root signature %q: %w", rs.desc.Label, ErrReleased)
	}
	return rs.dev.mem.ReleaseRootSignature(rs.id)
}

func (rs *RootSignature) nativeRoot() (hw.RootSignature, error) {
	if rs == nil || rs.released.Load() {
		return nil, fmt.Errorf("framekit: root signature: %w", ErrReleased)
	}
	return rs.native, nil
}

// Pipeline is an owning graphics pipeline.
type Pipeline struct {
	dev      *Device
	id       memory.PipelineID
	native   hw.Pipeline
	root     *RootSignature
	label    string
	released atomic.Bool
}

// CreatePipeline creates a graphics pipeline bound to rs. desc.RootSignature
// is filled in from rs. An empty render target list defaults to the
// swap-chain format and an unset depth format to the device's.
func (d *Device) CreatePipeline(rs *RootSignature, desc hw.PipelineDesc) (*Pipeline, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	root, err := rs.nativeRoot()
	if err != nil {
		return nil, err
	}
	desc.RootSignature = root
	if len(desc.RenderTargets) == 0 {
		desc.RenderTargets = []hw.Format{d.cfg.RenderFormat}
	}
	if desc.DepthFormat == hw.FormatUnknown {
		desc.DepthFormat = d.cfg.DepthFormat
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	native, err := d.hw.CreatePipeline(desc)
	if err != nil {
		return nil, d.fail(fmt.Errorf("framekit: create pipeline %q: %w", desc.Label, err))
	}
	return &Pipeline{
		dev:    d,
		id:     d.mem.TrackPipeline(native),
		native: native,
		root:   rs,
		label:  desc.Label,
	}, nil
}

// RootSignature returns the layout the pipeline was created with.
func (p *Pipeline) RootSignature() *RootSignature { return p.root }

// Release schedules destruction. The root signature is not released.
func (p *Pipeline) Release() error {
	if p.released.Swap(true) {
		return fmt.Errorf("framekit: pipeline %q: %w", p.label, ErrReleased)
	}
	return p.dev.mem.ReleasePipeline(p.id)
}

func (p *Pipeline) nativePipeline() (hw.Pipeline, error) {
	if p == nil || p.released.Load() {
		return nil, fmt.Errorf("framekit: pipeline: %w", ErrReleased)
	}
	return p.native, nil
}
