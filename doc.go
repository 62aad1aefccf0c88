// Package framekit is the frame and memory layer of a renderer that drives
// an explicit GPU API.
//
// # Overview
//
// Explicit APIs leave it to the application to decide when the CPU may reuse
// memory the GPU reads. framekit makes that decision in one place: every
// submission is covered by a monotonically increasing ticket on its queue,
// recording allocators are recycled only once their ticket completed, and
// released objects are destroyed only after every frame that might still
// reference them has retired.
//
// # Quick Start
//
//	dev, err := framekit.New(hwDevice, surface, framekit.WithBufferCount(2))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	for running {
//	    cl, err := dev.BeginCommandList(hw.QueueDirect)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    bb := dev.BackBuffer()
//	    cl.Transition(bb, hw.StateRenderTarget)
//	    cl.BindRenderTarget(bb, dev.DepthBuffer())
//	    cl.ClearRenderTarget(bb, [4]float32{0, 0, 0, 1})
//	    // ... draws ...
//	    cl.Transition(bb, hw.StatePresent)
//	    if _, err := dev.SubmitCommandList(cl); err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := dev.Present(); err != nil {
//	        log.Fatal(err) // device lost or fence timeout
//	    }
//	}
//
// # Frames in flight
//
// Config.BufferCount frames may be in flight. Each frame slot owns a
// swap-chain image, a depth buffer and its own shader-visible descriptor
// heaps. Present blocks until the frame that last used the next slot has
// completed, then resets that slot's heaps.
//
// # Ownership
//
// *Buffer, *Texture, *Descriptor, *Pipeline and *RootSignature are owning
// handles with a Release method. BufferView, BackBuffer, DepthBuffer,
// Sampler and GPUDescriptor are views: they borrow memory owned elsewhere
// and have no Release method.
//
// # Backends
//
// The hardware is reached through the interfaces of package hw.
// Package hw/sim is a deterministic software GPU for tests and package
// hw/halgpu runs on gogpu/wgpu's hal layer (Vulkan, Metal, DX12, GLES).
//
// # Logging
//
// framekit is silent by default. Use SetLogger or WithLogger to enable
// structured logging of device lifecycle, pool growth and reclamation.
package framekit

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
