package hw

import "time"

// Device creates every other hardware object.
//
// Implementations must be safe for concurrent use: framekit creates
// resources from any goroutine while one goroutine records and submits.
type Device interface {
	// Name returns a human-readable backend/adapter name.
	Name() string

	// === Queues and synchronization ===

	// OpenQueue returns the hardware queue of the given kind. Calling it twice
	// for the same kind returns the same queue.
	OpenQueue(kind QueueKind) (Queue, error)

	// CreateFence creates a fence with an initial completed value of 0.
	CreateFence() (Fence, error)

	// === Command recording ===

	// CreateRecordingAllocator creates the memory backing for command lists of
	// the given queue kind.
	CreateRecordingAllocator(kind QueueKind) (RecordingAllocator, error)

	// CreateCommandList creates a command list bound to alloc. The list is
	// returned in the recording state.
	CreateCommandList(kind QueueKind, alloc RecordingAllocator) (CommandList, error)

	// === Descriptors ===

	// CreateDescriptorHeap creates a fixed-capacity descriptor heap.
	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)

	// WriteDescriptor writes a view into the descriptor slot at dst.
	WriteDescriptor(dst CPUAddress, view ViewDesc) error

	// CopyDescriptors copies count consecutive descriptors of one kind.
	CopyDescriptors(kind DescriptorKind, dst, src CPUAddress, count uint32) error

	// === Resources ===

	// CreateBuffer allocates a buffer. Out-of-memory conditions wrap
	// ErrOutOfDeviceMemory.
	CreateBuffer(desc BufferDesc) (Buffer, error)

	// CreateTexture allocates a 2D texture.
	CreateTexture(desc TextureDesc) (Texture, error)

	// === Pipeline objects ===

	// CreateRootSignature creates the binding layout used by pipelines.
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)

	// CreatePipeline creates a graphics pipeline.
	CreatePipeline(desc PipelineDesc) (Pipeline, error)

	// === Presentation ===

	// CreateSwapChain creates the presentation chain for a surface.
	CreateSwapChain(desc SwapChainDesc) (SwapChain, error)

	// Destroy releases the device. All child objects must already be destroyed.
	Destroy()
}

// Queue executes command lists in submission order.
type Queue interface {
	// Kind returns the queue kind.
	Kind() QueueKind

	// Execute submits closed command lists for execution.
	Execute(lists ...CommandList) error

	// Signal sets fence to value once all previously submitted work has
	// completed.
	Signal(fence Fence, value uint64) error

	// Wait makes subsequently submitted work wait until fence reaches value.
	// It does not block the calling goroutine.
	Wait(fence Fence, value uint64) error
}

// Fence is a GPU-updated 64-bit counter.
type Fence interface {
	// Completed returns the last value the GPU reached.
	// Device loss is reported as ErrDeviceLost.
	Completed() (uint64, error)

	// Wait blocks until the fence reaches value or timeout elapses. It
	// returns false on timeout.
	Wait(value uint64, timeout time.Duration) (bool, error)

	// Destroy releases the fence.
	Destroy()
}

// RecordingAllocator backs the memory of command lists. It is not safe for
// concurrent use and must not be reset while the GPU executes lists recorded
// into it.
type RecordingAllocator interface {
	// Kind returns the queue kind the allocator serves.
	Kind() QueueKind

	// Reset reclaims all memory of lists recorded into the allocator.
	Reset() error

	// Destroy releases the allocator.
	Destroy()
}

// Resource is the common interface of buffers and textures.
type Resource interface {
	// ResourceKind returns the resource kind.
	ResourceKind() ResourceKind

	// Destroy releases the native memory.
	Destroy()
}

// Buffer is a linear byte allocation.
type Buffer interface {
	Resource

	// Size returns the size in bytes.
	Size() uint64

	// GPUAddress returns the base GPU virtual address of the buffer.
	GPUAddress() GPUAddress

	// Map returns CPU-visible memory for upload and readback heaps.
	// The slice stays valid until Destroy.
	Map() ([]byte, error)

	// Unmap publishes writes to [offset, offset+size) made through the
	// mapped slice.
	Unmap(offset, size uint64)
}

// Texture is a 2D image allocation.
type Texture interface {
	Resource

	// Width returns the width in texels.
	Width() uint32

	// Height returns the height in texels.
	Height() uint32

	// Format returns the texel format.
	Format() Format
}

// DescriptorHeap is a fixed array of descriptor slots.
type DescriptorHeap interface {
	// Desc returns the creation descriptor.
	Desc() DescriptorHeapDesc

	// CPUStart returns the CPU address of slot 0.
	CPUStart() CPUAddress

	// GPUStart returns the GPU address of slot 0, or 0 when the heap is not
	// shader-visible.
	GPUStart() GPUAddress

	// Increment returns the distance in bytes between consecutive slots.
	Increment() uint32

	// Destroy releases the heap.
	Destroy()
}

// RootSignature is a compiled binding layout.
type RootSignature interface {
	// Desc returns the creation descriptor.
	Desc() RootSignatureDesc

	// Destroy releases the root signature.
	Destroy()
}

// Pipeline is a compiled graphics pipeline.
type Pipeline interface {
	// Destroy releases the pipeline.
	Destroy()
}

// SwapChain owns the presentable images of a surface.
type SwapChain interface {
	// BufferCount returns the number of back buffers.
	BufferCount() int

	// Buffer returns back buffer i. The texture is owned by the swap chain.
	Buffer(i int) (Texture, error)

	// Present queues the current back buffer for display.
	// syncInterval 0 presents immediately, n waits for n vertical blanks.
	Present(syncInterval uint32) error

	// Resize recreates the back buffers. Previously returned buffers become
	// invalid.
	Resize(width, height uint32) error

	// Destroy releases the swap chain.
	Destroy()
}

// CommandList records GPU work. Recording methods never fail individually;
// invalid usage is reported by Close.
type CommandList interface {
	// Kind returns the queue kind the list can be executed on.
	Kind() QueueKind

	// Reset starts a new recording into alloc.
	Reset(alloc RecordingAllocator) error

	// Close ends recording.
	Close() error

	// Destroy releases the list.
	Destroy()

	ResourceBarrier(barriers ...Barrier)
	CopyBufferRegion(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)

	// CopyTextureRegion copies the footprint's rows from src into the top
	// left corner of dst's first mip level.
	CopyTextureRegion(dst Texture, src Buffer, footprint TextureFootprint)

	SetDescriptorHeaps(heaps ...DescriptorHeap)
	SetGraphicsRootSignature(rs RootSignature)
	SetGraphicsRootDescriptorTable(index uint32, base GPUAddress)
	SetGraphicsRoot32BitConstants(index uint32, values []uint32, offset uint32)
	SetGraphicsRootConstantBufferView(index uint32, addr GPUAddress)

	SetPipeline(p Pipeline)
	SetPrimitiveTopology(t Topology)
	SetViewports(viewports ...Viewport)
	SetScissorRects(rects ...Rect)
	SetRenderTargets(rtvs []CPUAddress, dsv CPUAddress)
	ClearRenderTargetView(rtv CPUAddress, color [4]float32)
	ClearDepthStencilView(dsv CPUAddress, depth float32, stencil uint8)
	SetVertexBuffers(startSlot uint32, views ...VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
}
