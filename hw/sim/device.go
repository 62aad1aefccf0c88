// Package sim implements hw.Device as a deterministic software GPU.
//
// Submitted work is queued per hardware queue and executed only when the
// GPU timeline advances: explicitly via Step, Drain and DrainAll, or
// automatically when Config.AutoComplete is set or Config.Latency is
// non-zero. Copies are performed on real byte slices, so uploads can be
// verified, and every object tracks whether it is still referenced by
// pending work so early reuse and use-after-free are reported as
// violations instead of corrupting memory silently.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/hwutil"
)

// Simulator errors.
var (
	// ErrAllocatorInUse is returned by RecordingAllocator.Reset while lists
	// recorded into it are still pending on a queue.
	ErrAllocatorInUse = errors.New("sim: recording allocator reset while GPU work is pending")

	// ErrClosed is returned when the device has been destroyed.
	ErrClosed = errors.New("sim: device destroyed")
)

// Config configures the simulated device.
type Config struct {
	// AutoComplete executes work as soon as it is submitted.
	AutoComplete bool

	// Latency, when non-zero, starts a background GPU that executes one
	// queued operation per Latency tick.
	Latency time.Duration

	// MemoryBudget limits buffer and texture bytes. Zero means unlimited.
	MemoryBudget uint64
}

// Stats is a snapshot of simulator counters.
type Stats struct {
	ExecutedLists    int
	ExecutedCommands int
	Presents         int
	MemoryUsed       uint64
	Live             Objects
}

// Objects counts live objects by type.
type Objects struct {
	Buffers        int
	Textures       int
	Heaps          int
	Allocators     int
	Lists          int
	Fences         int
	Pipelines      int
	RootSignatures int
	SwapChains     int
}

// String returns a human-readable summary of the counters.
func (s Stats) String() string {
	return fmt.Sprintf("Sim[%d lists, %d cmds, %d presents, %d bytes, %d buffers, %d textures]",
		s.ExecutedLists, s.ExecutedCommands, s.Presents, s.MemoryUsed,
		s.Live.Buffers, s.Live.Textures)
}

// Device is a simulated hw.Device.
//
// Thread Safety: all methods are safe for concurrent use.
type Device struct {
	cfg Config

	mu         sync.Mutex
	cond       *sync.Cond
	queues     [hw.QueueKindCount]*Queue
	lost       bool
	destroyed  bool
	stats      Stats
	violations []string

	descriptors *hwutil.DescriptorSpace
	addresses   *hwutil.AddressSpace

	stop chan struct{}
	done chan struct{}
}

// New creates a simulated device.
func New(cfg Config) *Device {
	d := &Device{
		cfg:         cfg,
		descriptors: hwutil.NewDescriptorSpace(),
		addresses:   hwutil.NewAddressSpace(),
	}
	d.cond = sync.NewCond(&d.mu)
	for k := range d.queues {
		d.queues[k] = &Queue{dev: d, kind: hw.QueueKind(k)}
	}
	if cfg.Latency > 0 {
		d.stop = make(chan struct{})
		d.done = make(chan struct{})
		go d.run(cfg.Latency)
	}
	return d
}

var _ hw.Device = (*Device)(nil)

// Name returns "sim".
func (d *Device) Name() string { return "sim" }

// run is the background GPU loop used when Config.Latency is set.
func (d *Device) run(tick time.Duration) {
	defer close(d.done)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			d.mu.Lock()
			for k := range d.queues {
				d.stepLocked(hw.QueueKind(k))
			}
			d.mu.Unlock()
		}
	}
}

// Lose simulates device removal. Pending and future waits fail with
// hw.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	d.lost = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Step executes the next operation of one queue. It returns false when the
// queue is empty or stalled on a GPU-side wait.
func (d *Device) Step(kind hw.QueueKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stepLocked(kind)
}

// Drain executes operations of one queue until it is empty or stalled and
// returns the number executed.
func (d *Device) Drain(kind hw.QueueKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for d.stepLocked(kind) {
		n++
	}
	return n
}

// DrainAll advances every queue until no queue can make progress.
func (d *Device) DrainAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drainAllLocked()
}

func (d *Device) drainAllLocked() int {
	total := 0
	for {
		progressed := false
		for k := range d.queues {
			for d.stepLocked(hw.QueueKind(k)) {
				total++
				progressed = true
			}
		}
		if !progressed {
			return total
		}
	}
}

// Pending returns the number of queued operations on a queue.
func (d *Device) Pending(kind hw.QueueKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues[kind].ops)
}

// Stats returns a snapshot of the simulator counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Violations returns the use-after-free and early-reuse reports collected
// so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

func (d *Device) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// afterSubmitLocked runs the GPU immediately in AutoComplete mode.
func (d *Device) afterSubmitLocked() {
	if d.cfg.AutoComplete {
		d.drainAllLocked()
	}
}

func (d *Device) checkLocked() error {
	if d.destroyed {
		return ErrClosed
	}
	if d.lost {
		return hw.ErrDeviceLost
	}
	return nil
}

// OpenQueue returns the queue of the given kind.
func (d *Device) OpenQueue(kind hw.QueueKind) (hw.Queue, error) {
	if int(kind) >= len(d.queues) {
		return nil, fmt.Errorf("sim: queue kind %v: %w", kind, hw.ErrUnsupported)
	}
	return d.queues[kind], nil
}

// CreateFence creates a fence at value 0.
func (d *Device) CreateFence() (hw.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	d.stats.Live.Fences++
	return &Fence{dev: d}, nil
}

// CreateRecordingAllocator creates a recording allocator.
func (d *Device) CreateRecordingAllocator(kind hw.QueueKind) (hw.RecordingAllocator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	d.stats.Live.Allocators++
	return &Allocator{dev: d, kind: kind}, nil
}

// CreateCommandList creates a list recording into alloc.
func (d *Device) CreateCommandList(kind hw.QueueKind, alloc hw.RecordingAllocator) (hw.CommandList, error) {
	a, ok := alloc.(*Allocator)
	if !ok || a.kind != kind {
		return nil, fmt.Errorf("sim: allocator does not serve %v lists: %w", kind, hw.ErrInvalidUsage)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	d.stats.Live.Lists++
	return &CommandList{dev: d, kind: kind, alloc: a, recording: true}, nil
}

// CreateDescriptorHeap reserves a heap in the synthetic descriptor space.
func (d *Device) CreateDescriptorHeap(desc hw.DescriptorHeapDesc) (hw.DescriptorHeap, error) {
	h, err := d.descriptors.Reserve(desc)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.stats.Live.Heaps++
	d.mu.Unlock()
	return &heap{Heap: h, dev: d}, nil
}

type heap struct {
	*hwutil.Heap
	dev *Device
}

func (h *heap) Destroy() {
	h.Heap.Destroy()
	h.dev.mu.Lock()
	h.dev.stats.Live.Heaps--
	h.dev.mu.Unlock()
}

// WriteDescriptor stores view at dst.
func (d *Device) WriteDescriptor(dst hw.CPUAddress, view hw.ViewDesc) error {
	return d.descriptors.Write(dst, view)
}

// CopyDescriptors copies descriptor slots.
func (d *Device) CopyDescriptors(kind hw.DescriptorKind, dst, src hw.CPUAddress, count uint32) error {
	return d.descriptors.Copy(kind, dst, src, count)
}

// ReadDescriptor returns the view stored at addr.
func (d *Device) ReadDescriptor(addr hw.CPUAddress) (hw.ViewDesc, error) {
	return d.descriptors.Read(addr)
}

// ReadShaderDescriptors returns count views starting at a shader-visible
// address.
func (d *Device) ReadShaderDescriptors(addr hw.GPUAddress, count uint32) ([]hw.ViewDesc, error) {
	return d.descriptors.ReadGPU(addr, count)
}

func (d *Device) reserveLocked(size uint64) error {
	if d.cfg.MemoryBudget > 0 && d.stats.MemoryUsed+size > d.cfg.MemoryBudget {
		return fmt.Errorf("sim: %d bytes requested, %d of %d in use: %w",
			size, d.stats.MemoryUsed, d.cfg.MemoryBudget, hw.ErrOutOfDeviceMemory)
	}
	d.stats.MemoryUsed += size
	return nil
}

// CreateBuffer allocates a buffer backed by a byte slice.
func (d *Device) CreateBuffer(desc hw.BufferDesc) (hw.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("sim: buffer %q with zero size: %w", desc.Label, hw.ErrInvalidUsage)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	if err := d.reserveLocked(desc.Size); err != nil {
		return nil, err
	}
	b := &Buffer{dev: d, desc: desc, data: make([]byte, desc.Size)}
	b.addr = d.addresses.Map(b, desc.Size)
	d.stats.Live.Buffers++
	return b, nil
}

// CreateTexture allocates a texture.
func (d *Device) CreateTexture(desc hw.TextureDesc) (hw.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("sim: texture %q with zero extent: %w", desc.Label, hw.ErrInvalidUsage)
	}
	bpp := desc.Format.BytesPerElement()
	if bpp == 0 {
		return nil, fmt.Errorf("sim: texture format %v: %w", desc.Format, hw.ErrUnsupported)
	}
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(bpp)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	if err := d.reserveLocked(size); err != nil {
		return nil, err
	}
	d.stats.Live.Textures++
	return &Texture{dev: d, desc: desc, size: size}, nil
}

// CreateRootSignature validates and records a root signature.
func (d *Device) CreateRootSignature(desc hw.RootSignatureDesc) (hw.RootSignature, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("sim: root signature %q: %w", desc.Label, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	d.stats.Live.RootSignatures++
	return &RootSignature{dev: d, desc: desc}, nil
}

// CreatePipeline records a pipeline. The shader is not compiled.
func (d *Device) CreatePipeline(desc hw.PipelineDesc) (hw.Pipeline, error) {
	if desc.RootSignature == nil {
		return nil, fmt.Errorf("sim: pipeline %q without root signature: %w", desc.Label, hw.ErrInvalidUsage)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return nil, err
	}
	d.stats.Live.Pipelines++
	return &Pipeline{dev: d, desc: desc}, nil
}

// CreateSwapChain creates an offscreen swap chain.
func (d *Device) CreateSwapChain(desc hw.SwapChainDesc) (hw.SwapChain, error) {
	if desc.BufferCount < 1 {
		return nil, fmt.Errorf("sim: swap chain with %d buffers: %w", desc.BufferCount, hw.ErrInvalidUsage)
	}
	sc := &SwapChain{dev: d, desc: desc}
	if err := sc.createBuffers(desc.Surface.Width, desc.Surface.Height); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.stats.Live.SwapChains++
	d.mu.Unlock()
	return sc, nil
}

// Destroy stops the background GPU, if any, and marks the device unusable.
func (d *Device) Destroy() {
	if d.stop != nil {
		close(d.stop)
		<-d.done
		d.stop = nil
	}
	d.mu.Lock()
	d.destroyed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}
