package framekit

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/cache"
	"github.com/gogpu/framekit/internal/cmdpool"
	"github.com/gogpu/framekit/internal/descriptor"
	"github.com/gogpu/framekit/internal/memory"
	"github.com/gogpu/framekit/internal/queue"
)

// FrameState is the position of the device in the frame lifecycle.
type FrameState uint8

const (
	// FrameIdle means no command list is open for the current frame.
	FrameIdle FrameState = iota

	// FrameRecording means at least one command list is recording.
	FrameRecording

	// FrameSubmitted means every list of the frame has been submitted.
	FrameSubmitted

	// FramePresented is the state between the present call and the end of
	// the back-pressure wait.
	FramePresented
)

// String returns the string representation of FrameState.
func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "Idle"
	case FrameRecording:
		return "Recording"
	case FrameSubmitted:
		return "Submitted"
	case FramePresented:
		return "Presented"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Device drives the frame lifecycle on top of a hardware device: it hands
// out command lists, submits them, presents, and guarantees the CPU never
// frees or overwrites memory the GPU may still read.
//
// The CPU runs at most BufferCount frames ahead of the GPU. Present blocks
// when it is further ahead.
//
// Thread Safety: Device methods are meant to be called from one submission
// goroutine. Resource creation, Release methods and Stats may be called
// from any goroutine.
type Device struct {
	hw      hw.Device
	cfg     Config
	queues  [hw.QueueKindCount]*queue.Queue
	lists   [hw.QueueKindCount]*cmdpool.Manager
	mem     *memory.Handler
	swap    hw.SwapChain
	surface hw.SurfaceDesc

	samplers *cache.LRU[hw.SamplerDesc, descriptor.Handle]

	mu          sync.Mutex
	frame       uint64
	slot        int
	slotTickets []uint64
	state       FrameState
	open        int
	targets     []*target
	broken      error
	lost        error
	closed      bool
}

// target is the per-slot render target set: a swap-chain image, its render
// target view and the slot's depth buffer.
type target struct {
	index      int
	texture    hw.Texture
	rtv        descriptor.Handle
	state      hw.ResourceState
	depth      hw.Texture
	dsv        descriptor.Handle
	depthState hw.ResourceState
	stale      bool
}

// New creates a device façade over dev presenting to surface.
func New(dev hw.Device, surface hw.SurfaceDesc, opts ...DeviceOption) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Device{
		hw:          dev,
		cfg:         cfg,
		surface:     surface,
		slotTickets: make([]uint64, cfg.BufferCount),
	}
	if err := d.init(); err != nil {
		d.teardown()
		return nil, err
	}
	Logger().Info("framekit: device created",
		"backend", dev.Name(),
		"buffers", cfg.BufferCount,
		"width", surface.Width, "height", surface.Height,
		"ring", cfg.UploadRingSize)
	return d, nil
}

func (d *Device) init() error {
	for k := range d.queues {
		q, err := queue.New(d.hw, hw.QueueKind(k), d.cfg.FenceTimeout)
		if err != nil {
			return err
		}
		d.queues[k] = q
		d.lists[k] = cmdpool.NewManager(d.hw, hw.QueueKind(k))
	}

	mem, err := memory.NewHandler(d.hw, memory.Config{
		BufferCount: d.cfg.BufferCount,
		CPUHeapSize: [hw.DescriptorKindCount]uint32{
			hw.DescriptorResource:     d.cfg.ResourceHeapSize,
			hw.DescriptorSampler:      d.cfg.SamplerHeapSize,
			hw.DescriptorRenderTarget: d.cfg.RTVHeapSize,
			hw.DescriptorDepthStencil: d.cfg.DSVHeapSize,
		},
		ShaderResourceHeapSize: d.cfg.ShaderResourceHeapSize,
		ShaderSamplerHeapSize:  d.cfg.ShaderSamplerHeapSize,
		UploadRingSize:         d.cfg.UploadRingSize,
	})
	if err != nil {
		return err
	}
	d.mem = mem
	d.samplers = cache.New(d.cfg.SamplerCacheSize, func(_ hw.SamplerDesc, h descriptor.Handle) {
		d.mem.ReleaseDescriptor(h)
	})

	swap, err := d.hw.CreateSwapChain(hw.SwapChainDesc{
		Surface:     d.surface,
		BufferCount: d.cfg.BufferCount,
		Format:      d.cfg.RenderFormat,
	})
	if err != nil {
		return fmt.Errorf("framekit: create swap chain: %w", err)
	}
	d.swap = swap
	return d.createTargets()
}

// createTargets builds the per-slot render target views and depth buffers.
func (d *Device) createTargets() error {
	for i := range d.cfg.BufferCount {
		tex, err := d.swap.Buffer(i)
		if err != nil {
			return fmt.Errorf("framekit: swap chain buffer %d: %w", i, err)
		}
		t := &target{index: i, texture: tex, state: hw.StatePresent}
		d.targets = append(d.targets, t)

		if t.rtv, err = d.writeView(hw.ViewDesc{Kind: hw.ViewRenderTarget, Texture: tex}); err != nil {
			return err
		}
		if d.cfg.DepthFormat == hw.FormatUnknown {
			continue
		}
		t.depth, err = d.hw.CreateTexture(hw.TextureDesc{
			Label:        fmt.Sprintf("depth %d", i),
			Width:        d.surface.Width,
			Height:       d.surface.Height,
			MipLevels:    1,
			SampleCount:  1,
			Format:       d.cfg.DepthFormat,
			Bind:         hw.BindDepthStencil,
			InitialState: hw.StateDepthWrite,
			ClearDepth:   1,
		})
		if err != nil {
			return fmt.Errorf("framekit: create depth buffer %d: %w", i, err)
		}
		t.depthState = hw.StateDepthWrite
		if t.dsv, err = d.writeView(hw.ViewDesc{Kind: hw.ViewDepthStencil, Texture: t.depth}); err != nil {
			return err
		}
	}
	return nil
}

// destroyTargets releases the per-slot targets immediately. The GPU must be
// idle.
func (d *Device) destroyTargets() {
	for _, t := range d.targets {
		t.stale = true
		if err := d.mem.ReleaseDescriptorNow(t.rtv); err != nil {
			Logger().Warn("framekit: release render target view", "slot", t.index, "err", err)
		}
		if err := d.mem.ReleaseDescriptorNow(t.dsv); err != nil {
			Logger().Warn("framekit: release depth stencil view", "slot", t.index, "err", err)
		}
		if t.depth != nil {
			t.depth.Destroy()
		}
	}
	d.targets = nil
}

// writeView allocates a CPU descriptor and writes view into it.
func (d *Device) writeView(view hw.ViewDesc) (descriptor.Handle, error) {
	h, err := d.mem.AllocateDescriptor(view.DescriptorKind())
	if err != nil {
		return descriptor.Handle{}, fmt.Errorf("framekit: allocate %v descriptor: %w", view.Kind, err)
	}
	if err := d.hw.WriteDescriptor(h.CPU, view); err != nil {
		_ = d.mem.ReleaseDescriptorNow(h)
		return descriptor.Handle{}, fmt.Errorf("framekit: write %v descriptor: %w", view.Kind, err)
	}
	return h, nil
}

// Backend returns the underlying hardware device.
func (d *Device) Backend() hw.Device { return d.hw }

// Config returns the configuration the device was created with.
func (d *Device) Config() Config { return d.cfg }

// Frame returns the current frame counter.
func (d *Device) Frame() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

// Slot returns the index of the current frame slot, Frame() % BufferCount.
func (d *Device) Slot() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slot
}

// State returns the frame state.
func (d *Device) State() FrameState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// usable reports why the device cannot accept work, if it cannot.
// Caller holds d.mu.
func (d *Device) usableLocked() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.lost != nil:
		return d.lost
	}
	return nil
}

// renderableLocked reports why the device has no complete set of render
// targets, if it has none. Caller holds d.mu.
func (d *Device) renderableLocked() error {
	if err := d.usableLocked(); err != nil {
		return err
	}
	if d.broken != nil {
		return fmt.Errorf("%w: render targets missing until a successful resize: %w", ErrInvalidState, d.broken)
	}
	if d.slot >= len(d.targets) {
		return fmt.Errorf("%w: no render target for slot %d", ErrInvalidState, d.slot)
	}
	return nil
}

func (d *Device) usable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usableLocked()
}

// fail records fatal frame-loop errors. Device loss and fence timeouts make
// the device unusable; other errors pass through.
func (d *Device) fail(err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, hw.ErrDeviceLost) && !errors.Is(err, queue.ErrTimeout) {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost == nil {
		if errors.Is(err, hw.ErrDeviceLost) {
			d.lost = err
		} else {
			d.lost = fmt.Errorf("%w: %w", ErrDeviceLost, err)
		}
		Logger().Error("framekit: device lost", "frame", d.frame, "err", err)
	}
	return d.lost
}

// BeginCommandList opens a command list on the queue of the given kind.
// Direct and compute lists start with the current slot's shader-visible
// heaps bound.
func (d *Device) BeginCommandList(kind hw.QueueKind) (*CommandList, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	d.mu.Lock()
	err := d.usableLocked()
	if kind == hw.QueueDirect {
		err = d.renderableLocked()
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	completed, err := d.queues[kind].PollCompleted()
	if err != nil {
		return nil, d.fail(err)
	}
	id, native, err := d.lists[kind].Allocate(completed)
	if err != nil {
		return nil, d.fail(err)
	}

	d.mu.Lock()
	d.open++
	d.state = FrameRecording
	slot := d.slot
	d.mu.Unlock()

	cl := &CommandList{dev: d, kind: kind, id: id, native: native, slot: slot, recording: true}
	if kind != hw.QueueCopy {
		cl.SetDescriptorHeaps()
	}
	return cl, nil
}

// SubmitCommandList closes cl, executes it and returns the ticket that
// covers it. A recording error is returned after the list is recycled;
// nothing is executed in that case.
func (d *Device) SubmitCommandList(cl *CommandList) (uint64, error) {
	if cl == nil || cl.dev != d {
		return 0, fmt.Errorf("framekit: foreign command list: %w", hw.ErrInvalidUsage)
	}
	if !cl.recording {
		return 0, ErrNotRecording
	}
	cl.recording = false
	q := d.queues[cl.kind]
	defer d.closeList()

	err := cl.native.Close()
	if err == nil {
		err = cl.err
	}
	if err != nil {
		// Nothing new reaches the GPU and tracked states stay as they
		// were; the allocator may be reused once everything already
		// issued completes.
		_ = d.lists[cl.kind].Release(q.LastIssued(), cl.id)
		return 0, fmt.Errorf("framekit: record %v list: %w", cl.kind, err)
	}

	ticket, err := q.Execute(cl.native)
	if err != nil {
		_ = d.lists[cl.kind].Release(q.LastIssued(), cl.id)
		return 0, d.fail(err)
	}
	cl.commitStates()
	if err := d.lists[cl.kind].Release(ticket, cl.id); err != nil {
		return ticket, err
	}
	return ticket, nil
}

func (d *Device) closeList() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open--
	if d.open == 0 {
		d.state = FrameSubmitted
	}
}

// GPUWait makes work later submitted to the waiter queue wait until the
// signaler queue reaches ticket. No CPU thread blocks.
func (d *Device) GPUWait(waiter, signaler hw.QueueKind, ticket uint64) error {
	if err := checkKind(waiter); err != nil {
		return err
	}
	if err := checkKind(signaler); err != nil {
		return err
	}
	if err := d.usable(); err != nil {
		return err
	}
	return d.fail(d.queues[waiter].GPUWaitFor(d.queues[signaler], ticket))
}

// QueueTicket returns the last issued and last completed tickets of a queue.
func (d *Device) QueueTicket(kind hw.QueueKind) (issued, completed uint64, err error) {
	if err := checkKind(kind); err != nil {
		return 0, 0, err
	}
	q := d.queues[kind]
	return q.LastIssued(), q.LastCompleted(), nil
}

func checkKind(kind hw.QueueKind) error {
	if int(kind) >= hw.QueueKindCount {
		return fmt.Errorf("framekit: queue kind %v: %w", kind, hw.ErrUnsupported)
	}
	return nil
}

// Present shows the current back buffer and ends the frame. The back
// buffer must have been transitioned back to StatePresent.
//
// The direct queue first waits on the GPU for the last work issued to the
// other queues, so the frame ticket covers the whole frame. Present then
// blocks until the frame that last used the next slot has completed,
// resets that slot's shader-visible heaps, and reclaims memory released
// long enough ago.
func (d *Device) Present() error {
	d.mu.Lock()
	if err := d.renderableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.open > 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: present with %d command lists recording", ErrInvalidState, d.open)
	}
	if t := d.targets[d.slot]; t.state != hw.StatePresent {
		d.mu.Unlock()
		return fmt.Errorf("%w: back buffer %d is in state %v, not Present", ErrInvalidState, t.index, t.state)
	}
	d.mu.Unlock()

	direct := d.queues[hw.QueueDirect]
	for _, kind := range []hw.QueueKind{hw.QueueCompute, hw.QueueCopy} {
		q := d.queues[kind]
		if t := q.LastIssued(); t > q.LastCompleted() {
			if err := direct.GPUWaitFor(q, t); err != nil {
				return d.fail(err)
			}
		}
	}

	if err := d.swap.Present(d.cfg.VSyncInterval); err != nil {
		return d.fail(fmt.Errorf("framekit: present: %w", err))
	}
	ticket, err := direct.Signal()
	if err != nil {
		return d.fail(err)
	}
	d.mem.Upload().FinishFrame(ticket)

	d.mu.Lock()
	d.slotTickets[d.slot] = ticket
	d.frame++
	d.slot = int(d.frame % uint64(d.cfg.BufferCount))
	d.state = FramePresented
	frame, slot := d.frame, d.slot
	wait := d.slotTickets[slot]
	d.mu.Unlock()

	// Back-pressure: the slot about to be reused was last used BufferCount
	// frames ago.
	if err := direct.CPUWaitFor(wait); err != nil {
		return d.fail(err)
	}
	completed, err := direct.PollCompleted()
	if err != nil {
		return d.fail(err)
	}
	d.mem.ResetSlot(slot)
	d.mem.FreeMemory(frame, completed)

	d.mu.Lock()
	d.state = FrameIdle
	d.mu.Unlock()
	return nil
}

// WaitForGPU blocks until every queue has finished all issued work.
func (d *Device) WaitForGPU() error {
	if err := d.usable(); err != nil {
		return err
	}
	for _, q := range d.queues {
		if err := q.WaitIdle(); err != nil {
			return d.fail(err)
		}
	}
	return nil
}

// Resize drains the GPU, recreates the swap chain buffers at the new size
// and rebuilds the per-slot targets. BackBuffer and DepthBuffer values from
// before the resize become stale.
//
// A zero width or height, as reported for a minimised window, is rejected
// and the current targets stay in place. If the rebuild fails, command
// lists and Present return ErrInvalidState until a later Resize succeeds.
func (d *Device) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("framekit: resize to %dx%d: %w", width, height, hw.ErrInvalidUsage)
	}
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if open > 0 {
		return fmt.Errorf("%w: resize with %d command lists recording", ErrInvalidState, open)
	}
	if err := d.WaitForGPU(); err != nil {
		return err
	}

	d.destroyTargets()
	d.mem.Flush()
	err := d.swap.Resize(width, height)
	if err != nil {
		err = fmt.Errorf("framekit: resize swap chain: %w", err)
	} else {
		d.surface.Width, d.surface.Height = width, height
		if err = d.createTargets(); err != nil {
			d.destroyTargets()
		}
	}
	d.mu.Lock()
	d.broken = err
	d.mu.Unlock()
	if err != nil {
		Logger().Error("framekit: resize failed", "width", width, "height", height, "err", err)
		return d.fail(err)
	}
	Logger().Info("framekit: resized", "width", width, "height", height, "frame", d.Frame())
	return nil
}

// Size returns the current surface size.
func (d *Device) Size() (width, height uint32) {
	return d.surface.Width, d.surface.Height
}

// Close waits for the GPU, destroys every remaining object and closes the
// device. Objects not released by the caller are destroyed too. The hw
// device itself is left to the caller.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	lost := d.lost
	d.mu.Unlock()

	var err error
	if lost == nil {
		err = d.WaitForGPU()
	}
	d.teardown()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	Logger().Info("framekit: device closed", "frames", d.Frame())
	return err
}

// teardown destroys everything in reverse creation order. It tolerates a
// partially initialized device.
func (d *Device) teardown() {
	if d.mem != nil {
		d.destroyTargets()
	}
	if d.swap != nil {
		d.swap.Destroy()
		d.swap = nil
	}
	if d.samplers != nil {
		d.samplers.Purge()
	}
	if d.mem != nil {
		d.mem.Shutdown()
	}
	for k := range d.lists {
		if d.lists[k] != nil {
			d.lists[k].Shutdown()
		}
		if d.queues[k] != nil {
			d.queues[k].Destroy()
		}
	}
}

// QueueStats are the ticket counters of one queue.
type QueueStats struct {
	Issued, Completed uint64
	Lists, Allocators int
}

// Stats is a snapshot of the device.
type Stats struct {
	Frame  uint64
	Slot   int
	State  FrameState
	Queues [hw.QueueKindCount]QueueStats
	Memory memory.Stats
	Cache  cache.Stats
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	s := Stats{Frame: d.frame, Slot: d.slot, State: d.state}
	d.mu.Unlock()
	for k, q := range d.queues {
		s.Queues[k] = QueueStats{
			Issued:     q.LastIssued(),
			Completed:  q.LastCompleted(),
			Lists:      d.lists[k].Len(),
			Allocators: d.lists[k].Pool().Size(),
		}
	}
	s.Memory = d.mem.Stats()
	s.Cache = d.samplers.Stats()
	return s
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d (slot %d, %v)\n", s.Frame, s.Slot, s.State)
	for k, q := range s.Queues {
		fmt.Fprintf(&b, "  %-8v tickets %d/%d, %d lists, %d allocators\n", hw.QueueKind(k),
			q.Completed, q.Issued, q.Lists, q.Allocators)
	}
	fmt.Fprintf(&b, "  samplers %s\n", s.Cache)
	b.WriteString(s.Memory.String())
	return b.String()
}
