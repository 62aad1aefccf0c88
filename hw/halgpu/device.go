package halgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/hwutil"
	"github.com/gogpu/framekit/internal/logging"
)

// Errors returned when obtaining a device.
var (
	// ErrNoBackend is returned by Open when the requested hal backend is not
	// compiled in.
	ErrNoBackend = errors.New("halgpu: backend not available")

	// ErrNoAdapter is returned by Open when the instance exposes no adapter.
	ErrNoAdapter = errors.New("halgpu: no GPU adapter found")

	// ErrNotHalProvider is returned by FromProvider when the provider does not
	// expose hal.Device and hal.Queue.
	ErrNotHalProvider = errors.New("halgpu: provider does not expose hal types")
)

// Options tune a Device.
type Options struct {
	// Name is reported by Device.Name.
	Name string

	// SPIRV compiles pipeline WGSL to SPIR-V with naga before module
	// creation. Backends that consume WGSL directly leave it unset.
	SPIRV bool

	// SurfaceFormat is the swap-chain format preferred by the host, or
	// gputypes.TextureFormatUndefined to use the requested format.
	SurfaceFormat gputypes.TextureFormat
}

// Device implements hw.Device on a gogpu/wgpu hal device.
//
// hal exposes a single queue; the three hw queue kinds share it, so
// cross-queue ordering is submission order.
//
// Thread Safety: all methods are safe for concurrent use.
type Device struct {
	hal   hal.Device
	queue hal.Queue
	opts  Options

	// instance is set when the device was opened by Open and is owned.
	instance hal.Instance
	owned    bool

	queues [hw.QueueKindCount]*Queue

	descriptors *hwutil.DescriptorSpace
	addresses   *hwutil.AddressSpace

	mu        sync.Mutex
	samplers  map[hw.SamplerDesc]hal.Sampler
	destroyed bool
}

var _ hw.Device = (*Device)(nil)

// New wraps an existing hal device and queue. The device is not destroyed
// by Device.Destroy.
func New(device hal.Device, queue hal.Queue, opts Options) *Device {
	if opts.Name == "" {
		opts.Name = "halgpu"
	}
	d := &Device{
		hal:         device,
		queue:       queue,
		opts:        opts,
		descriptors: hwutil.NewDescriptorSpace(),
		addresses:   hwutil.NewAddressSpace(),
		samplers:    make(map[hw.SamplerDesc]hal.Sampler),
	}
	for k := range d.queues {
		d.queues[k] = &Queue{dev: d, kind: hw.QueueKind(k)}
	}
	return d
}

// Open creates an instance of the given hal backend, picks a discrete or
// integrated adapter when available and opens a device on it.
func Open(backend gputypes.Backend) (*Device, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}

	d := New(open.Device, open.Queue, Options{
		Name:  "halgpu/" + selected.Info.Name,
		SPIRV: backend == gputypes.BackendVulkan,
	})
	d.instance = instance
	d.owned = true
	logging.Logger().Info("halgpu: device opened", "adapter", selected.Info.Name, "backend", backend)
	return d, nil
}

// FromProvider shares the hal device of a host application. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue, as gogpu does. The host keeps ownership of the device.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHalProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHalProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHalProvider)
	}
	return New(device, queue, Options{
		Name:          "halgpu/provider",
		SurfaceFormat: provider.SurfaceFormat(),
	}), nil
}

// Name returns the backend name.
func (d *Device) Name() string { return d.opts.Name }

// Hal returns the wrapped hal device.
func (d *Device) Hal() hal.Device { return d.hal }

// SurfaceFormat returns the host's preferred swap-chain format as an hw
// format, or hw.FormatUnknown when there is none or it has no hw
// equivalent.
func (d *Device) SurfaceFormat() hw.Format {
	return formatFromHal(d.opts.SurfaceFormat)
}

// OpenQueue returns the queue of the given kind.
func (d *Device) OpenQueue(kind hw.QueueKind) (hw.Queue, error) {
	if int(kind) >= len(d.queues) {
		return nil, fmt.Errorf("halgpu: queue kind %v: %w", kind, hw.ErrUnsupported)
	}
	return d.queues[kind], nil
}

// CreateFence creates a fence.
func (d *Device) CreateFence() (hw.Fence, error) {
	f, err := d.hal.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("halgpu: create fence: %w", err)
	}
	return &Fence{dev: d, hal: f}, nil
}

// CreateDescriptorHeap reserves a synthetic descriptor heap. hal binds
// resources through bind groups, so descriptor contents are resolved when
// a command list is encoded.
func (d *Device) CreateDescriptorHeap(desc hw.DescriptorHeapDesc) (hw.DescriptorHeap, error) {
	return d.descriptors.Reserve(desc)
}

// WriteDescriptor stores view in the descriptor slot at dst.
func (d *Device) WriteDescriptor(dst hw.CPUAddress, view hw.ViewDesc) error {
	return d.descriptors.Write(dst, view)
}

// CopyDescriptors copies count descriptor slots.
func (d *Device) CopyDescriptors(kind hw.DescriptorKind, dst, src hw.CPUAddress, count uint32) error {
	return d.descriptors.Copy(kind, dst, src, count)
}

// sampler returns the cached hal sampler for desc, creating it on first use.
func (d *Device) sampler(desc hw.SamplerDesc) (hal.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers[desc]; ok {
		return s, nil
	}
	s, err := d.hal.CreateSampler(samplerDescriptor(desc))
	if err != nil {
		return nil, fmt.Errorf("halgpu: create sampler: %w", err)
	}
	d.samplers[desc] = s
	return s, nil
}

// Destroy releases cached samplers and, when the device was opened by
// Open, the hal device and instance.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	samplers := d.samplers
	d.samplers = nil
	d.mu.Unlock()

	for _, s := range samplers {
		d.hal.DestroySampler(s)
	}
	if d.owned {
		d.hal.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}
