// Package memory brokers the lifetime of GPU objects.
//
// Every logical release is queued with the frame in which it happened and
// physically performed only once the frame is old enough that no command
// list still in flight can reference the object. The handler also owns the
// descriptor allocators, the per-slot shader-visible heaps and the upload
// ring, so one place decides when each byte and slot may be reused.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/descriptor"
	"github.com/gogpu/framekit/internal/logging"
	"github.com/gogpu/framekit/internal/retire"
	"github.com/gogpu/framekit/internal/ring"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("memory: handler is shut down")

// IDs of tracked objects.
type (
	ResourceID      = retire.ID[hw.Resource]
	PipelineID      = retire.ID[hw.Pipeline]
	RootSignatureID = retire.ID[hw.RootSignature]
)

// Config sizes the handler's pools.
type Config struct {
	// BufferCount is the number of frames in flight. Must be >= 1.
	BufferCount int

	// CPUHeapSize is the per-heap slot count of each CPU descriptor
	// allocator, indexed by hw.DescriptorKind.
	CPUHeapSize [hw.DescriptorKindCount]uint32

	// ShaderResourceHeapSize and ShaderSamplerHeapSize are split evenly
	// between frame slots.
	ShaderResourceHeapSize uint32
	ShaderSamplerHeapSize  uint32

	// UploadRingSize is the upload ring capacity in bytes.
	UploadRingSize uint64
}

// SlotHeaps are the shader-visible heaps of one frame slot.
type SlotHeaps struct {
	Resource *descriptor.Heap
	Sampler  *descriptor.Heap
}

type descQueue struct {
	mu    sync.Mutex
	queue retire.Queue[descriptor.Handle]
}

// Handler defers destruction of GPU objects until the GPU is done with
// them.
//
// Destroy queues, descriptor allocators and trackers each hold their own
// lock. Shader-visible heaps and the upload ring are single-writer and
// belong to the submission goroutine.
type Handler struct {
	dev         hw.Device
	bufferCount uint64
	frame       atomic.Uint64

	resources tracker[hw.Resource]
	pipelines tracker[hw.Pipeline]
	roots     tracker[hw.RootSignature]

	cpu   [hw.DescriptorKindCount]*descriptor.Allocator
	descQ [hw.DescriptorKindCount]descQueue

	slots  []SlotHeaps
	upload *ring.Upload

	reclaimed atomic.Uint64
	closed    atomic.Bool
}

// NewHandler creates the allocators, per-slot heaps and upload ring.
func NewHandler(dev hw.Device, cfg Config) (*Handler, error) {
	if cfg.BufferCount < 1 {
		return nil, fmt.Errorf("memory: buffer count %d", cfg.BufferCount)
	}
	h := &Handler{dev: dev, bufferCount: uint64(cfg.BufferCount)}

	for k := range h.cpu {
		alloc, err := descriptor.NewAllocator(dev, hw.DescriptorKind(k), cfg.CPUHeapSize[k])
		if err != nil {
			h.Shutdown()
			return nil, err
		}
		h.cpu[k] = alloc
	}

	resPerSlot := max(cfg.ShaderResourceHeapSize/uint32(cfg.BufferCount), 1)
	smpPerSlot := max(cfg.ShaderSamplerHeapSize/uint32(cfg.BufferCount), 1)
	for i := range cfg.BufferCount {
		res, err := descriptor.NewHeap(dev, hw.DescriptorResource, resPerSlot,
			fmt.Sprintf("slot %d resource heap", i))
		if err != nil {
			h.Shutdown()
			return nil, err
		}
		smp, err := descriptor.NewHeap(dev, hw.DescriptorSampler, smpPerSlot,
			fmt.Sprintf("slot %d sampler heap", i))
		if err != nil {
			res.Destroy()
			h.Shutdown()
			return nil, err
		}
		h.slots = append(h.slots, SlotHeaps{Resource: res, Sampler: smp})
	}

	upload, err := ring.NewUpload(dev, cfg.UploadRingSize)
	if err != nil {
		h.Shutdown()
		return nil, err
	}
	h.upload = upload
	return h, nil
}

// BufferCount returns the number of frames in flight.
func (h *Handler) BufferCount() int { return int(h.bufferCount) }

// Frame returns the frame that releases are currently tagged with.
func (h *Handler) Frame() uint64 { return h.frame.Load() }

// === Tracked objects ===

// TrackResource takes ownership of r.
func (h *Handler) TrackResource(r hw.Resource) ResourceID { return h.resources.track(r) }

// Resource returns the live resource for id.
func (h *Handler) Resource(id ResourceID) (hw.Resource, error) { return h.resources.get(id) }

// ReleaseResource schedules id for destruction after the current frame
// retires. Releasing twice is an error.
func (h *Handler) ReleaseResource(id ResourceID) error {
	if err := h.resources.release(id, h.frame.Load()); err != nil {
		return fmt.Errorf("memory: release resource: %w", err)
	}
	return nil
}

// TrackPipeline takes ownership of p.
func (h *Handler) TrackPipeline(p hw.Pipeline) PipelineID { return h.pipelines.track(p) }

// Pipeline returns the live pipeline for id.
func (h *Handler) Pipeline(id PipelineID) (hw.Pipeline, error) { return h.pipelines.get(id) }

// ReleasePipeline schedules id for destruction.
func (h *Handler) ReleasePipeline(id PipelineID) error {
	if err := h.pipelines.release(id, h.frame.Load()); err != nil {
		return fmt.Errorf("memory: release pipeline: %w", err)
	}
	return nil
}

// TrackRootSignature takes ownership of rs.
func (h *Handler) TrackRootSignature(rs hw.RootSignature) RootSignatureID {
	return h.roots.track(rs)
}

// RootSignature returns the live root signature for id.
func (h *Handler) RootSignature(id RootSignatureID) (hw.RootSignature, error) {
	return h.roots.get(id)
}

// ReleaseRootSignature schedules id for destruction.
func (h *Handler) ReleaseRootSignature(id RootSignatureID) error {
	if err := h.roots.release(id, h.frame.Load()); err != nil {
		return fmt.Errorf("memory: release root signature: %w", err)
	}
	return nil
}

// === Descriptors ===

// AllocateDescriptor returns a CPU-only slot of the given kind.
func (h *Handler) AllocateDescriptor(kind hw.DescriptorKind) (descriptor.Handle, error) {
	if h.closed.Load() {
		return descriptor.Handle{}, ErrClosed
	}
	return h.cpu[kind].Allocate()
}

// ReleaseDescriptor schedules a CPU slot for reuse after the current frame
// retires. Zero handles are ignored.
func (h *Handler) ReleaseDescriptor(d descriptor.Handle) {
	if !d.IsValid() {
		return
	}
	q := &h.descQ[d.Kind]
	q.mu.Lock()
	q.queue.Push(d, h.frame.Load())
	q.mu.Unlock()
}

// ReleaseDescriptorNow returns a slot immediately. The GPU must be idle.
func (h *Handler) ReleaseDescriptorNow(d descriptor.Handle) error {
	if !d.IsValid() {
		return nil
	}
	return h.cpu[d.Kind].Release(d)
}

// Allocator returns the CPU allocator of the given kind.
func (h *Handler) Allocator(kind hw.DescriptorKind) *descriptor.Allocator { return h.cpu[kind] }

// SlotHeaps returns the shader-visible heaps of frame slot i.
func (h *Handler) SlotHeaps(i int) SlotHeaps { return h.slots[i] }

// ResetSlot rewinds the heaps of slot i. The slot's last ticket must have
// completed.
func (h *Handler) ResetSlot(i int) {
	h.slots[i].Resource.Reset()
	h.slots[i].Sampler.Reset()
}

// Upload returns the upload ring.
func (h *Handler) Upload() *ring.Upload { return h.upload }

// === Reclamation ===

// FreeMemory advances the release frame to frame, destroys every queued
// object released before frame-BufferCount, and reclaims upload ring frames
// whose ticket is <= completed. It returns the number of objects and
// descriptors reclaimed.
func (h *Handler) FreeMemory(frame, completed uint64) int {
	h.frame.Store(frame)
	b := h.bufferCount

	n := h.resources.collect(frame, b)
	n += h.pipelines.collect(frame, b)
	n += h.roots.collect(frame, b)
	for k := range h.descQ {
		n += h.collectDescriptors(hw.DescriptorKind(k), func(q *retire.Queue[descriptor.Handle], free func(descriptor.Handle)) int {
			return q.Collect(frame, b, free)
		})
	}
	freed := h.upload.ReleaseCompletedFrames(completed)

	if n > 0 || freed > 0 {
		h.reclaimed.Add(uint64(n))
		logging.Logger().Debug("memory: reclaimed", "frame", frame, "objects", n,
			"ring_bytes", freed, "completed", completed)
	}
	return n
}

func (h *Handler) collectDescriptors(kind hw.DescriptorKind,
	walk func(*retire.Queue[descriptor.Handle], func(descriptor.Handle)) int,
) int {
	q := &h.descQ[kind]
	alloc := h.cpu[kind]
	q.mu.Lock()
	defer q.mu.Unlock()
	return walk(&q.queue, func(d descriptor.Handle) {
		if err := alloc.Release(d); err != nil {
			logging.Logger().Warn("memory: descriptor release failed", "handle", d.String(), "err", err)
		}
	})
}

// Flush destroys everything queued regardless of frame and reclaims the
// whole upload ring. Call it only after the GPU is idle.
func (h *Handler) Flush() int {
	n := h.resources.flush()
	n += h.pipelines.flush()
	n += h.roots.flush()
	for k := range h.descQ {
		n += h.collectDescriptors(hw.DescriptorKind(k), func(q *retire.Queue[descriptor.Handle], free func(descriptor.Handle)) int {
			return q.Flush(free)
		})
	}
	if h.upload != nil {
		h.upload.ReleaseCompletedFrames(^uint64(0))
	}
	h.reclaimed.Add(uint64(n))
	return n
}

// Shutdown flushes the queues, destroys objects that were never released
// and releases every pool. The GPU must be idle.
func (h *Handler) Shutdown() {
	if h.closed.Swap(true) {
		return
	}
	h.Flush()
	leaked := h.resources.destroyAll() + h.pipelines.destroyAll() + h.roots.destroyAll()
	if leaked > 0 {
		logging.Logger().Warn("memory: destroyed unreleased objects at shutdown", "count", leaked)
	}
	for _, s := range h.slots {
		s.Resource.Destroy()
		s.Sampler.Destroy()
	}
	h.slots = nil
	for _, a := range h.cpu {
		if a != nil {
			a.Shutdown()
		}
	}
	if h.upload != nil {
		h.upload.Destroy()
		h.upload = nil
	}
}
