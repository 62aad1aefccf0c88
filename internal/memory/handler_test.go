package memory

import (
	"errors"
	"testing"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/sim"
	"github.com/gogpu/framekit/internal/retire"
)

func testConfig(bufferCount int) Config {
	return Config{
		BufferCount:            bufferCount,
		CPUHeapSize:            [hw.DescriptorKindCount]uint32{16, 8, 8, 8},
		ShaderResourceHeapSize: 64,
		ShaderSamplerHeapSize:  16,
		UploadRingSize:         4096,
	}
}

func newHandler(t *testing.T, d *sim.Device, bufferCount int) *Handler {
	t.Helper()
	h, err := NewHandler(d, testConfig(bufferCount))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	t.Cleanup(h.Shutdown)
	return h
}

func newBuffer(t *testing.T, d *sim.Device, label string) *sim.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(hw.BufferDesc{Label: label, Size: 64})
	if err != nil {
		t.Fatal(err)
	}
	return b.(*sim.Buffer)
}

func TestFreeMemoryBoundary(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 2)

	a, b, c := newBuffer(t, d, "a"), newBuffer(t, d, "b"), newBuffer(t, d, "c")
	ida, idb, idc := h.TrackResource(a), h.TrackResource(b), h.TrackResource(c)

	h.FreeMemory(5, 0)
	_ = h.ReleaseResource(ida)
	_ = h.ReleaseResource(idb)
	h.FreeMemory(7, 0)
	_ = h.ReleaseResource(idc)

	if n := h.FreeMemory(8, 0); n != 2 {
		t.Errorf("FreeMemory(8) reclaimed %d, want 2", n)
	}
	if !a.Destroyed() || !b.Destroyed() {
		t.Error("frame 5 entries survived FreeMemory(8)")
	}
	if c.Destroyed() {
		t.Error("frame 7 entry destroyed at frame 8: 7+2 < 8 is false")
	}

	if n := h.FreeMemory(9, 0); n != 0 {
		t.Errorf("FreeMemory(9) reclaimed %d, want 0", n)
	}
	if n := h.FreeMemory(10, 0); n != 1 || !c.Destroyed() {
		t.Errorf("FreeMemory(10) reclaimed %d, want the frame 7 entry", n)
	}
	if v := d.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
}

func TestReleaseErrors(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 2)

	id := h.TrackResource(newBuffer(t, d, "buf"))
	if _, err := h.Resource(id); err != nil {
		t.Fatalf("Resource() error = %v", err)
	}
	if err := h.ReleaseResource(id); err != nil {
		t.Fatal(err)
	}
	if err := h.ReleaseResource(id); !errors.Is(err, retire.ErrRetiring) {
		t.Errorf("double ReleaseResource() error = %v, want ErrRetiring", err)
	}
	if _, err := h.Resource(id); err == nil {
		t.Error("Resource() succeeded for a released id")
	}

	h.Flush()
	if err := h.ReleaseResource(id); !errors.Is(err, retire.ErrStaleID) {
		t.Errorf("ReleaseResource() after destroy error = %v, want ErrStaleID", err)
	}
}

func TestDescriptorsReturnAfterRetirement(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 2)

	desc, err := h.AllocateDescriptor(hw.DescriptorRenderTarget)
	if err != nil {
		t.Fatal(err)
	}
	alloc := h.Allocator(hw.DescriptorRenderTarget)
	free := alloc.FreeCount()

	h.ReleaseDescriptor(desc)
	h.FreeMemory(1, 0)
	h.FreeMemory(2, 0)
	if alloc.FreeCount() != free {
		t.Fatalf("descriptor returned at frame 2, released at frame 0 with 2 frames in flight")
	}
	h.FreeMemory(3, 0)
	if alloc.FreeCount() != free+1 {
		t.Errorf("FreeCount() = %d, want %d", alloc.FreeCount(), free+1)
	}
}

func TestReleaseDescriptorNow(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 3)

	desc, _ := h.AllocateDescriptor(hw.DescriptorDepthStencil)
	if err := h.ReleaseDescriptorNow(desc); err != nil {
		t.Fatal(err)
	}
	if got := h.Allocator(hw.DescriptorDepthStencil).InUse(); got != 0 {
		t.Errorf("InUse() = %d, want 0", got)
	}
	if err := h.ReleaseDescriptorNow(desc); err == nil {
		t.Error("second ReleaseDescriptorNow() succeeded")
	}
}

func TestSlotHeapsSplitEvenly(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 2)

	for i := range 2 {
		s := h.SlotHeaps(i)
		if s.Resource.Capacity() != 32 || s.Sampler.Capacity() != 8 {
			t.Errorf("slot %d capacities = %d/%d, want 32/8", i, s.Resource.Capacity(), s.Sampler.Capacity())
		}
	}
	s0 := h.SlotHeaps(0)
	_, _ = s0.Resource.AllocateRange(5)
	h.ResetSlot(0)
	if s0.Resource.Used() != 0 {
		t.Errorf("Used() = %d after ResetSlot", s0.Resource.Used())
	}
}

func TestFreeMemoryReclaimsRing(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 2)

	up := h.Upload()
	if _, err := up.AllocateSpan(1000, 1); err != nil {
		t.Fatal(err)
	}
	up.FinishFrame(7)
	h.FreeMemory(1, 6)
	if up.Used() != 1000 {
		t.Fatalf("ring reclaimed before ticket 7 completed")
	}
	h.FreeMemory(2, 7)
	if up.Used() != 0 {
		t.Errorf("ring Used() = %d after ticket 7, want 0", up.Used())
	}
}

func TestShutdownDestroysEverything(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h, err := NewHandler(d, testConfig(2))
	if err != nil {
		t.Fatal(err)
	}

	leaked := newBuffer(t, d, "leaked")
	h.TrackResource(leaked)
	released := h.TrackResource(newBuffer(t, d, "released"))
	_ = h.ReleaseResource(released)
	_, _ = h.AllocateDescriptor(hw.DescriptorSampler)

	h.Shutdown()
	if !leaked.Destroyed() {
		t.Error("unreleased buffer survived Shutdown")
	}
	live := d.Stats().Live
	if live.Buffers != 0 || live.Heaps != 0 {
		t.Errorf("live after Shutdown: %d buffers, %d heaps", live.Buffers, live.Heaps)
	}
	if _, err := h.AllocateDescriptor(hw.DescriptorResource); !errors.Is(err, ErrClosed) {
		t.Errorf("AllocateDescriptor() after Shutdown error = %v, want ErrClosed", err)
	}
	h.Shutdown()
}

func TestStats(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	h := newHandler(t, d, 2)

	id := h.TrackResource(newBuffer(t, d, "buf"))
	h.TrackResource(newBuffer(t, d, "other"))
	_ = h.ReleaseResource(id)
	_, _ = h.AllocateDescriptor(hw.DescriptorResource)

	s := h.Stats()
	if s.LiveResources != 1 || s.PendingResources != 1 {
		t.Errorf("resources live/pending = %d/%d, want 1/1", s.LiveResources, s.PendingResources)
	}
	if s.DescriptorHeaps[hw.DescriptorResource] != 1 || s.DescriptorsInUse[hw.DescriptorResource] != 1 {
		t.Errorf("resource descriptors = %d heaps, %d in use", s.DescriptorHeaps[hw.DescriptorResource],
			s.DescriptorsInUse[hw.DescriptorResource])
	}
	if s.RingSize != 4096 {
		t.Errorf("RingSize = %d", s.RingSize)
	}
	if s.String() == "" {
		t.Error("String() is empty")
	}
}
