package halgpu

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framekit/hw"
)

const testShader = `
@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

// newNoopDevice wraps a hal noop device.
func newNoopDevice(t *testing.T, opts Options) *Device {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d := New(open.Device, open.Queue, opts)
	t.Cleanup(func() {
		d.Destroy()
		open.Device.Destroy()
		instance.Destroy()
	})
	return d
}

func newList(t *testing.T, d *Device, kind hw.QueueKind) (*CommandList, *Allocator) {
	t.Helper()
	alloc, err := d.CreateRecordingAllocator(kind)
	if err != nil {
		t.Fatalf("CreateRecordingAllocator() error = %v", err)
	}
	list, err := d.CreateCommandList(kind, alloc)
	if err != nil {
		t.Fatalf("CreateCommandList() error = %v", err)
	}
	return list.(*CommandList), alloc.(*Allocator)
}

func newBuffer(t *testing.T, d *Device, desc hw.BufferDesc) *Buffer {
	t.Helper()
	b, err := d.CreateBuffer(desc)
	if err != nil {
		t.Fatalf("CreateBuffer(%q) error = %v", desc.Label, err)
	}
	t.Cleanup(b.Destroy)
	return b.(*Buffer)
}

// renderTarget creates a texture and writes its view into a fresh heap.
func renderTarget(t *testing.T, d *Device, format hw.Format, kind hw.ViewKind) (*Texture, hw.CPUAddress) {
	t.Helper()
	bind := hw.BindRenderTarget
	if kind == hw.ViewDepthStencil {
		bind = hw.BindDepthStencil
	}
	tex, err := d.CreateTexture(hw.TextureDesc{Label: "target", Width: 64, Height: 32, Format: format, Bind: bind})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	t.Cleanup(tex.Destroy)
	heap, err := d.CreateDescriptorHeap(hw.DescriptorHeapDesc{Kind: kind.DescriptorKind(), Count: 1})
	if err != nil {
		t.Fatalf("CreateDescriptorHeap() error = %v", err)
	}
	t.Cleanup(heap.Destroy)
	if err := d.WriteDescriptor(heap.CPUStart(), hw.ViewDesc{Kind: kind, Texture: tex}); err != nil {
		t.Fatalf("WriteDescriptor() error = %v", err)
	}
	return tex.(*Texture), heap.CPUStart()
}

func TestOpenQueueSharesKinds(t *testing.T) {
	d := newNoopDevice(t, Options{})

	for _, kind := range []hw.QueueKind{hw.QueueDirect, hw.QueueCompute, hw.QueueCopy} {
		q1, err := d.OpenQueue(kind)
		if err != nil {
			t.Fatalf("OpenQueue(%v) error = %v", kind, err)
		}
		q2, _ := d.OpenQueue(kind)
		if q1 != q2 {
			t.Errorf("OpenQueue(%v) returned different queues", kind)
		}
		if q1.Kind() != kind {
			t.Errorf("Kind() = %v, want %v", q1.Kind(), kind)
		}
	}
	if _, err := d.OpenQueue(hw.QueueKind(7)); !errors.Is(err, hw.ErrUnsupported) {
		t.Errorf("OpenQueue(7) error = %v, want ErrUnsupported", err)
	}
	if d.Name() != "halgpu" {
		t.Errorf("Name() = %q, want halgpu", d.Name())
	}
}

func TestFenceSignalAndWait(t *testing.T) {
	d := newNoopDevice(t, Options{})
	q, _ := d.OpenQueue(hw.QueueDirect)
	f, err := d.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	defer f.Destroy()

	if v, err := f.Completed(); err != nil || v != 0 {
		t.Fatalf("Completed() = %d, %v before signaling, want 0", v, err)
	}
	if err := q.Signal(f, 3); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	ok, err := f.Wait(3, time.Second)
	if err != nil || !ok {
		t.Fatalf("Wait(3) = %v, %v, want true", ok, err)
	}
	if v, _ := f.Completed(); v != 3 {
		t.Errorf("Completed() = %d, want 3", v)
	}
	// Values at or below the completed one return without a hal wait.
	if ok, _ := f.Wait(2, 0); !ok {
		t.Error("Wait(2) after reaching 3 = false")
	}
	if err := q.Wait(f, 3); err != nil {
		t.Errorf("Queue.Wait() error = %v", err)
	}
}

func TestBufferMapping(t *testing.T) {
	d := newNoopDevice(t, Options{})

	tests := []struct {
		name    string
		heap    hw.HeapKind
		wantErr error
	}{
		{"upload", hw.HeapUpload, nil},
		{"readback", hw.HeapReadback, nil},
		{"default", hw.HeapDefault, hw.ErrNotMappable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuffer(t, d, hw.BufferDesc{Label: tt.name, Size: 10, Heap: tt.heap})
			data, err := b.Map()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Map() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Map() error = %v", err)
			}
			if len(data) != 10 {
				t.Errorf("len(Map()) = %d, want 10", len(data))
			}
			copy(data, "framekit")
			b.Unmap(1, 7)
		})
	}
}

func TestBufferAddresses(t *testing.T) {
	d := newNoopDevice(t, Options{})
	a := newBuffer(t, d, hw.BufferDesc{Label: "a", Size: 256})
	b := newBuffer(t, d, hw.BufferDesc{Label: "b", Size: 256})

	if a.GPUAddress() == 0 || a.GPUAddress() == b.GPUAddress() {
		t.Fatalf("addresses a=%#x b=%#x, want distinct non-zero", a.GPUAddress(), b.GPUAddress())
	}
	res, off, ok := d.addresses.Resolve(b.GPUAddress() + 16)
	if !ok || res != hw.Buffer(b) || off != 16 {
		t.Errorf("Resolve(b+16) = %v, %d, %v, want b, 16, true", res, off, ok)
	}
	if _, err := d.CreateBuffer(hw.BufferDesc{Label: "empty"}); !errors.Is(err, hw.ErrInvalidUsage) {
		t.Errorf("CreateBuffer(size 0) error = %v, want ErrInvalidUsage", err)
	}
}

func TestTextureCreation(t *testing.T) {
	d := newNoopDevice(t, Options{})

	tests := []struct {
		name    string
		desc    hw.TextureDesc
		wantErr error
	}{
		{"rgba", hw.TextureDesc{Width: 4, Height: 4, Format: hw.FormatRGBA8Unorm, Bind: hw.BindShaderResource}, nil},
		{"depth", hw.TextureDesc{Width: 4, Height: 4, Format: hw.FormatD32Float, Bind: hw.BindDepthStencil}, nil},
		{"zero size", hw.TextureDesc{Width: 0, Height: 4, Format: hw.FormatRGBA8Unorm}, hw.ErrInvalidUsage},
		{"unknown format", hw.TextureDesc{Width: 4, Height: 4, Format: hw.FormatUnknown}, hw.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := d.CreateTexture(tt.desc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateTexture() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateTexture() error = %v", err)
			}
			defer tex.Destroy()
			if tex.Width() != 4 || tex.Format() != tt.desc.Format {
				t.Errorf("texture = %dx%d %v", tex.Width(), tex.Height(), tex.Format())
			}
			if tex.(*Texture).View() == nil {
				t.Error("View() = nil")
			}
		})
	}
}

func TestCopyAndBarrierList(t *testing.T) {
	d := newNoopDevice(t, Options{})
	src := newBuffer(t, d, hw.BufferDesc{Label: "src", Size: 64, Heap: hw.HeapUpload})
	dst := newBuffer(t, d, hw.BufferDesc{Label: "dst", Size: 64})
	tex, rtv := renderTarget(t, d, hw.FormatRGBA8Unorm, hw.ViewRenderTarget)

	list, alloc := newList(t, d, hw.QueueDirect)
	list.ResourceBarrier(hw.Barrier{Resource: dst, Before: hw.StateCommon, After: hw.StateCopyDest})
	list.CopyBufferRegion(dst, 0, src, 0, 30)
	list.ResourceBarrier(hw.Barrier{Resource: tex, Before: hw.StatePresent, After: hw.StateRenderTarget})
	list.ClearRenderTargetView(rtv, [4]float32{0, 0, 0, 1})
	list.ResourceBarrier(hw.Barrier{Resource: tex, Before: hw.StateRenderTarget, After: hw.StatePresent})
	if err := list.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	q, _ := d.OpenQueue(hw.QueueDirect)
	if err := q.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(alloc.buffers) != 1 {
		t.Errorf("allocator holds %d command buffers, want 1", len(alloc.buffers))
	}
	if err := alloc.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if len(alloc.buffers) != 0 {
		t.Errorf("allocator holds %d command buffers after Reset, want 0", len(alloc.buffers))
	}
	if err := list.Reset(alloc); err != nil {
		t.Errorf("list Reset() error = %v", err)
	}
}

func TestCopyTextureRegion(t *testing.T) {
	d := newNoopDevice(t, Options{})
	src := newBuffer(t, d, hw.BufferDesc{Label: "staging", Size: 1024, Heap: hw.HeapUpload})
	tex, err := d.CreateTexture(hw.TextureDesc{Label: "albedo", Width: 4, Height: 2, Format: hw.FormatRGBA8Unorm, Bind: hw.BindShaderResource})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	defer tex.Destroy()

	list, _ := newList(t, d, hw.QueueCopy)
	list.CopyTextureRegion(tex, src, hw.TextureFootprint{
		Offset:   512,
		Width:    4,
		Height:   2,
		RowPitch: hw.RowPitchFor(hw.FormatRGBA8Unorm, 4),
	})
	if err := list.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	q, _ := d.OpenQueue(hw.QueueCopy)
	if err := q.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestRecordingErrors(t *testing.T) {
	d := newNoopDevice(t, Options{})
	a := newBuffer(t, d, hw.BufferDesc{Label: "a", Size: 64})
	b := newBuffer(t, d, hw.BufferDesc{Label: "b", Size: 64})
	tex, _ := renderTarget(t, d, hw.FormatRGBA8Unorm, hw.ViewRenderTarget)

	tests := []struct {
		name   string
		kind   hw.QueueKind
		record func(l hw.CommandList)
	}{
		{"barrier to same state", hw.QueueDirect, func(l hw.CommandList) {
			l.ResourceBarrier(hw.Barrier{Resource: a, Before: hw.StateCopyDest, After: hw.StateCopyDest})
		}},
		{"copy out of bounds", hw.QueueCopy, func(l hw.CommandList) { l.CopyBufferRegion(a, 32, b, 0, 64) }},
		{"unaligned copy", hw.QueueCopy, func(l hw.CommandList) { l.CopyBufferRegion(a, 2, b, 0, 8) }},
		{"draw on copy list", hw.QueueCopy, func(l hw.CommandList) { l.DrawInstanced(3, 1, 0, 0) }},
		{"unaligned row pitch", hw.QueueCopy, func(l hw.CommandList) {
			l.CopyTextureRegion(tex, b, hw.TextureFootprint{Width: 4, Height: 1, RowPitch: 16})
		}},
		{"texture copy past the buffer", hw.QueueCopy, func(l hw.CommandList) {
			l.CopyTextureRegion(tex, b, hw.TextureFootprint{Width: 4, Height: 2, RowPitch: 256})
		}},
		{"draw without pipeline", hw.QueueDirect, func(l hw.CommandList) { l.DrawInstanced(3, 1, 0, 0) }},
		{"inverted scissor", hw.QueueDirect, func(l hw.CommandList) {
			l.SetScissorRects(hw.Rect{Left: 10, Right: 5, Bottom: 10})
		}},
		{"unmapped vertex buffer", hw.QueueDirect, func(l hw.CommandList) {
			l.SetVertexBuffers(0, hw.VertexBufferView{Address: 0x10})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, _ := newList(t, d, tt.kind)
			tt.record(list)
			if err := list.Close(); !errors.Is(err, hw.ErrInvalidUsage) {
				t.Errorf("Close() error = %v, want ErrInvalidUsage", err)
			}
		})
	}
}

func TestExecuteChecks(t *testing.T) {
	d := newNoopDevice(t, Options{})
	direct, _ := newList(t, d, hw.QueueDirect)
	copyQ, _ := d.OpenQueue(hw.QueueCopy)

	if err := copyQ.Execute(direct); !errors.Is(err, hw.ErrInvalidUsage) {
		t.Errorf("Execute(open list) error = %v, want ErrInvalidUsage", err)
	}
	if err := direct.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := copyQ.Execute(direct); !errors.Is(err, hw.ErrInvalidUsage) {
		t.Errorf("Execute(direct list on copy queue) error = %v, want ErrInvalidUsage", err)
	}
	directQ, _ := d.OpenQueue(hw.QueueDirect)
	if err := directQ.Execute(direct); err != nil {
		t.Errorf("Execute(direct list on direct queue) error = %v", err)
	}
}

func TestClearDepth(t *testing.T) {
	d := newNoopDevice(t, Options{})

	for _, format := range []hw.Format{hw.FormatD32Float, hw.FormatD24UnormS8Uint} {
		t.Run(format.String(), func(t *testing.T) {
			_, dsv := renderTarget(t, d, format, hw.ViewDepthStencil)
			list, _ := newList(t, d, hw.QueueDirect)
			list.ClearDepthStencilView(dsv, 1, 0)
			if err := list.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestRootSignature(t *testing.T) {
	d := newNoopDevice(t, Options{})

	rs, err := d.CreateRootSignature(hw.RootSignatureDesc{
		Label: "root",
		Parameters: []hw.RootParameter{
			hw.DescriptorTable{Ranges: []hw.DescriptorRange{
				{Kind: hw.RangeShaderResource, Count: 2, Offset: hw.RangeOffsetAppend},
				{Kind: hw.RangeConstantBuffer, Count: 1, Offset: hw.RangeOffsetAppend},
			}},
			hw.RootConstants{Count: 4},
			hw.InlineDescriptor{Kind: hw.InlineConstantBuffer},
		},
		StaticSamplers: []hw.StaticSampler{{Sampler: hw.DefaultSampler(), Register: 0}},
	})
	if err != nil {
		t.Fatalf("CreateRootSignature() error = %v", err)
	}
	defer rs.Destroy()

	root := rs.(*RootSignature)
	if len(root.groups) != 4 {
		t.Errorf("bind group layouts = %d, want 4", len(root.groups))
	}
	if root.tables[0].size != 3 {
		t.Errorf("table size = %d, want 3", root.tables[0].size)
	}
	if _, ok := root.fixed[1]; !ok {
		t.Error("root constants have no fixed group")
	}
	if _, ok := root.fixed[3]; !ok {
		t.Error("static samplers have no fixed group")
	}
	if len(d.samplers) != 1 {
		t.Errorf("cached samplers = %d, want 1", len(d.samplers))
	}

	_, err = d.CreateRootSignature(hw.RootSignatureDesc{
		Parameters: []hw.RootParameter{hw.DescriptorTable{}},
	})
	if !errors.Is(err, hw.ErrEmptyTable) {
		t.Errorf("CreateRootSignature(empty table) error = %v, want ErrEmptyTable", err)
	}
}

func TestSamplerCache(t *testing.T) {
	d := newNoopDevice(t, Options{})

	s1, err := d.sampler(hw.DefaultSampler())
	if err != nil {
		t.Fatalf("sampler() error = %v", err)
	}
	s2, _ := d.sampler(hw.DefaultSampler())
	if s1 != s2 {
		t.Error("sampler() created a second sampler for the same desc")
	}
	point := hw.DefaultSampler()
	point.Filter = hw.FilterPoint
	if _, err := d.sampler(point); err != nil {
		t.Fatalf("sampler(point) error = %v", err)
	}
	if len(d.samplers) != 2 {
		t.Errorf("cached samplers = %d, want 2", len(d.samplers))
	}
}

func TestPipelineDraw(t *testing.T) {
	d := newNoopDevice(t, Options{})

	rs, err := d.CreateRootSignature(hw.RootSignatureDesc{
		Label:      "draw",
		Parameters: []hw.RootParameter{hw.InlineDescriptor{Kind: hw.InlineConstantBuffer}},
	})
	if err != nil {
		t.Fatalf("CreateRootSignature() error = %v", err)
	}
	defer rs.Destroy()
	p, err := d.CreatePipeline(hw.PipelineDesc{
		Label:         "triangle",
		RootSignature: rs,
		Shader:        hw.ShaderSource{WGSL: testShader},
		InputLayout:   []hw.VertexElement{{Semantic: "POSITION", Format: hw.FormatRG32Float}},
		VertexStride:  8,
		Topology:      hw.TopologyTriangleList,
		RenderTargets: []hw.Format{hw.FormatRGBA8Unorm},
	})
	if err != nil {
		t.Fatalf("CreatePipeline() error = %v", err)
	}
	defer p.Destroy()

	vb := newBuffer(t, d, hw.BufferDesc{Label: "vertices", Size: 24, Bind: hw.BindVertexBuffer})
	cb := newBuffer(t, d, hw.BufferDesc{Label: "constants", Size: 256, Bind: hw.BindConstantBuffer})
	_, rtv := renderTarget(t, d, hw.FormatRGBA8Unorm, hw.ViewRenderTarget)

	list, alloc := newList(t, d, hw.QueueDirect)
	list.SetGraphicsRootSignature(rs)
	list.SetPipeline(p)
	list.SetGraphicsRootConstantBufferView(0, cb.GPUAddress())
	list.SetRenderTargets([]hw.CPUAddress{rtv}, 0)
	list.SetViewports(hw.Viewport{Width: 64, Height: 32, MaxDepth: 1})
	list.SetScissorRects(hw.Rect{Right: 64, Bottom: 32})
	list.SetVertexBuffers(0, hw.VertexBufferView{Address: vb.GPUAddress(), Size: 24, Stride: 8})
	list.DrawInstanced(3, 1, 0, 0)
	list.DrawInstanced(3, 1, 0, 0)
	if err := list.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Both draws share the bind group of the unchanged root argument.
	if len(alloc.groups) != 1 {
		t.Errorf("allocator holds %d bind groups, want 1", len(alloc.groups))
	}

	indexed, _ := newList(t, d, hw.QueueDirect)
	indexed.SetGraphicsRootSignature(rs)
	indexed.SetPipeline(p)
	indexed.SetRenderTargets([]hw.CPUAddress{rtv}, 0)
	indexed.DrawIndexedInstanced(3, 1, 0, 0, 0)
	if err := indexed.Close(); !errors.Is(err, hw.ErrInvalidUsage) {
		t.Errorf("Close() of indexed draw without index buffer error = %v, want ErrInvalidUsage", err)
	}
}

func TestCompileSPIRV(t *testing.T) {
	words, err := compileSPIRV(testShader)
	if err != nil {
		t.Fatalf("compileSPIRV() error = %v", err)
	}
	if len(words) == 0 {
		t.Fatal("compileSPIRV() returned no words")
	}
	if words[0] != spirvMagic {
		t.Errorf("first word = %#x, want SPIR-V magic %#x", words[0], spirvMagic)
	}
	if _, err := compileSPIRV("fn broken("); err == nil {
		t.Error("compileSPIRV(invalid) error = nil")
	}
}

func TestSwapChain(t *testing.T) {
	d := newNoopDevice(t, Options{})

	if _, err := d.CreateSwapChain(hw.SwapChainDesc{
		Surface: hw.SurfaceDesc{Window: 1, Width: 8, Height: 8}, BufferCount: 2, Format: hw.FormatRGBA8Unorm,
	}); !errors.Is(err, hw.ErrUnsupported) {
		t.Errorf("CreateSwapChain(window) error = %v, want ErrUnsupported", err)
	}

	sc, err := d.CreateSwapChain(hw.SwapChainDesc{
		Surface: hw.SurfaceDesc{Width: 8, Height: 8}, BufferCount: 3, Format: hw.FormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateSwapChain() error = %v", err)
	}
	defer sc.Destroy()

	if sc.BufferCount() != 3 {
		t.Fatalf("BufferCount() = %d, want 3", sc.BufferCount())
	}
	for i := range 4 {
		if err := sc.Present(1); err != nil {
			t.Fatalf("Present() error = %v", err)
		}
		if got, want := sc.(*SwapChain).Current(), (i+1)%3; got != want {
			t.Errorf("Current() after %d presents = %d, want %d", i+1, got, want)
		}
	}

	if err := sc.Resize(16, 4); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	buf, err := sc.Buffer(2)
	if err != nil {
		t.Fatalf("Buffer(2) error = %v", err)
	}
	if buf.Width() != 16 || buf.Height() != 4 {
		t.Errorf("buffer size after Resize = %dx%d, want 16x4", buf.Width(), buf.Height())
	}
	// Owned buffers ignore Destroy; the chain releases them.
	buf.Destroy()
	if _, err := sc.Buffer(3); !errors.Is(err, hw.ErrInvalidUsage) {
		t.Errorf("Buffer(3) error = %v, want ErrInvalidUsage", err)
	}
}

func TestSwapChainUsesSurfaceFormat(t *testing.T) {
	d := newNoopDevice(t, Options{SurfaceFormat: gputypes.TextureFormatBGRA8Unorm})

	sc, err := d.CreateSwapChain(hw.SwapChainDesc{
		Surface: hw.SurfaceDesc{Width: 8, Height: 8}, BufferCount: 2, Format: hw.FormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateSwapChain() error = %v", err)
	}
	defer sc.Destroy()
	buf, _ := sc.Buffer(0)
	if buf.Format() != hw.FormatBGRA8Unorm {
		t.Errorf("Format() = %v, want BGRA8Unorm", buf.Format())
	}
}

type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider.
type mockProvider struct {
	format gputypes.TextureFormat
}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return m.format }

// halProvider also exposes hal types, as gogpu does.
type halProvider struct {
	mockProvider
	device hal.Device
	queue  hal.Queue
}

func (p *halProvider) HalDevice() any { return p.device }
func (p *halProvider) HalQueue() any  { return p.queue }

func TestFromProvider(t *testing.T) {
	host := newNoopDevice(t, Options{})

	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		wantErr  error
	}{
		{"hal provider", &halProvider{
			mockProvider: mockProvider{format: gputypes.TextureFormatBGRA8Unorm},
			device:       host.Hal(),
			queue:        host.queue,
		}, nil},
		{"plain provider", &mockProvider{}, ErrNotHalProvider},
		{"nil hal device", &halProvider{queue: host.queue}, ErrNotHalProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := FromProvider(tt.provider)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FromProvider() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromProvider() error = %v", err)
			}
			defer d.Destroy()
			if d.SurfaceFormat() != hw.FormatBGRA8Unorm {
				t.Errorf("SurfaceFormat() = %v, want BGRA8Unorm", d.SurfaceFormat())
			}
			if d.Hal() != host.Hal() {
				t.Error("FromProvider() did not share the host device")
			}
		})
	}
}
