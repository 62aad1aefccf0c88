package halgpu_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framekit"
	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/halgpu"
)

func openFramekit(t *testing.T, opts ...framekit.DeviceOption) *framekit.Device {
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
	gpu := halgpu.New(open.Device, open.Queue, halgpu.Options{Name: "noop"})

	d, err := framekit.New(gpu, hw.SurfaceDesc{Width: 32, Height: 32}, opts...)
	if err != nil {
		t.Fatalf("framekit.New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		gpu.Destroy()
		open.Device.Destroy()
		instance.Destroy()
	})
	return d
}

func TestFramesOnHal(t *testing.T) {
	d := openFramekit(t, framekit.WithBufferCount(2))

	dst, err := d.CreateBuffer(hw.BufferDesc{Label: "dst", Size: 64, InitialState: hw.StateCopyDest})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	for frame := range 5 {
		view, err := d.AllocateUpload(16, 4)
		if err != nil {
			t.Fatalf("frame %d: AllocateUpload() error = %v", frame, err)
		}
		copy(view.Data(), "frame data here!")

		cl, err := d.BeginCommandList(hw.QueueDirect)
		if err != nil {
			t.Fatalf("frame %d: BeginCommandList() error = %v", frame, err)
		}
		cl.CopyFromUpload(dst, 0, view)
		bb := d.BackBuffer()
		cl.Transition(bb, hw.StateRenderTarget)
		cl.BindRenderTarget(bb, d.DepthBuffer())
		cl.ClearRenderTarget(bb, [4]float32{0.1, 0.2, 0.3, 1})
		cl.ClearDepthStencil(d.DepthBuffer(), 1, 0)
		cl.Transition(bb, hw.StatePresent)
		if _, err := d.SubmitCommandList(cl); err != nil {
			t.Fatalf("frame %d: SubmitCommandList() error = %v", frame, err)
		}
		if err := d.Present(); err != nil {
			t.Fatalf("frame %d: Present() error = %v", frame, err)
		}
	}

	if err := dst.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := d.WaitForGPU(); err != nil {
		t.Fatalf("WaitForGPU() error = %v", err)
	}
	s := d.Stats()
	if s.Frame != 5 {
		t.Errorf("Stats().Frame = %d, want 5", s.Frame)
	}
	if q := s.Queues[hw.QueueDirect]; q.Completed != q.Issued {
		t.Errorf("direct tickets %d/%d after WaitForGPU, want all complete", q.Completed, q.Issued)
	}
}

func TestResizeOnHal(t *testing.T) {
	d := openFramekit(t)
	if err := d.Resize(48, 16); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if w, h := d.Size(); w != 48 || h != 16 {
		t.Errorf("Size() = %dx%d, want 48x16", w, h)
	}
}

func TestTextureUploadOnHal(t *testing.T) {
	d := openFramekit(t)
	tex, err := d.CreateTexture(hw.TextureDesc{
		Label:        "albedo",
		Width:        8,
		Height:       8,
		Format:       hw.FormatRGBA8Unorm,
		Bind:         hw.BindShaderResource,
		InitialState: hw.StateShaderResource,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	cl, err := d.BeginCommandList(hw.QueueCopy)
	if err != nil {
		t.Fatalf("BeginCommandList() error = %v", err)
	}
	if err := tex.SetData(cl, make([]byte, 8*8*4)); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	if _, err := d.SubmitCommandList(cl); err != nil {
		t.Fatalf("SubmitCommandList() error = %v", err)
	}
	if err := d.WaitForGPU(); err != nil {
		t.Fatalf("WaitForGPU() error = %v", err)
	}
}
