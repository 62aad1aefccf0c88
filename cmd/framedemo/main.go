// Command framedemo runs frames through framekit on a chosen backend and
// prints the device counters.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framekit"
	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/halgpu"
	"github.com/gogpu/framekit/hw/sim"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		backend    = flag.String("backend", "sim", "backend: sim, noop or vulkan")
		frames     = flag.Int("frames", 120, "number of frames to run")
		width      = flag.Uint("width", 800, "surface width")
		height     = flag.Uint("height", 600, "surface height")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	framekit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := framekit.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = framekit.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	gpu, cleanup, err := openBackend(*backend)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", *backend, err)
	}
	defer cleanup()

	surface := hw.SurfaceDesc{Width: uint32(*width), Height: uint32(*height)}
	dev, err := framekit.New(gpu, surface, framekit.WithConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to create device: %v", err)
	}

	if err := run(dev, *frames); err != nil {
		_ = dev.Close()
		log.Fatalf("Frame loop failed: %v", err)
	}
	stats := dev.Stats()
	if err := dev.Close(); err != nil {
		log.Fatalf("Failed to close device: %v", err)
	}
	fmt.Println(stats)
}

// openBackend returns the hw device for name and a function releasing it.
func openBackend(name string) (hw.Device, func(), error) {
	switch name {
	case "sim":
		gpu := sim.New(sim.Config{AutoComplete: true})
		return gpu, gpu.Destroy, nil
	case "noop":
		instance, err := noop.API{}.CreateInstance(nil)
		if err != nil {
			return nil, nil, err
		}
		adapters := instance.EnumerateAdapters(nil)
		open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return nil, nil, err
		}
		gpu := halgpu.New(open.Device, open.Queue, halgpu.Options{Name: "halgpu/noop"})
		return gpu, func() {
			gpu.Destroy()
			open.Device.Destroy()
			instance.Destroy()
		}, nil
	case "vulkan":
		gpu, err := halgpu.Open(gputypes.BackendVulkan)
		if err != nil {
			return nil, nil, err
		}
		return gpu, gpu.Destroy, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", name)
}

// uploadChecker fills a size x size texture with a checkerboard on the
// copy queue. Direct work submitted afterwards waits for the copy.
func uploadChecker(dev *framekit.Device, size uint32) (*framekit.Texture, error) {
	tex, err := dev.CreateTexture(hw.TextureDesc{
		Label:        "checker",
		Width:        size,
		Height:       size,
		Format:       hw.FormatRGBA8Unorm,
		Bind:         hw.BindShaderResource,
		InitialState: hw.StateCommon,
	})
	if err != nil {
		return nil, err
	}
	texels := make([]byte, 0, size*size*4)
	for y := range size {
		for x := range size {
			c := byte(0x20)
			if (x/8+y/8)%2 == 0 {
				c = 0xe0
			}
			texels = append(texels, c, c, c, 0xff)
		}
	}

	cl, err := dev.BeginCommandList(hw.QueueCopy)
	if err != nil {
		_ = tex.Release()
		return nil, err
	}
	if err := tex.SetData(cl, texels); err != nil {
		_, _ = dev.SubmitCommandList(cl)
		_ = tex.Release()
		return nil, err
	}
	ticket, err := dev.SubmitCommandList(cl)
	if err != nil {
		_ = tex.Release()
		return nil, err
	}
	if err := dev.GPUWait(hw.QueueDirect, hw.QueueCopy, ticket); err != nil {
		_ = tex.Release()
		return nil, err
	}
	return tex, nil
}

// run uploads a checkerboard texture on the copy queue, then streams a
// small vertex buffer through the upload ring every frame, clears the back
// buffer and recycles a scratch buffer every 30 frames.
func run(dev *framekit.Device, frames int) error {
	checker, err := uploadChecker(dev, 64)
	if err != nil {
		return fmt.Errorf("checker texture: %w", err)
	}
	defer func() { _ = checker.Release() }()

	vertices, err := dev.CreateBuffer(hw.BufferDesc{
		Label:        "vertices",
		Size:         4 << 10,
		Bind:         hw.BindVertexBuffer,
		InitialState: hw.StateCopyDest,
	})
	if err != nil {
		return err
	}
	defer func() { _ = vertices.Release() }()

	var scratch *framekit.Buffer
	for i := range frames {
		if i%30 == 0 {
			if scratch != nil {
				if err := scratch.Release(); err != nil {
					return err
				}
			}
			if scratch, err = dev.CreateBuffer(hw.BufferDesc{Label: "scratch", Size: 64 << 10}); err != nil {
				return err
			}
		}
		if err := frame(dev, vertices, i); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if scratch != nil {
		return scratch.Release()
	}
	return nil
}

func frame(dev *framekit.Device, vertices *framekit.Buffer, n int) error {
	cl, err := dev.BeginCommandList(hw.QueueDirect)
	if err != nil {
		return err
	}
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(n + i)
	}
	cl.Transition(vertices, hw.StateCopyDest)
	if err := vertices.SetData(cl, 0, data); err != nil {
		return err
	}
	cl.Transition(vertices, hw.StateVertexAndConstantBuffer)

	t := float32(n%60) / 60
	bb := dev.BackBuffer()
	cl.Transition(bb, hw.StateRenderTarget)
	cl.BindRenderTarget(bb, dev.DepthBuffer())
	cl.ClearRenderTarget(bb, [4]float32{0.1, 0.2 + 0.5*t, 0.4, 1})
	cl.ClearDepthStencil(dev.DepthBuffer(), 1, 0)
	cl.Transition(bb, hw.StatePresent)
	if _, err := dev.SubmitCommandList(cl); err != nil {
		return err
	}
	return dev.Present()
}
