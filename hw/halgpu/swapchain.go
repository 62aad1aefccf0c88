package halgpu

import (
	"fmt"

	"github.com/gogpu/framekit/hw"
)

// SwapChain is an offscreen chain of render-target textures. Windowed
// surfaces are presented by the host that owns the hal surface, so
// Present only rotates the current buffer.
type SwapChain struct {
	dev     *Device
	desc    hw.SwapChainDesc
	buffers []*Texture
	current int
}

var _ hw.SwapChain = (*SwapChain)(nil)

// CreateSwapChain creates desc.BufferCount back buffers. The host surface
// format, when known, overrides desc.Format.
func (d *Device) CreateSwapChain(desc hw.SwapChainDesc) (hw.SwapChain, error) {
	if desc.Surface.Window != 0 {
		return nil, fmt.Errorf("halgpu: windowed swap chain: %w", hw.ErrUnsupported)
	}
	if desc.BufferCount < 1 {
		return nil, fmt.Errorf("halgpu: swap chain with %d buffers: %w", desc.BufferCount, hw.ErrInvalidUsage)
	}
	if f := d.SurfaceFormat(); f != hw.FormatUnknown {
		desc.Format = f
	}
	s := &SwapChain{dev: d, desc: desc}
	if err := s.createBuffers(desc.Surface.Width, desc.Surface.Height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SwapChain) createBuffers(width, height uint32) error {
	s.buffers = make([]*Texture, 0, s.desc.BufferCount)
	for i := range s.desc.BufferCount {
		tex, err := s.dev.createTexture(hw.TextureDesc{
			Label:        fmt.Sprintf("swapchain_%d", i),
			Width:        width,
			Height:       height,
			Format:       s.desc.Format,
			Bind:         hw.BindRenderTarget,
			InitialState: hw.StatePresent,
		})
		if err != nil {
			s.destroyBuffers()
			return fmt.Errorf("halgpu: back buffer %d: %w", i, err)
		}
		tex.owner = s
		s.buffers = append(s.buffers, tex)
	}
	s.desc.Surface.Width, s.desc.Surface.Height = width, height
	s.current = 0
	return nil
}

func (s *SwapChain) destroyBuffers() {
	for _, b := range s.buffers {
		b.destroy()
	}
	s.buffers = nil
}

func (s *SwapChain) BufferCount() int { return len(s.buffers) }

func (s *SwapChain) Buffer(i int) (hw.Texture, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("halgpu: back buffer %d of %d: %w", i, len(s.buffers), hw.ErrInvalidUsage)
	}
	return s.buffers[i], nil
}

// Current returns the index of the buffer the next Present shows.
func (s *SwapChain) Current() int { return s.current }

// Present advances to the next back buffer.
func (s *SwapChain) Present(uint32) error {
	if len(s.buffers) == 0 {
		return fmt.Errorf("halgpu: present without back buffers: %w", hw.ErrInvalidUsage)
	}
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

// Resize recreates the back buffers at the new size.
func (s *SwapChain) Resize(width, height uint32) error {
	s.destroyBuffers()
	return s.createBuffers(width, height)
}

func (s *SwapChain) Destroy() { s.destroyBuffers() }
