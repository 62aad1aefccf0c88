package framekit

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/queue"
	"github.com/gogpu/framekit/internal/ring"
)

// Config sizes the device's pools and frame pipeline.
type Config struct {
	// BufferCount is the number of frames in flight and swap-chain buffers.
	BufferCount int

	// Slots per backing heap of the CPU descriptor allocators. The
	// allocators grow by whole heaps of this size.
	RTVHeapSize      uint32
	DSVHeapSize      uint32
	SamplerHeapSize  uint32
	ResourceHeapSize uint32

	// Total shader-visible slots, split evenly between frame slots.
	ShaderResourceHeapSize uint32
	ShaderSamplerHeapSize  uint32

	// UploadRingSize is the upload ring capacity in bytes.
	UploadRingSize uint64

	// FenceTimeout bounds every CPU wait. Exceeding it is fatal.
	FenceTimeout time.Duration

	// VSyncInterval is passed to the swap chain on Present.
	VSyncInterval uint32

	// RenderFormat is the swap-chain format; DepthFormat the format of the
	// per-slot depth buffers, or FormatUnknown for none.
	RenderFormat hw.Format
	DepthFormat  hw.Format

	// SamplerCacheSize bounds the number of distinct cached samplers.
	SamplerCacheSize int
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		BufferCount:            2,
		RTVHeapSize:            128,
		DSVHeapSize:            128,
		SamplerHeapSize:        128,
		ResourceHeapSize:       1024,
		ShaderResourceHeapSize: 4096,
		ShaderSamplerHeapSize:  128,
		UploadRingSize:         16 << 20,
		FenceTimeout:           queue.DefaultTimeout,
		VSyncInterval:          1,
		RenderFormat:           hw.FormatRGBA8Unorm,
		DepthFormat:            hw.FormatD24UnormS8Uint,
		SamplerCacheSize:       64,
	}
}

// Validate reports the first field that cannot work.
func (c Config) Validate() error {
	switch {
	case c.BufferCount < 1:
		return fmt.Errorf("%w: buffer count %d, need at least 1", ErrInvalidConfig, c.BufferCount)
	case c.RTVHeapSize == 0 || c.DSVHeapSize == 0 || c.SamplerHeapSize == 0 || c.ResourceHeapSize == 0:
		return fmt.Errorf("%w: descriptor heap sizes must be non-zero", ErrInvalidConfig)
	case c.ShaderResourceHeapSize < uint32(c.BufferCount) || c.ShaderSamplerHeapSize < uint32(c.BufferCount):
		return fmt.Errorf("%w: shader-visible heaps need at least one slot per frame", ErrInvalidConfig)
	case c.UploadRingSize < ring.TextureAlignment:
		return fmt.Errorf("%w: upload ring of %d bytes", ErrInvalidConfig, c.UploadRingSize)
	case c.FenceTimeout <= 0:
		return fmt.Errorf("%w: fence timeout %v", ErrInvalidConfig, c.FenceTimeout)
	case c.RenderFormat == hw.FormatUnknown || c.RenderFormat.IsDepth():
		return fmt.Errorf("%w: render format %v", ErrInvalidConfig, c.RenderFormat)
	case c.DepthFormat != hw.FormatUnknown && !c.DepthFormat.IsDepth():
		return fmt.Errorf("%w: depth format %v", ErrInvalidConfig, c.DepthFormat)
	case c.SamplerCacheSize < 0:
		return fmt.Errorf("%w: sampler cache size %d", ErrInvalidConfig, c.SamplerCacheSize)
	}
	return nil
}

// configFile is the TOML shape of Config. Absent keys keep their defaults.
type configFile struct {
	BufferCount            *int    `toml:"buffer_count"`
	RTVHeapSize            *uint32 `toml:"rtv_heap_size"`
	DSVHeapSize            *uint32 `toml:"dsv_heap_size"`
	SamplerHeapSize        *uint32 `toml:"sampler_heap_size"`
	ResourceHeapSize       *uint32 `toml:"resource_heap_size"`
	ShaderResourceHeapSize *uint32 `toml:"shader_resource_heap_size"`
	ShaderSamplerHeapSize  *uint32 `toml:"shader_sampler_heap_size"`
	UploadRingSize         *uint64 `toml:"upload_ring_size"`
	FenceTimeout           *string `toml:"fence_timeout"`
	VSyncInterval          *uint32 `toml:"vsync_interval"`
	RenderFormat           *string `toml:"render_format"`
	DepthFormat            *string `toml:"depth_format"`
	SamplerCacheSize       *int    `toml:"sampler_cache_size"`
}

// ParseConfig decodes TOML on top of DefaultConfig and validates the
// result. Unknown keys are rejected.
//
// Example:
//
//	buffer_count = 3
//	upload_ring_size = 33554432
//	fence_timeout = "5s"
//	depth_format = "D32Float"
func ParseConfig(data []byte) (Config, error) {
	var f configFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Config{}, fmt.Errorf("framekit: parse config: %w", err)
	}

	c := DefaultConfig()
	setIf(&c.BufferCount, f.BufferCount)
	setIf(&c.RTVHeapSize, f.RTVHeapSize)
	setIf(&c.DSVHeapSize, f.DSVHeapSize)
	setIf(&c.SamplerHeapSize, f.SamplerHeapSize)
	setIf(&c.ResourceHeapSize, f.ResourceHeapSize)
	setIf(&c.ShaderResourceHeapSize, f.ShaderResourceHeapSize)
	setIf(&c.ShaderSamplerHeapSize, f.ShaderSamplerHeapSize)
	setIf(&c.UploadRingSize, f.UploadRingSize)
	setIf(&c.VSyncInterval, f.VSyncInterval)
	setIf(&c.SamplerCacheSize, f.SamplerCacheSize)

	if f.FenceTimeout != nil {
		d, err := time.ParseDuration(*f.FenceTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("%w: fence_timeout: %v", ErrInvalidConfig, err)
		}
		c.FenceTimeout = d
	}
	if f.RenderFormat != nil {
		format, err := hw.ParseFormat(*f.RenderFormat)
		if err != nil {
			return Config{}, fmt.Errorf("%w: render_format: %v", ErrInvalidConfig, err)
		}
		c.RenderFormat = format
	}
	if f.DepthFormat != nil {
		format := hw.FormatUnknown
		if *f.DepthFormat != "" && *f.DepthFormat != "none" {
			var err error
			if format, err = hw.ParseFormat(*f.DepthFormat); err != nil {
				return Config{}, fmt.Errorf("%w: depth_format: %v", ErrInvalidConfig, err)
			}
		}
		c.DepthFormat = format
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// LoadConfig reads a TOML file with ParseConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("framekit: load config: %w", err)
	}
	return ParseConfig(data)
}
