package framekit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/framekit/hw"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestParseConfigEmptyKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig(nil) error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("ParseConfig(nil) = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
buffer_count = 3
upload_ring_size = 33554432
fence_timeout = "1500ms"
vsync_interval = 0
render_format = "bgra8unorm"
depth_format = "D32Float"
sampler_cache_size = 8
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	want := DefaultConfig()
	want.BufferCount = 3
	want.UploadRingSize = 32 << 20
	want.FenceTimeout = 1500 * time.Millisecond
	want.VSyncInterval = 0
	want.RenderFormat = hw.FormatBGRA8Unorm
	want.DepthFormat = hw.FormatD32Float
	want.SamplerCacheSize = 8
	if cfg != want {
		t.Errorf("ParseConfig() = %+v\nwant %+v", cfg, want)
	}
}

func TestParseConfigNoDepth(t *testing.T) {
	for _, v := range []string{`"none"`, `""`} {
		cfg, err := ParseConfig([]byte("depth_format = " + v))
		if err != nil {
			t.Fatalf("depth_format = %s: error = %v", v, err)
		}
		if cfg.DepthFormat != hw.FormatUnknown {
			t.Errorf("depth_format = %s: DepthFormat = %v, want Unknown", v, cfg.DepthFormat)
		}
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantConfig bool // error wraps ErrInvalidConfig
	}{
		{"unknown key", "buffer_cnt = 2", false},
		{"bad syntax", "buffer_count = ", false},
		{"wrong type", `buffer_count = "two"`, false},
		{"bad duration", `fence_timeout = "soon"`, true},
		{"bad render format", `render_format = "RGB565"`, true},
		{"depth as render format", `render_format = "D32Float"`, true},
		{"color as depth format", `depth_format = "RGBA8Unorm"`, true},
		{"zero buffers", "buffer_count = 0", true},
		{"tiny ring", "upload_ring_size = 16", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("ParseConfig() error = nil")
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.wantConfig {
				t.Errorf("errors.Is(%v, ErrInvalidConfig) = %v, want %v", err, got, tt.wantConfig)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no buffers", func(c *Config) { c.BufferCount = 0 }},
		{"zero rtv heap", func(c *Config) { c.RTVHeapSize = 0 }},
		{"zero resource heap", func(c *Config) { c.ResourceHeapSize = 0 }},
		{"shader heap smaller than frames", func(c *Config) { c.BufferCount = 3; c.ShaderSamplerHeapSize = 2 }},
		{"ring below texture alignment", func(c *Config) { c.UploadRingSize = 511 }},
		{"zero timeout", func(c *Config) { c.FenceTimeout = 0 }},
		{"unknown render format", func(c *Config) { c.RenderFormat = hw.FormatUnknown }},
		{"depth render format", func(c *Config) { c.RenderFormat = hw.FormatD24UnormS8Uint }},
		{"color depth format", func(c *Config) { c.DepthFormat = hw.FormatR32Float }},
		{"negative sampler cache", func(c *Config) { c.SamplerCacheSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framekit.toml")
	if err := os.WriteFile(path, []byte("buffer_count = 1\ndepth_format = \"none\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.BufferCount != 1 || cfg.DepthFormat != hw.FormatUnknown {
		t.Errorf("LoadConfig() = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) = %v, want os.ErrNotExist", err)
	}
}
