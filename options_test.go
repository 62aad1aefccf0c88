package framekit

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.config != DefaultConfig() {
		t.Errorf("default config = %+v, want DefaultConfig()", o.config)
	}
	if o.logger != nil {
		t.Error("default logger should be nil")
	}
}

func TestDeviceOptionsApplyInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferCount = 3
	cfg.SamplerCacheSize = 5

	o := defaultOptions()
	for _, opt := range []DeviceOption{
		WithConfig(cfg),
		WithBufferCount(1),
		WithUploadRingSize(4096),
		WithFenceTimeout(time.Second),
	} {
		opt(&o)
	}

	if o.config.BufferCount != 1 {
		t.Errorf("BufferCount = %d, want 1", o.config.BufferCount)
	}
	if o.config.UploadRingSize != 4096 {
		t.Errorf("UploadRingSize = %d, want 4096", o.config.UploadRingSize)
	}
	if o.config.FenceTimeout != time.Second {
		t.Errorf("FenceTimeout = %v, want 1s", o.config.FenceTimeout)
	}
	if o.config.SamplerCacheSize != 5 {
		t.Errorf("SamplerCacheSize = %d, want 5 from WithConfig", o.config.SamplerCacheSize)
	}
}

func TestWithConfigOverridesEarlierOptions(t *testing.T) {
	o := defaultOptions()
	WithBufferCount(4)(&o)
	WithConfig(DefaultConfig())(&o)
	if o.config.BufferCount != DefaultConfig().BufferCount {
		t.Errorf("BufferCount = %d, want the WithConfig value", o.config.BufferCount)
	}
}

func TestNewAppliesOptions(t *testing.T) {
	dev, _ := newTestDevice(t, WithBufferCount(3), WithUploadRingSize(8192))
	cfg := dev.Config()
	if cfg.BufferCount != 3 || cfg.UploadRingSize != 8192 {
		t.Errorf("Config() = %+v", cfg)
	}
}

func TestNewRejectsInvalidOption(t *testing.T) {
	_, err := New(nil, testSurface, WithFenceTimeout(0))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(WithFenceTimeout(0)) = %v, want ErrInvalidConfig", err)
	}
}

func TestWithLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	newTestDevice(t, WithLogger(l))

	if Logger() != l {
		t.Error("WithLogger did not install the logger")
	}
	if !strings.Contains(buf.String(), "device created") {
		t.Errorf("expected creation log, got: %s", buf.String())
	}
}
