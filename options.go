package framekit

import (
	"log/slog"
	"time"
)

// DeviceOption configures a Device during creation.
// Options apply in order, so WithConfig should come first when combined
// with the single-field options.
//
// Example:
//
//	// Defaults: two frames in flight, 16 MiB upload ring
//	dev, err := framekit.New(hwDevice, surface)
//
//	// Triple buffering with a larger ring
//	dev, err := framekit.New(hwDevice, surface,
//	    framekit.WithBufferCount(3),
//	    framekit.WithUploadRingSize(64<<20))
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	config Config
	logger *slog.Logger
}

// defaultOptions returns the default device options.
func defaultOptions() deviceOptions {
	return deviceOptions{
		config: DefaultConfig(),
		logger: nil, // keep the current package logger
	}
}

// WithConfig replaces the whole configuration.
//
// Example:
//
//	cfg, err := framekit.LoadConfig("framekit.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dev, err := framekit.New(hwDevice, surface, framekit.WithConfig(cfg))
func WithConfig(cfg Config) DeviceOption {
	return func(o *deviceOptions) {
		o.config = cfg
	}
}

// WithBufferCount sets the number of frames in flight.
func WithBufferCount(n int) DeviceOption {
	return func(o *deviceOptions) {
		o.config.BufferCount = n
	}
}

// WithUploadRingSize sets the upload ring capacity in bytes.
func WithUploadRingSize(size uint64) DeviceOption {
	return func(o *deviceOptions) {
		o.config.UploadRingSize = size
	}
}

// WithFenceTimeout bounds CPU waits on the GPU.
func WithFenceTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		o.config.FenceTimeout = d
	}
}

// WithLogger installs l as the package logger when the device is created.
// It is equivalent to calling SetLogger before New.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}
