package hw

import "errors"

// Backend errors. Implementations wrap these so callers can test with
// errors.Is regardless of the backend.
var (
	// ErrDeviceLost is returned once the device has been removed or reset.
	// It is not recoverable.
	ErrDeviceLost = errors.New("hw: device lost")

	// ErrOutOfDeviceMemory is returned when an allocation is refused.
	ErrOutOfDeviceMemory = errors.New("hw: out of device memory")

	// ErrUnsupported is returned for formats or features the backend cannot
	// express.
	ErrUnsupported = errors.New("hw: unsupported")

	// ErrInvalidDescriptor is returned for descriptor addresses that do not
	// belong to a live heap.
	ErrInvalidDescriptor = errors.New("hw: invalid descriptor address")

	// ErrNotMappable is returned by Map on default-heap buffers.
	ErrNotMappable = errors.New("hw: buffer is not CPU accessible")

	// ErrInvalidUsage is returned by CommandList.Close when recording was
	// malformed.
	ErrInvalidUsage = errors.New("hw: invalid command list usage")
)
