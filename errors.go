package framekit

import (
	"errors"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/queue"
	"github.com/gogpu/framekit/internal/ring"
)

// Errors returned by the device and its resources.
var (
	// ErrDeviceLost is returned once the device was lost or a fence wait
	// timed out. The frame loop must stop; the device accepts no more work.
	ErrDeviceLost = hw.ErrDeviceLost

	// ErrFenceTimeout is wrapped together with ErrDeviceLost when a CPU wait
	// exceeds Config.FenceTimeout.
	ErrFenceTimeout = queue.ErrTimeout

	// ErrUploadRingFull is returned when the upload ring has no room for an
	// allocation this frame. Retire frames or configure a larger ring.
	ErrUploadRingFull = ring.ErrFull

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("framekit: device is closed")

	// ErrInvalidState is returned when an operation does not fit the frame
	// state, such as presenting while command lists are still recording.
	ErrInvalidState = errors.New("framekit: invalid frame state")

	// ErrNotRecording is returned when submitting or recording into a list
	// that was already submitted.
	ErrNotRecording = errors.New("framekit: command list is not recording")

	// ErrReleased is returned when using or releasing an object that was
	// already released.
	ErrReleased = errors.New("framekit: object already released")

	// ErrOutOfRange is returned for byte ranges that exceed a buffer.
	ErrOutOfRange = errors.New("framekit: range out of bounds")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("framekit: invalid config")

	// ErrStaleTarget is returned when using a back buffer or depth buffer
	// from before the last Resize.
	ErrStaleTarget = errors.New("framekit: render target is from before a resize")
)
