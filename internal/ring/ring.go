// Package ring implements the upload ring: a circular byte allocator whose
// space is reclaimed frame by frame as the GPU finishes reading it.
package ring

import (
	"errors"
	"fmt"

	"github.com/gogpu/framekit/internal/fifo"
)

// Ring errors.
var (
	// ErrFull is returned when no contiguous span fits before head. The
	// caller may retire more frames and retry.
	ErrFull = errors.New("ring: upload ring is full")

	// ErrZeroSize is returned for zero-byte allocations.
	ErrZeroSize = errors.New("ring: zero-size allocation")

	// ErrTooLarge is returned for allocations larger than the ring.
	ErrTooLarge = errors.New("ring: allocation larger than the ring")

	// ErrBadAlignment is returned for alignments that are not powers of two.
	ErrBadAlignment = errors.New("ring: alignment is not a power of two")
)

// Common placement alignments.
const (
	ConstantAlignment = 256
	TextureAlignment  = 512
)

type frameMark struct {
	ticket uint64
	tail   uint64
	size   uint64
}

// Ring tracks live byte ranges of a fixed-size circular buffer. It holds
// no memory itself.
//
// Bytes between head and tail, circularly, belong to frames the GPU may
// still read. used equals that distance, including bytes skipped at the
// end when an allocation wraps.
//
// Thread Safety: Ring is single-writer and not safe for concurrent use.
type Ring struct {
	size      uint64
	head      uint64
	tail      uint64
	used      uint64
	frameUsed uint64
	frames    fifo.Queue[frameMark]
}

// New creates a ring of size bytes.
func New(size uint64) (*Ring, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: ring size", ErrZeroSize)
	}
	return &Ring{size: size}, nil
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool { return v != 0 && v&(v-1) == 0 }

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// Allocate reserves size bytes at the given alignment and returns their
// offset. An alignment of 0 means 1.
func (r *Ring) Allocate(size, align uint64) (uint64, error) {
	if align == 0 {
		align = 1
	}
	switch {
	case size == 0:
		return 0, ErrZeroSize
	case size > r.size:
		return 0, fmt.Errorf("%w: %d bytes in a %d-byte ring", ErrTooLarge, size, r.size)
	case !IsPowerOfTwo(align):
		return 0, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if r.used == r.size {
		return 0, fmt.Errorf("%w: %d bytes requested", ErrFull, size)
	}
	if r.used == 0 && r.frames.Len() == 0 {
		// Empty: restart at 0 so the whole ring is one free span.
		r.head, r.tail = 0, 0
	}

	start := alignUp(r.tail, align)
	if r.tail >= r.head {
		// Free space is [tail, size) followed by [0, head).
		if start+size <= r.size {
			return r.commit(start, size, start+size-r.tail), nil
		}
		if size <= r.head {
			return r.commit(0, size, r.size-r.tail+size), nil
		}
	} else if start+size <= r.head {
		return r.commit(start, size, start+size-r.tail), nil
	}
	return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use (head %d, tail %d)",
		ErrFull, size, r.used, r.size, r.head, r.tail)
}

// commit places size bytes at offset, billing consumed bytes.
func (r *Ring) commit(offset, size, consumed uint64) uint64 {
	r.tail = (offset + size) % r.size
	r.used += consumed
	r.frameUsed += consumed
	return offset
}

// FinishFrame closes the current frame. Its bytes are reclaimed once
// ticket completes. A frame that allocated nothing leaves no mark.
func (r *Ring) FinishFrame(ticket uint64) {
	if r.frameUsed == 0 {
		return
	}
	r.frames.Push(frameMark{ticket: ticket, tail: r.tail, size: r.frameUsed})
	r.frameUsed = 0
}

// ReleaseCompletedFrames reclaims every finished frame whose ticket is
// <= completed and returns the number of bytes freed.
func (r *Ring) ReleaseCompletedFrames(completed uint64) uint64 {
	var freed uint64
	for {
		f, ok := r.frames.Front()
		if !ok || f.ticket > completed {
			return freed
		}
		r.frames.Pop()
		r.used -= f.size
		r.head = f.tail
		freed += f.size
	}
}

// Size returns the ring capacity in bytes.
func (r *Ring) Size() uint64 { return r.size }

// Used returns the bytes not yet reclaimed.
func (r *Ring) Used() uint64 { return r.used }

// FrameUsed returns the bytes billed to the open frame.
func (r *Ring) FrameUsed() uint64 { return r.frameUsed }

// Head returns the offset of the oldest live byte.
func (r *Ring) Head() uint64 { return r.head }

// Tail returns the offset of the next allocation before alignment.
func (r *Ring) Tail() uint64 { return r.tail }

// IsFull reports whether every byte is in use.
func (r *Ring) IsFull() bool { return r.used == r.size }

// PendingFrames returns the number of finished frames not yet reclaimed.
func (r *Ring) PendingFrames() int { return r.frames.Len() }
