// Package cmdpool recycles recording allocators and command lists, gated on
// queue completion tickets.
package cmdpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/fifo"
	"github.com/gogpu/framekit/internal/logging"
)

// Pool errors.
var (
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("cmdpool: pool is shut down")

	// ErrInvalidList is returned for list IDs not handed out by the manager.
	ErrInvalidList = errors.New("cmdpool: invalid command list id")

	// ErrNotRecording is returned when releasing a list that is not
	// currently allocated.
	ErrNotRecording = errors.New("cmdpool: command list is not allocated")
)

type retiredAllocator struct {
	ticket uint64
	alloc  hw.RecordingAllocator
}

// AllocatorPool recycles recording allocators of one queue kind.
//
// An allocator freed with ticket T is handed out again only to a caller
// that proves T has been reached. The pool grows only as fast as in-flight
// work requires and never shrinks before Shutdown.
//
// Thread Safety: AllocatorPool is safe for concurrent use.
type AllocatorPool struct {
	dev  hw.Device
	kind hw.QueueKind

	mu     sync.Mutex
	all    []hw.RecordingAllocator
	free   fifo.Queue[retiredAllocator]
	closed bool
}

// NewAllocatorPool creates an empty pool.
func NewAllocatorPool(dev hw.Device, kind hw.QueueKind) *AllocatorPool {
	return &AllocatorPool{dev: dev, kind: kind}
}

// Allocate returns an allocator ready for recording. The oldest free
// allocator is reused when its ticket is <= lastCompleted; otherwise a new
// one is created.
func (p *AllocatorPool) Allocate(lastCompleted uint64) (hw.RecordingAllocator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	if front, ok := p.free.Front(); ok && front.ticket <= lastCompleted {
		p.free.Pop()
		if err := front.alloc.Reset(); err != nil {
			// Put it back untouched; the caller sees the reset failure.
			p.free.Push(front)
			return nil, fmt.Errorf("cmdpool: reset %v allocator: %w", p.kind, err)
		}
		return front.alloc, nil
	}

	alloc, err := p.dev.CreateRecordingAllocator(p.kind)
	if err != nil {
		return nil, fmt.Errorf("cmdpool: create %v allocator: %w", p.kind, err)
	}
	p.all = append(p.all, alloc)
	logging.Logger().Debug("cmdpool: allocator pool grew",
		"queue", p.kind.String(), "size", len(p.all))
	return alloc, nil
}

// Free returns alloc to the pool. It may be reused once ticket is reached.
func (p *AllocatorPool) Free(ticket uint64, alloc hw.RecordingAllocator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free.Push(retiredAllocator{ticket: ticket, alloc: alloc})
}

// Size returns the number of allocators created.
func (p *AllocatorPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// FreeCount returns the number of allocators waiting for reuse.
func (p *AllocatorPool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Len()
}

// Shutdown destroys every allocator. The queue must be idle.
func (p *AllocatorPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.all {
		a.Destroy()
	}
	p.all = nil
	p.free.Clear()
	p.closed = true
}
