package halgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framekit/hw"
)

// Queue is one hw queue kind on the shared hal queue.
type Queue struct {
	dev  *Device
	kind hw.QueueKind
}

var _ hw.Queue = (*Queue)(nil)

// Kind returns the queue kind.
func (q *Queue) Kind() hw.QueueKind { return q.kind }

// Execute submits the command buffers encoded by Close.
func (q *Queue) Execute(lists ...hw.CommandList) error {
	cmds := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("halgpu: foreign command list %T: %w", l, hw.ErrInvalidUsage)
		}
		if cl.recording || cl.encoded == nil {
			return fmt.Errorf("halgpu: executing a list that is not closed: %w", hw.ErrInvalidUsage)
		}
		if !q.kind.Accepts(cl.kind) {
			return fmt.Errorf("halgpu: %v list on %v queue: %w", cl.kind, q.kind, hw.ErrInvalidUsage)
		}
		cmds = append(cmds, cl.encoded)
	}
	if len(cmds) == 0 {
		return nil
	}
	if err := q.dev.queue.Submit(cmds, nil, 0); err != nil {
		return fmt.Errorf("halgpu: submit: %w", err)
	}
	return nil
}

// Signal submits a fence update behind all previously submitted work.
func (q *Queue) Signal(f hw.Fence, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("halgpu: foreign fence %T: %w", f, hw.ErrInvalidUsage)
	}
	if err := q.dev.queue.Submit(nil, fence.hal, value); err != nil {
		return fmt.Errorf("halgpu: signal %d: %w", value, err)
	}
	fence.issue(value)
	return nil
}

// Wait is satisfied by submission order: every hw queue submits to the same
// hal queue, so work submitted after this call already runs after the
// signal it waits for.
func (q *Queue) Wait(f hw.Fence, _ uint64) error {
	if _, ok := f.(*Fence); !ok {
		return fmt.Errorf("halgpu: foreign fence %T: %w", f, hw.ErrInvalidUsage)
	}
	return nil
}

// Fence wraps a hal timeline fence.
//
// hal can wait for a fence value but cannot report the current one, so
// Completed searches the signaled range with zero-timeout waits.
type Fence struct {
	dev *Device
	hal hal.Fence

	mu        sync.Mutex
	issued    uint64 // highest value submitted by Signal
	completed uint64 // highest value known to be reached
}

var _ hw.Fence = (*Fence)(nil)

func (f *Fence) issue(v uint64) {
	f.mu.Lock()
	if v > f.issued {
		f.issued = v
	}
	f.mu.Unlock()
}

// reached reports whether the GPU passed v without blocking.
func (f *Fence) reached(v uint64) (bool, error) {
	ok, err := f.dev.hal.Wait(f.hal, v, 0)
	if err != nil {
		return false, fmt.Errorf("%w: fence wait: %v", hw.ErrDeviceLost, err)
	}
	return ok, nil
}

// Completed returns the highest signaled value the GPU has reached.
func (f *Fence) Completed() (uint64, error) {
	f.mu.Lock()
	lo, hi := f.completed, f.issued
	f.mu.Unlock()
	if lo == hi {
		return lo, nil
	}

	ok, err := f.reached(hi)
	if err != nil {
		return 0, err
	}
	if ok {
		lo = hi
	} else {
		// Invariant: lo is reached, hi is not.
		for hi-lo > 1 {
			mid := lo + (hi-lo)/2
			ok, err := f.reached(mid)
			if err != nil {
				return 0, err
			}
			if ok {
				lo = mid
			} else {
				hi = mid
			}
		}
	}
	f.markCompleted(lo)
	return lo, nil
}

func (f *Fence) markCompleted(v uint64) {
	f.mu.Lock()
	if v > f.completed {
		f.completed = v
	}
	f.mu.Unlock()
}

// Wait blocks until the fence reaches value or timeout elapses.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	done := value <= f.completed
	f.mu.Unlock()
	if done {
		return true, nil
	}
	ok, err := f.dev.hal.Wait(f.hal, value, timeout)
	if err != nil {
		return false, fmt.Errorf("%w: fence wait: %v", hw.ErrDeviceLost, err)
	}
	if ok {
		f.markCompleted(value)
	}
	return ok, nil
}

// Destroy releases the hal fence.
func (f *Fence) Destroy() {
	f.dev.hal.DestroyFence(f.hal)
}
