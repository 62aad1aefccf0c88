package sim

import (
	"fmt"
	"time"

	"github.com/gogpu/framekit/hw"
)

type opKind uint8

const (
	opExecute opKind = iota
	opSignal
	opWait
)

type queueOp struct {
	kind  opKind
	list  *CommandList
	alloc *Allocator
	cmds  []command
	fence *Fence
	value uint64
}

// Queue is a simulated hardware queue. Operations execute strictly in
// submission order.
type Queue struct {
	dev  *Device
	kind hw.QueueKind
	ops  []queueOp
}

var _ hw.Queue = (*Queue)(nil)

// Kind returns the queue kind.
func (q *Queue) Kind() hw.QueueKind { return q.kind }

// Execute enqueues closed command lists.
func (q *Queue) Execute(lists ...hw.CommandList) error {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("sim: foreign command list %T: %w", l, hw.ErrInvalidUsage)
		}
		if cl.recording {
			return fmt.Errorf("sim: executing a list that is still recording: %w", hw.ErrInvalidUsage)
		}
		if !q.kind.Accepts(cl.kind) {
			return fmt.Errorf("sim: %v list on %v queue: %w", cl.kind, q.kind, hw.ErrInvalidUsage)
		}
	}
	for _, l := range lists {
		cl := l.(*CommandList)
		cl.alloc.pending++
		cl.pending++
		// The list may be reset onto another allocator and re-recorded once
		// execution is enqueued; the op keeps the allocator and commands it
		// was recorded with.
		q.ops = append(q.ops, queueOp{kind: opExecute, list: cl, alloc: cl.alloc, cmds: cl.cmds})
	}
	d.afterSubmitLocked()
	return nil
}

// Signal enqueues a fence update.
func (q *Queue) Signal(f hw.Fence, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("sim: foreign fence %T: %w", f, hw.ErrInvalidUsage)
	}
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	q.ops = append(q.ops, queueOp{kind: opSignal, fence: fence, value: value})
	d.afterSubmitLocked()
	return nil
}

// Wait enqueues a GPU-side wait on another fence.
func (q *Queue) Wait(f hw.Fence, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("sim: foreign fence %T: %w", f, hw.ErrInvalidUsage)
	}
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(); err != nil {
		return err
	}
	q.ops = append(q.ops, queueOp{kind: opWait, fence: fence, value: value})
	d.afterSubmitLocked()
	return nil
}

// stepLocked executes the head operation of a queue. Caller holds d.mu.
func (d *Device) stepLocked(kind hw.QueueKind) bool {
	if d.lost {
		return false
	}
	q := d.queues[kind]
	if len(q.ops) == 0 {
		return false
	}
	op := q.ops[0]
	switch op.kind {
	case opWait:
		if op.fence.value < op.value {
			return false
		}
	case opSignal:
		if op.value > op.fence.value {
			op.fence.value = op.value
		}
		d.cond.Broadcast()
	case opExecute:
		d.executeLocked(op)
	}
	q.ops[0] = queueOp{}
	q.ops = q.ops[1:]
	return true
}

func (d *Device) executeLocked(op queueOp) {
	for _, c := range op.cmds {
		for _, r := range c.refs {
			if isDestroyed(r) {
				d.violate("%s references destroyed %v", c.name, r.ResourceKind())
			}
		}
		if c.run != nil {
			c.run()
		}
	}
	op.list.pending--
	op.alloc.pending--
	d.stats.ExecutedLists++
	d.stats.ExecutedCommands += len(op.cmds)
}

func isDestroyed(r hw.Resource) bool {
	switch r := r.(type) {
	case *Buffer:
		return r.destroyed
	case *Texture:
		return r.destroyed
	}
	return false
}

// Fence is a simulated fence.
type Fence struct {
	dev   *Device
	value uint64
}

var _ hw.Fence = (*Fence)(nil)

// Completed returns the last value reached.
func (f *Fence) Completed() (uint64, error) {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return f.value, hw.ErrDeviceLost
	}
	return f.value, nil
}

// Wait blocks until the fence reaches value or timeout elapses.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	d := f.dev
	deadline := time.Now().Add(timeout)
	// sync.Cond has no timed wait; a timer wakes the waiter at the deadline.
	timer := time.AfterFunc(timeout, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for f.value < value {
		if d.lost {
			return false, hw.ErrDeviceLost
		}
		if d.destroyed {
			return false, ErrClosed
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		d.cond.Wait()
	}
	return true, nil
}

// Destroy releases the fence.
func (f *Fence) Destroy() {
	f.dev.mu.Lock()
	f.dev.stats.Live.Fences--
	f.dev.mu.Unlock()
}
