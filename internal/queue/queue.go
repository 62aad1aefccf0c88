// Package queue wraps a hardware queue and its fence into a source of
// monotonically increasing completion tickets.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/logging"
)

// Queue errors.
var (
	// ErrTimeout is returned when a CPU wait exceeds the configured timeout.
	// Like device loss, it is fatal to the frame loop.
	ErrTimeout = errors.New("queue: fence wait timed out")

	// ErrTicketNotIssued is returned when waiting for a ticket that was never
	// signaled; the wait could never complete.
	ErrTicketNotIssued = errors.New("queue: ticket was never issued")
)

// DefaultTimeout bounds CPU waits when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Queue issues completion tickets for one hardware queue.
//
// Tickets start at 1; ticket 0 is always complete. A ticket is reached once
// the hardware has finished every piece of work submitted at or before the
// Signal that issued it.
//
// Thread Safety: Queue is safe for concurrent use. Signal and Execute are
// serialized by one lock, CPU waits by another, and the completed cache is
// atomic.
type Queue struct {
	kind    hw.QueueKind
	native  hw.Queue
	fence   hw.Fence
	timeout time.Duration

	signalMu   sync.Mutex
	nextTicket uint64 // guarded by signalMu

	waitMu sync.Mutex

	lastCompleted atomic.Uint64
	issued        atomic.Uint64
}

// New opens the hardware queue of the given kind and creates its fence.
// A zero timeout selects DefaultTimeout.
func New(dev hw.Device, kind hw.QueueKind, timeout time.Duration) (*Queue, error) {
	native, err := dev.OpenQueue(kind)
	if err != nil {
		return nil, fmt.Errorf("queue: open %v queue: %w", kind, err)
	}
	fence, err := dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("queue: create %v fence: %w", kind, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Queue{
		kind:       kind,
		native:     native,
		fence:      fence,
		timeout:    timeout,
		nextTicket: 1,
	}, nil
}

// Kind returns the queue kind.
func (q *Queue) Kind() hw.QueueKind { return q.kind }

// Native returns the wrapped hardware queue.
func (q *Queue) Native() hw.Queue { return q.native }

// Signal enqueues a fence signal and returns its ticket.
func (q *Queue) Signal() (uint64, error) {
	q.signalMu.Lock()
	defer q.signalMu.Unlock()
	return q.signalLocked()
}

func (q *Queue) signalLocked() (uint64, error) {
	t := q.nextTicket
	if err := q.native.Signal(q.fence, t); err != nil {
		return 0, fmt.Errorf("queue: signal %v ticket %d: %w", q.kind, t, err)
	}
	q.nextTicket++
	q.issued.Store(t)
	return t, nil
}

// Execute submits closed lists and signals, atomically with respect to
// other signalers, so the returned ticket covers exactly this submission
// and everything before it.
func (q *Queue) Execute(lists ...hw.CommandList) (uint64, error) {
	q.signalMu.Lock()
	defer q.signalMu.Unlock()
	if err := q.native.Execute(lists...); err != nil {
		return 0, fmt.Errorf("queue: execute on %v: %w", q.kind, err)
	}
	return q.signalLocked()
}

// LastIssued returns the most recently issued ticket, or 0.
func (q *Queue) LastIssued() uint64 { return q.issued.Load() }

// NextTicket returns the ticket the next Signal will issue.
func (q *Queue) NextTicket() uint64 { return q.issued.Load() + 1 }

// LastCompleted returns the cached completed ticket without polling.
func (q *Queue) LastCompleted() uint64 { return q.lastCompleted.Load() }

// PollCompleted reads the fence and returns the highest ticket ever
// observed complete.
func (q *Queue) PollCompleted() (uint64, error) {
	v, err := q.fence.Completed()
	if err != nil {
		return q.lastCompleted.Load(), fmt.Errorf("queue: poll %v fence: %w", q.kind, err)
	}
	return q.observe(v), nil
}

// observe raises the cache to v and returns the new maximum.
func (q *Queue) observe(v uint64) uint64 {
	for {
		cur := q.lastCompleted.Load()
		if v <= cur {
			return cur
		}
		if q.lastCompleted.CompareAndSwap(cur, v) {
			return v
		}
	}
}

// IsComplete reports whether ticket has been reached, polling the fence
// only when the cache is older than ticket.
func (q *Queue) IsComplete(ticket uint64) (bool, error) {
	if ticket <= q.lastCompleted.Load() {
		return true, nil
	}
	done, err := q.PollCompleted()
	if err != nil {
		return false, err
	}
	return ticket <= done, nil
}

// CPUWaitFor blocks until ticket is reached.
//
// Only one goroutine arms the fence at a time. A waiter that acquires the
// lock after its ticket completed returns without touching the fence.
func (q *Queue) CPUWaitFor(ticket uint64) error {
	if done, err := q.IsComplete(ticket); err != nil || done {
		return err
	}
	if ticket > q.issued.Load() {
		return fmt.Errorf("%w: %v ticket %d, last issued %d", ErrTicketNotIssued, q.kind, ticket, q.issued.Load())
	}

	q.waitMu.Lock()
	defer q.waitMu.Unlock()

	if done, err := q.IsComplete(ticket); err != nil || done {
		return err
	}
	logging.Logger().Debug("queue: cpu wait", "queue", q.kind.String(), "ticket", ticket,
		"completed", q.lastCompleted.Load())

	ok, err := q.fence.Wait(ticket, q.timeout)
	if err != nil {
		return fmt.Errorf("queue: wait %v ticket %d: %w", q.kind, ticket, err)
	}
	if !ok {
		return fmt.Errorf("%w: %v ticket %d after %v", ErrTimeout, q.kind, ticket, q.timeout)
	}
	q.observe(ticket)
	return nil
}

// WaitIdle blocks until every issued ticket is reached.
func (q *Queue) WaitIdle() error {
	q.signalMu.Lock()
	t, err := q.signalLocked()
	q.signalMu.Unlock()
	if err != nil {
		return err
	}
	return q.CPUWaitFor(t)
}

// GPUWaitFor makes work submitted to q after this call wait until other
// reaches ticket. No CPU thread blocks.
func (q *Queue) GPUWaitFor(other *Queue, ticket uint64) error {
	if err := q.native.Wait(other.fence, ticket); err != nil {
		return fmt.Errorf("queue: %v waits for %v ticket %d: %w", q.kind, other.kind, ticket, err)
	}
	return nil
}

// Destroy releases the fence. The queue must be idle.
func (q *Queue) Destroy() {
	if q.fence != nil {
		q.fence.Destroy()
		q.fence = nil
	}
}
