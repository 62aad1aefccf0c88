package cmdpool

import (
	"fmt"
	"sync"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/internal/fifo"
)

// ListID identifies a command list owned by a Manager.
type ListID uint32

type listEntry struct {
	list      hw.CommandList
	alloc     hw.RecordingAllocator
	allocated bool
}

// Manager hands out reusable command lists of one queue kind as integer
// IDs. Each allocated list is bound to a fresh allocator from the pool.
//
// Thread Safety: Manager is safe for concurrent use, but a single list must
// only be recorded by one goroutine at a time.
type Manager struct {
	dev  hw.Device
	kind hw.QueueKind
	pool *AllocatorPool

	mu      sync.Mutex
	entries []listEntry
	free    fifo.Queue[ListID]
}

// NewManager creates a manager with its own allocator pool.
func NewManager(dev hw.Device, kind hw.QueueKind) *Manager {
	return &Manager{dev: dev, kind: kind, pool: NewAllocatorPool(dev, kind)}
}

// Kind returns the queue kind.
func (m *Manager) Kind() hw.QueueKind { return m.kind }

// Pool returns the underlying allocator pool.
func (m *Manager) Pool() *AllocatorPool { return m.pool }

// Allocate returns a list in the recording state. lastCompleted gates
// allocator reuse.
func (m *Manager) Allocate(lastCompleted uint64) (ListID, hw.CommandList, error) {
	alloc, err := m.pool.Allocate(lastCompleted)
	if err != nil {
		return 0, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.free.Pop(); ok {
		e := &m.entries[id]
		if err := e.list.Reset(alloc); err != nil {
			m.free.Push(id)
			m.pool.Free(0, alloc)
			return 0, nil, fmt.Errorf("cmdpool: reset %v list %d: %w", m.kind, id, err)
		}
		e.alloc = alloc
		e.allocated = true
		return id, e.list, nil
	}

	list, err := m.dev.CreateCommandList(m.kind, alloc)
	if err != nil {
		m.pool.Free(0, alloc)
		return 0, nil, fmt.Errorf("cmdpool: create %v list: %w", m.kind, err)
	}
	id := ListID(len(m.entries))
	m.entries = append(m.entries, listEntry{list: list, alloc: alloc, allocated: true})
	return id, list, nil
}

// List returns the native list for id.
func (m *Manager) List(id ListID) (hw.CommandList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.entries) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidList, id)
	}
	return m.entries[id].list, nil
}

// Release returns id to the free queue and hands its allocator back to the
// pool tagged with ticket, the ticket that covers the list's execution.
func (m *Manager) Release(ticket uint64, id ListID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.entries) {
		return fmt.Errorf("%w: %d", ErrInvalidList, id)
	}
	e := &m.entries[id]
	if !e.allocated {
		return fmt.Errorf("%w: %v list %d", ErrNotRecording, m.kind, id)
	}
	m.pool.Free(ticket, e.alloc)
	e.alloc = nil
	e.allocated = false
	m.free.Push(id)
	return nil
}

// Len returns the number of lists created.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Shutdown destroys all lists and allocators. The queue must be idle.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, e := range m.entries {
		e.list.Destroy()
	}
	m.entries = nil
	m.free.Clear()
	m.mu.Unlock()
	m.pool.Shutdown()
}
