package cmdpool

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/sim"
	"github.com/gogpu/framekit/internal/queue"
)

func TestAllocatorPoolReuseGatedOnTicket(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	p := NewAllocatorPool(d, hw.QueueDirect)
	defer p.Shutdown()

	a, err := p.Allocate(0)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	p.Free(3, a)

	tests := []struct {
		name      string
		completed uint64
		wantSame  bool
		wantSize  int
	}{
		{"ticket not reached", 2, false, 2},
		{"ticket reached", 3, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Allocate(tt.completed)
			if err != nil {
				t.Fatalf("Allocate(%d) error = %v", tt.completed, err)
			}
			if same := got == a; same != tt.wantSame {
				t.Errorf("reused = %v, want %v", same, tt.wantSame)
			}
			if p.Size() != tt.wantSize {
				t.Errorf("Size() = %d, want %d", p.Size(), tt.wantSize)
			}
		})
	}
	if r := a.(*sim.Allocator).Resets(); r != 1 {
		t.Errorf("reused allocator reset %d times, want 1", r)
	}
}

func TestAllocatorPoolOldestFirst(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	p := NewAllocatorPool(d, hw.QueueCopy)
	defer p.Shutdown()

	a1, _ := p.Allocate(0)
	a2, _ := p.Allocate(0)
	p.Free(1, a1)
	p.Free(2, a2)

	got, err := p.Allocate(10)
	if err != nil {
		t.Fatal(err)
	}
	if got != a1 {
		t.Error("Allocate() did not return the oldest free allocator")
	}
	if p.FreeCount() != 1 {
		t.Errorf("FreeCount() = %d, want 1", p.FreeCount())
	}
}

func TestAllocatorPoolShutdown(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	p := NewAllocatorPool(d, hw.QueueDirect)
	_, _ = p.Allocate(0)
	_, _ = p.Allocate(0)
	p.Shutdown()

	if live := d.Stats().Live.Allocators; live != 0 {
		t.Errorf("live allocators after Shutdown = %d, want 0", live)
	}
	if _, err := p.Allocate(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Allocate() after Shutdown error = %v, want ErrClosed", err)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	m := NewManager(d, hw.QueueDirect)
	defer m.Shutdown()

	id, list, err := m.Allocate(0)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got, _ := m.List(id); got != list {
		t.Error("List(id) returned a different list")
	}
	if err := list.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(1, id); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := m.Release(1, id); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second Release() error = %v, want ErrNotRecording", err)
	}

	id2, list2, err := m.Allocate(0)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id || list2 != list {
		t.Errorf("Allocate() = %d, want recycled list %d", id2, id)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if m.Pool().Size() != 2 {
		t.Errorf("pool size = %d, want 2: ticket 1 was not complete", m.Pool().Size())
	}
}

func TestManagerInvalidID(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	m := NewManager(d, hw.QueueCompute)
	defer m.Shutdown()

	if _, err := m.List(7); !errors.Is(err, ErrInvalidList) {
		t.Errorf("List(7) error = %v, want ErrInvalidList", err)
	}
	if err := m.Release(0, 7); !errors.Is(err, ErrInvalidList) {
		t.Errorf("Release(7) error = %v, want ErrInvalidList", err)
	}
}

// TestManagerNeverResetsInFlight drives many frames through a queue whose
// GPU lags behind and checks the device never saw a premature reset.
func TestManagerNeverResetsInFlight(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	q, err := queue.New(d, hw.QueueDirect, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Destroy()
	m := NewManager(d, hw.QueueDirect)
	defer m.Shutdown()

	for frame := range 20 {
		completed, err := q.PollCompleted()
		if err != nil {
			t.Fatal(err)
		}
		id, list, err := m.Allocate(completed)
		if err != nil {
			t.Fatalf("frame %d: Allocate() error = %v", frame, err)
		}
		list.ResourceBarrier()
		if err := list.Close(); err != nil {
			t.Fatal(err)
		}
		ticket, err := q.Execute(list)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Release(ticket, id); err != nil {
			t.Fatal(err)
		}
		// The GPU completes every other frame.
		if frame%2 == 1 {
			d.DrainAll()
		}
	}
	d.DrainAll()

	if v := d.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
	if size := m.Pool().Size(); size > 3 {
		t.Errorf("pool grew to %d allocators, want at most 3", size)
	}
}
