package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/framekit/hw"
	"github.com/gogpu/framekit/hw/sim"
)

func newQueue(t *testing.T, d *sim.Device, kind hw.QueueKind) *Queue {
	t.Helper()
	q, err := New(d, kind, time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(q.Destroy)
	return q
}

func TestSignalMonotonic(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueDirect)

	var last uint64
	for range 10 {
		ticket, err := q.Signal()
		if err != nil {
			t.Fatalf("Signal() error = %v", err)
		}
		if ticket <= last {
			t.Fatalf("Signal() = %d after %d, want strictly increasing", ticket, last)
		}
		last = ticket
	}
	if q.LastIssued() != 10 || q.NextTicket() != 11 {
		t.Errorf("LastIssued/NextTicket = %d/%d, want 10/11", q.LastIssued(), q.NextTicket())
	}
}

func TestSignalConcurrent(t *testing.T) {
	d := sim.New(sim.Config{AutoComplete: true})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueCopy)

	const workers, per = 8, 50
	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				ticket, err := q.Signal()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if seen[ticket] {
					t.Errorf("duplicate ticket %d", ticket)
				}
				seen[ticket] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Errorf("issued %d distinct tickets, want %d", len(seen), workers*per)
	}
}

func TestIsCompleteTracksGPU(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueDirect)

	t1, _ := q.Signal()
	t2, _ := q.Signal()

	if done, _ := q.IsComplete(0); !done {
		t.Error("IsComplete(0) = false, ticket 0 is always complete")
	}
	if done, _ := q.IsComplete(t1); done {
		t.Error("IsComplete(t1) = true before the GPU reached it")
	}
	d.Step(hw.QueueDirect)
	if done, _ := q.IsComplete(t1); !done {
		t.Error("IsComplete(t1) = false after the GPU reached it")
	}
	if done, _ := q.IsComplete(t2); done {
		t.Error("IsComplete(t2) = true before the GPU reached it")
	}
	if got := q.LastCompleted(); got != t1 {
		t.Errorf("LastCompleted() = %d, want %d", got, t1)
	}
}

func TestPollCompletedKeepsMaximum(t *testing.T) {
	d := sim.New(sim.Config{AutoComplete: true})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueDirect)

	_, _ = q.Signal()
	_, _ = q.Signal()
	done, err := q.PollCompleted()
	if err != nil || done != 2 {
		t.Fatalf("PollCompleted() = (%d, %v), want (2, nil)", done, err)
	}
	q.observe(1)
	if q.LastCompleted() != 2 {
		t.Errorf("cache decreased to %d", q.LastCompleted())
	}
}

func TestCPUWaitFor(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueDirect)

	ticket, _ := q.Signal()
	errc := make(chan error, 2)
	for range 2 {
		go func() { errc <- q.CPUWaitFor(ticket) }()
	}
	select {
	case err := <-errc:
		t.Fatalf("CPUWaitFor() returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	d.DrainAll()
	for range 2 {
		if err := <-errc; err != nil {
			t.Errorf("CPUWaitFor() error = %v", err)
		}
	}
	if done, _ := q.IsComplete(ticket); !done {
		t.Error("ticket not complete after wait")
	}
}

func TestCPUWaitForErrors(t *testing.T) {
	t.Run("not issued", func(t *testing.T) {
		d := sim.New(sim.Config{})
		defer d.Destroy()
		q := newQueue(t, d, hw.QueueDirect)
		if err := q.CPUWaitFor(5); !errors.Is(err, ErrTicketNotIssued) {
			t.Errorf("CPUWaitFor() error = %v, want ErrTicketNotIssued", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		d := sim.New(sim.Config{})
		defer d.Destroy()
		q, err := New(d, hw.QueueDirect, 10*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		defer q.Destroy()
		ticket, _ := q.Signal()
		if err := q.CPUWaitFor(ticket); !errors.Is(err, ErrTimeout) {
			t.Errorf("CPUWaitFor() error = %v, want ErrTimeout", err)
		}
	})

	t.Run("device lost", func(t *testing.T) {
		d := sim.New(sim.Config{})
		defer d.Destroy()
		q := newQueue(t, d, hw.QueueDirect)
		ticket, _ := q.Signal()
		d.Lose()
		if err := q.CPUWaitFor(ticket); !errors.Is(err, hw.ErrDeviceLost) {
			t.Errorf("CPUWaitFor() error = %v, want ErrDeviceLost", err)
		}
		if _, err := q.Signal(); !errors.Is(err, hw.ErrDeviceLost) {
			t.Errorf("Signal() error = %v, want ErrDeviceLost", err)
		}
	})
}

func TestGPUWaitFor(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	copyQ := newQueue(t, d, hw.QueueCopy)
	direct := newQueue(t, d, hw.QueueDirect)

	upload, _ := copyQ.Signal()
	if err := direct.GPUWaitFor(copyQ, upload); err != nil {
		t.Fatalf("GPUWaitFor() error = %v", err)
	}
	render, _ := direct.Signal()

	d.Drain(hw.QueueDirect)
	if done, _ := direct.IsComplete(render); done {
		t.Fatal("direct queue ran past its wait")
	}
	d.Drain(hw.QueueCopy)
	d.Drain(hw.QueueDirect)
	if done, _ := direct.IsComplete(render); !done {
		t.Error("direct queue did not resume after the copy queue signaled")
	}
}

func TestExecuteReturnsCoveringTicket(t *testing.T) {
	d := sim.New(sim.Config{})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueDirect)

	alloc, _ := d.CreateRecordingAllocator(hw.QueueDirect)
	list, _ := d.CreateCommandList(hw.QueueDirect, alloc)
	_ = list.Close()

	ticket, err := q.Execute(list)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if ticket != 1 {
		t.Errorf("Execute() ticket = %d, want 1", ticket)
	}
}

func TestWaitIdle(t *testing.T) {
	d := sim.New(sim.Config{AutoComplete: true})
	defer d.Destroy()
	q := newQueue(t, d, hw.QueueCompute)

	_, _ = q.Signal()
	if err := q.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if q.LastCompleted() != q.LastIssued() {
		t.Errorf("LastCompleted() = %d, LastIssued() = %d", q.LastCompleted(), q.LastIssued())
	}
}
