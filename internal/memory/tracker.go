package memory

import (
	"sync"

	"github.com/gogpu/framekit/internal/retire"
)

// destroyer is a native object released by the GPU backend.
type destroyer interface {
	Destroy()
}

// tracker owns live native objects of one type and their destroy queue.
// Only collect, flush and destroyAll call Destroy.
type tracker[T destroyer] struct {
	mu        sync.Mutex
	live      retire.Arena[T]
	queue     retire.Queue[retire.ID[T]]
	destroyed uint64
}

func (t *tracker[T]) track(v T) retire.ID[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live.Insert(v)
}

func (t *tracker[T]) get(id retire.ID[T]) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live.Get(id)
}

func (t *tracker[T]) release(id retire.ID[T], frame uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.live.Retire(id); err != nil {
		return err
	}
	t.queue.Push(id, frame)
	return nil
}

func (t *tracker[T]) destroyLocked(id retire.ID[T]) {
	v, err := t.live.Remove(id)
	if err != nil {
		return
	}
	v.Destroy()
	t.destroyed++
}

func (t *tracker[T]) collect(frame, bufferCount uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Collect(frame, bufferCount, t.destroyLocked)
}

func (t *tracker[T]) flush() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Flush(t.destroyLocked)
}

// destroyAll flushes the queue and destroys objects that were never
// released. It returns the number of leaked objects.
func (t *tracker[T]) destroyAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue.Flush(t.destroyLocked)
	var leaked []retire.ID[T]
	t.live.Each(func(id retire.ID[T], _ T) { leaked = append(leaked, id) })
	for _, id := range leaked {
		t.destroyLocked(id)
	}
	return len(leaked)
}

func (t *tracker[T]) counts() (live, pending int, destroyed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live.Len() - t.queue.Len(), t.queue.Len(), t.destroyed
}
