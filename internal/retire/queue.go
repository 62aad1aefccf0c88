package retire

import "github.com/gogpu/framekit/internal/fifo"

type entry[T any] struct {
	item  T
	frame uint64
}

// Queue holds items tagged with the frame in which they were released.
// Frames are non-decreasing from front to back, so collection walks only
// the reclaimable prefix.
//
// Queue is not safe for concurrent use.
type Queue[T any] struct {
	q    fifo.Queue[entry[T]]
	last uint64
}

// Push appends item released during frame. A frame older than the last
// pushed one is raised to it, which only delays destruction.
func (q *Queue[T]) Push(item T, frame uint64) {
	frame = max(frame, q.last)
	q.last = frame
	q.q.Push(entry[T]{item: item, frame: frame})
}

// Collect pops every entry with frame+bufferCount < currentFrame, in order,
// calling destroy for each. It returns the number collected.
func (q *Queue[T]) Collect(currentFrame, bufferCount uint64, destroy func(T)) int {
	n := 0
	for {
		e, ok := q.q.Front()
		if !ok || e.frame+bufferCount >= currentFrame {
			return n
		}
		q.q.Pop()
		destroy(e.item)
		n++
	}
}

// Flush pops every entry regardless of frame.
func (q *Queue[T]) Flush(destroy func(T)) int {
	n := 0
	for {
		e, ok := q.q.Pop()
		if !ok {
			return n
		}
		destroy(e.item)
		n++
	}
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int { return q.q.Len() }

// OldestFrame returns the frame of the front entry.
func (q *Queue[T]) OldestFrame() (uint64, bool) {
	e, ok := q.q.Front()
	return e.frame, ok
}
