package memory

import (
	"fmt"
	"strings"

	"github.com/gogpu/framekit/hw"
)

// Stats is a snapshot of the handler's pools.
type Stats struct {
	Frame uint64

	LiveResources, PendingResources           int
	LivePipelines, PendingPipelines           int
	LiveRootSignatures, PendingRootSignatures int
	Destroyed                                 uint64

	// Per descriptor kind.
	DescriptorHeaps   [hw.DescriptorKindCount]int
	DescriptorsInUse  [hw.DescriptorKindCount]int
	PendingDescriptor [hw.DescriptorKindCount]int

	RingSize, RingUsed uint64
	RingFrames         int

	Reclaimed uint64
}

// Stats returns a snapshot.
func (h *Handler) Stats() Stats {
	s := Stats{Frame: h.frame.Load(), Reclaimed: h.reclaimed.Load()}

	var d1, d2, d3 uint64
	s.LiveResources, s.PendingResources, d1 = h.resources.counts()
	s.LivePipelines, s.PendingPipelines, d2 = h.pipelines.counts()
	s.LiveRootSignatures, s.PendingRootSignatures, d3 = h.roots.counts()
	s.Destroyed = d1 + d2 + d3

	for k, a := range h.cpu {
		if a == nil {
			continue
		}
		s.DescriptorHeaps[k] = a.HeapCount()
		s.DescriptorsInUse[k] = a.InUse()
		q := &h.descQ[k]
		q.mu.Lock()
		s.PendingDescriptor[k] = q.queue.Len()
		q.mu.Unlock()
	}
	if h.upload != nil {
		s.RingSize = h.upload.Size()
		s.RingUsed = h.upload.Used()
		s.RingFrames = h.upload.PendingFrames()
	}
	return s
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d: resources %d live/%d pending, pipelines %d/%d, root signatures %d/%d, %d destroyed\n",
		s.Frame, s.LiveResources, s.PendingResources, s.LivePipelines, s.PendingPipelines,
		s.LiveRootSignatures, s.PendingRootSignatures, s.Destroyed)
	for k := range s.DescriptorHeaps {
		fmt.Fprintf(&b, "  %-12v heaps %d, in use %d, pending %d\n", hw.DescriptorKind(k),
			s.DescriptorHeaps[k], s.DescriptorsInUse[k], s.PendingDescriptor[k])
	}
	fmt.Fprintf(&b, "  upload ring %d/%d bytes, %d frames pending", s.RingUsed, s.RingSize, s.RingFrames)
	return b.String()
}
