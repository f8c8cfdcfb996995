package workflow

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// WorkItem is a schedulable unit of work in the saga engine's frontier: dispatch of
// one node for one instance tick, carrying enough provenance for deterministic
// ordering across replays. Grounded on the teacher's graph/scheduler.go WorkItem,
// generalized to the engine's own NodeRef addressing scheme (nodes are referenced by
// path-qualified ID, not by Go pointer, per Design Note §9 "Cyclic references").
type WorkItem[S any] struct {
	StepID       int
	OrderKey     uint64
	NodeID       string
	State        S
	Attempt      int
	ParentNodeID string
	EdgeIndex    int
}

// ComputeOrderKey derives a deterministic sort key from (parentNodeID, edgeIndex) via
// SHA-256, so frontier ordering is stable across process restarts and independent of
// goroutine completion order. Unchanged from the teacher's formula.
func ComputeOrderKey(parentNodeID string, edgeIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentNodeID))
	edgeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(edgeBytes, uint32(edgeIndex))
	h.Write(edgeBytes)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

type workHeap[S any] []WorkItem[S]

func (h workHeap[S]) Len() int            { return len(h) }
func (h workHeap[S]) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h workHeap[S]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap[S]) Push(x interface{}) { *h = append(*h, x.(WorkItem[S])) }
func (h *workHeap[S]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// Frontier is the engine's per-instance work queue: a priority heap ordered by
// OrderKey combined with a bounded buffered channel for backpressure, per spec §5
// ("Shared-resource policy... Ledger cache... Outbox" concurrency model applied here
// to the dispatch queue). Enqueue blocks once the channel reaches capacity, giving
// the natural backpressure spec §4.4/§5 requires ("any step whose implementation
// performs an await on external I/O" is itself a suspension point, but the frontier
// additionally bounds how many dispatch decisions can be buffered ahead of it).
type Frontier[S any] struct {
	heap     workHeap[S]
	queue    chan WorkItem[S]
	capacity int
	mu       sync.Mutex

	totalEnqueued      atomic.Int64
	totalDequeued      atomic.Int64
	backpressureEvents atomic.Int32
	peakQueueDepth     atomic.Int32
}

func NewFrontier[S any](capacity int) *Frontier[S] {
	f := &Frontier[S]{heap: make(workHeap[S], 0), queue: make(chan WorkItem[S], capacity), capacity: capacity}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds item to the frontier, blocking if the buffered channel is at
// capacity until space frees up or ctx is cancelled.
func (f *Frontier[S]) Enqueue(ctx context.Context, item WorkItem[S]) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	heap.Push(&f.heap, item)
	depth := int32(f.heap.Len())
	f.mu.Unlock()

	for {
		oldPeak := f.peakQueueDepth.Load()
		if depth <= oldPeak || f.peakQueueDepth.CompareAndSwap(oldPeak, depth) {
			break
		}
	}
	if depth >= int32(f.capacity) {
		f.backpressureEvents.Add(1)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- item:
		f.totalEnqueued.Add(1)
		return nil
	}
}

// Dequeue blocks for the next item, returning them in OrderKey order regardless of
// enqueue order.
func (f *Frontier[S]) Dequeue(ctx context.Context) (WorkItem[S], error) {
	var zero WorkItem[S]
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.queue:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.heap.Len() == 0 {
			return zero, context.Canceled
		}
		item := heap.Pop(&f.heap).(WorkItem[S])
		f.totalDequeued.Add(1)
		return item, nil
	}
}

func (f *Frontier[S]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// SchedulerMetrics is a point-in-time snapshot of frontier activity, exported via
// Prometheus by the engine's metrics wiring.
type SchedulerMetrics struct {
	QueueDepth         int32
	QueueCapacity      int32
	TotalEnqueued      int64
	TotalDequeued      int64
	BackpressureEvents int32
	PeakQueueDepth     int32
}

func (f *Frontier[S]) Metrics() SchedulerMetrics {
	f.mu.Lock()
	depth := int32(f.heap.Len())
	f.mu.Unlock()
	return SchedulerMetrics{
		QueueDepth:         depth,
		QueueCapacity:      int32(f.capacity),
		TotalEnqueued:      f.totalEnqueued.Load(),
		TotalDequeued:      f.totalDequeued.Load(),
		BackpressureEvents: f.backpressureEvents.Load(),
		PeakQueueDepth:      f.peakQueueDepth.Load(),
	}
}
