package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Queue stores tasks per lane ordered by RunAt. Pop returns nil when nothing is due.
type Queue interface {
	Push(ctx context.Context, lane Lane, t *Task) error
	Pop(ctx context.Context, lane Lane, now time.Time) (*Task, error)
	Len(ctx context.Context, lane Lane) (int, error)
}

// MemoryQueue is a process-local queue backed by a min-heap per lane.
type MemoryQueue struct {
	mu    sync.Mutex
	lanes map[Lane]*taskHeap
	seq   uint64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{lanes: make(map[Lane]*taskHeap)}
}

func (q *MemoryQueue) Push(_ context.Context, lane Lane, t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.lanes[lane]
	if !ok {
		h = &taskHeap{}
		q.lanes[lane] = h
	}
	q.seq++
	heap.Push(h, heapItem{task: t, seq: q.seq})
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context, lane Lane, now time.Time) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.lanes[lane]
	if !ok || h.Len() == 0 {
		return nil, nil
	}
	if (*h)[0].task.RunAt.After(now) {
		return nil, nil
	}
	return heap.Pop(h).(heapItem).task, nil
}

func (q *MemoryQueue) Len(_ context.Context, lane Lane) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if h, ok := q.lanes[lane]; ok {
		return h.Len(), nil
	}
	return 0, nil
}

type heapItem struct {
	task *Task
	seq  uint64
}

// taskHeap orders by RunAt, then insertion order.
type taskHeap []heapItem

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].task.RunAt.Equal(h[j].task.RunAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].task.RunAt.Before(h[j].task.RunAt)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
