package jobs

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"
)

// WorkQueue orders job ids by readiness time with support for delayed
// retries. Enqueueing an id already in the queue keeps the earlier readiness
// time.
type WorkQueue interface {
	Enqueue(id JobID, delay time.Duration)
	Dequeue() (JobID, bool)
	Len() int
	Wait() <-chan struct{}
}

type workQueue struct {
	mu       sync.Mutex
	items    *workItemHeap
	notifyCh chan struct{}
}

type workItem struct {
	id      JobID
	readyAt time.Time
	index   int
}

type workItemHeap []*workItem

func (h workItemHeap) Len() int { return len(h) }

func (h workItemHeap) Less(i, j int) bool {
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h workItemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *workItemHeap) Push(x interface{}) {
	item := x.(*workItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *workItemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// NewWorkQueue creates an empty work queue.
func NewWorkQueue() WorkQueue {
	items := &workItemHeap{}
	heap.Init(items)

	return &workQueue{
		items:    items,
		notifyCh: make(chan struct{}, 1),
	}
}

func (wq *workQueue) Enqueue(id JobID, delay time.Duration) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	readyAt := time.Now().Add(delay)

	for _, item := range *wq.items {
		if item.id == id {
			if readyAt.Before(item.readyAt) {
				item.readyAt = readyAt
				heap.Fix(wq.items, item.index)
			}
			wq.notify()
			return
		}
	}

	heap.Push(wq.items, &workItem{id: id, readyAt: readyAt})
	wq.notify()
}

func (wq *workQueue) Dequeue() (JobID, bool) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	if wq.items.Len() == 0 {
		return "", false
	}

	item := (*wq.items)[0]
	if time.Now().Before(item.readyAt) {
		return "", false
	}

	heap.Pop(wq.items)
	return item.id, true
}

func (wq *workQueue) Len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.items.Len()
}

func (wq *workQueue) Wait() <-chan struct{} {
	return wq.notifyCh
}

func (wq *workQueue) notify() {
	select {
	case wq.notifyCh <- struct{}{}:
	default:
	}
}

// Jitter spreads a duration by up to jitterFraction in either direction to
// avoid synchronized retries.
func Jitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}

	jitter := rand.Float64() * jitterFraction
	multiplier := 1.0 + (jitter * 2.0) - jitterFraction
	return time.Duration(float64(duration) * multiplier)
}

// ExponentialBackoff returns baseDelay * 2^attempt capped at maxDelay, with
// ±25% jitter applied.
func ExponentialBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(baseDelay) * multiplier)
	if delay > maxDelay {
		delay = maxDelay
	}

	return Jitter(delay, 0.25)
}
