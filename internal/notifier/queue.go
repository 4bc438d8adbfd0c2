package notifier

import (
	"container/heap"
	"time"

	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

// message is one queued alert awaiting delivery.
type message struct {
	ID        string
	Anomaly   model.Anomaly
	Symbol    string
	Text      string
	EnqueuedAt time.Time
	seq       int64 // tiebreaker preserving FIFO order within a severity
}

// priorityQueue orders messages critical < high < medium < low, FIFO within
// a severity tier.
type priorityQueue []*message

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	ri, rj := q[i].Anomaly.Severity.Rank(), q[j].Anomaly.Severity.Rank()
	if ri != rj {
		return ri < rj
	}
	return q[i].seq < q[j].seq
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x interface{}) {
	*q = append(*q, x.(*message))
}

func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// boundedQueue wraps priorityQueue with a capacity and drop-on-full policy.
type boundedQueue struct {
	pq       priorityQueue
	capacity int
	nextSeq  int64
}

func newBoundedQueue(capacity int) *boundedQueue {
	bq := &boundedQueue{capacity: capacity}
	heap.Init(&bq.pq)
	return bq
}

// tryPush enqueues msg, returning false if the queue was already at capacity.
func (b *boundedQueue) tryPush(msg *message) bool {
	if len(b.pq) >= b.capacity {
		return false
	}
	msg.seq = b.nextSeq
	b.nextSeq++
	heap.Push(&b.pq, msg)
	return true
}

func (b *boundedQueue) pop() *message {
	if len(b.pq) == 0 {
		return nil
	}
	return heap.Pop(&b.pq).(*message)
}

func (b *boundedQueue) len() int { return len(b.pq) }
