package governance

import (
	"time"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"
)

type queueItem struct {
	id         string
	rank       int
	receivedAt time.Time
	seq        uint64
}

// dispatchQueue orders pending IDs by priority, then arrival. An ID is held
// at most once. It is not safe for concurrent use; the pipeline guards it.
type dispatchQueue struct {
	heap   *priorityqueue.Queue
	queued map[string]struct{}
	seq    uint64
}

func newDispatchQueue() *dispatchQueue {
	return &dispatchQueue{
		heap:   priorityqueue.NewWith(utils.Comparator(compareItems)),
		queued: make(map[string]struct{}),
	}
}

// compareItems sorts higher rank first, then earlier arrival, then
// insertion order.
func compareItems(a, b interface{}) int {
	x, y := a.(*queueItem), b.(*queueItem)
	switch {
	case x.rank != y.rank:
		return y.rank - x.rank
	case x.receivedAt.Before(y.receivedAt):
		return -1
	case y.receivedAt.Before(x.receivedAt):
		return 1
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	}
	return 0
}

// push enqueues p unless it is already queued.
func (q *dispatchQueue) push(p PendingIntent) bool {
	if _, ok := q.queued[p.ID]; ok {
		return false
	}
	q.seq++
	q.queued[p.ID] = struct{}{}
	q.heap.Enqueue(&queueItem{id: p.ID, rank: p.Priority.rank(), receivedAt: p.ReceivedAt, seq: q.seq})
	return true
}

// popBatch removes up to n IDs in dispatch order.
func (q *dispatchQueue) popBatch(n int) []string {
	var ids []string
	for len(ids) < n {
		v, ok := q.heap.Dequeue()
		if !ok {
			break
		}
		item := v.(*queueItem)
		delete(q.queued, item.id)
		ids = append(ids, item.id)
	}
	return ids
}

func (q *dispatchQueue) depth() int {
	return q.heap.Size()
}
