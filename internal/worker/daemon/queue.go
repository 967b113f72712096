package daemon

import (
	"container/heap"

	"github.com/robalyx/decelerator/internal/fediverse"
)

// QueueItem is one notification waiting for correlation.
type QueueItem struct {
	UserID         string `json:"userId"`
	NotificationID string `json:"notificationId"`
}

func (i QueueItem) key() string {
	return i.UserID + "/" + i.NotificationID
}

// Queue holds pending notifications, newest first, without duplicates.
// It is not safe for concurrent use.
type Queue struct {
	items queueHeap
	seen  map[string]struct{}
}

// NewQueue creates a queue holding items.
func NewQueue(items ...QueueItem) *Queue {
	q := &Queue{seen: make(map[string]struct{}, len(items))}
	for _, item := range items {
		q.Push(item)
	}

	return q
}

// Push adds an item and reports whether it was not already queued.
func (q *Queue) Push(item QueueItem) bool {
	if _, ok := q.seen[item.key()]; ok {
		return false
	}

	q.seen[item.key()] = struct{}{}
	heap.Push(&q.items, item)

	return true
}

// Pop removes the newest item.
func (q *Queue) Pop() (QueueItem, bool) {
	if len(q.items) == 0 {
		return QueueItem{}, false
	}

	item := heap.Pop(&q.items).(QueueItem)
	delete(q.seen, item.key())

	return item, true
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns the queued items in pop order without removing them.
func (q *Queue) Items() []QueueItem {
	sorted := make(queueHeap, len(q.items))
	copy(sorted, q.items)

	out := make([]QueueItem, 0, len(sorted))
	for len(sorted) > 0 {
		out = append(out, heap.Pop(&sorted).(QueueItem))
	}

	return out
}

type queueHeap []QueueItem

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if c := fediverse.CompareIDs(h[i].NotificationID, h[j].NotificationID); c != 0 {
		return c > 0
	}

	return h[i].UserID < h[j].UserID
}

func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queueHeap) Push(x any) { *h = append(*h, x.(QueueItem)) }

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}
