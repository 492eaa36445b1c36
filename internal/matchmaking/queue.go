// Package matchmaking keeps the per-channel waiting structures: the random
// queue and the pending private challenges. Types here are not safe for
// concurrent use; the owning channel serializes access.
package matchmaking

import "container/list"

// RandomQueue is an insertion-ordered set of waiting user ids.
type RandomQueue struct {
	order *list.List
	index map[string]*list.Element
}

// NewRandomQueue creates an empty queue.
func NewRandomQueue() *RandomQueue {
	return &RandomQueue{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Add enqueues userID. It reports false when the user was already waiting,
// in which case their position is kept.
func (q *RandomQueue) Add(userID string) bool {
	if _, ok := q.index[userID]; ok {
		return false
	}
	q.index[userID] = q.order.PushBack(userID)
	return true
}

// Restore puts userID back at the head of the queue, ahead of everyone
// who arrived while it was out. It reports false when userID is already
// waiting.
func (q *RandomQueue) Restore(userID string) bool {
	if _, ok := q.index[userID]; ok {
		return false
	}
	q.index[userID] = q.order.PushFront(userID)
	return true
}

// Remove drops userID from the queue if present.
func (q *RandomQueue) Remove(userID string) bool {
	el, ok := q.index[userID]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, userID)
	return true
}

// Contains reports whether userID is waiting.
func (q *RandomQueue) Contains(userID string) bool {
	_, ok := q.index[userID]
	return ok
}

// Oldest returns the longest-waiting user other than excluding without
// removing it.
func (q *RandomQueue) Oldest(excluding string) (string, bool) {
	for el := q.order.Front(); el != nil; el = el.Next() {
		if id := el.Value.(string); id != excluding {
			return id, true
		}
	}
	return "", false
}

// Len returns the number of waiting users.
func (q *RandomQueue) Len() int {
	return q.order.Len()
}

// Members returns the waiting users, oldest first.
func (q *RandomQueue) Members() []string {
	out := make([]string, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}
