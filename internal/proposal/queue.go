package proposal

import (
	"sync"
)

// Queue holds proposals in review order: the first enqueued is reviewed
// first. Every mutation is a single critical section.
type Queue struct {
	mu    sync.RWMutex
	items []Proposal
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// EnqueueAll appends proposals in order. Duplicates are kept; they are
// distinct proposed events.
func (q *Queue) EnqueueAll(proposals []Proposal) {
	if len(proposals) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, proposals...)
	q.mu.Unlock()
}

// Top returns deep copies of the front-most n proposals, or fewer.
func (q *Queue) Top(n int) []Proposal {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 {
		return []Proposal{}
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Proposal, n)
	for i := range out {
		out[i] = q.items[i].clone()
	}
	return out
}

// Len returns the number of queued proposals.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Get returns a deep copy of the proposal with the given id.
func (q *Queue) Get(id string) (Proposal, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if i := q.indexOf(id); i >= 0 {
		return q.items[i].clone(), true
	}
	return Proposal{}, false
}

// Replace overwrites the fields of an existing entry in place. The id is
// preserved and derived fields are recomputed. An absent id is a no-op.
func (q *Queue) Replace(id string, updated Proposal) bool {
	_, ok := q.Update(id, func(p *Proposal) {
		*p = updated
	})
	return ok
}

// Update applies fn to the entry with the given id under the queue lock and
// returns the result. An absent id is a no-op.
func (q *Queue) Update(id string, fn func(*Proposal)) (Proposal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return Proposal{}, false
	}

	p := q.items[i].clone()
	fn(&p)
	p.ID = id
	p.normalize()
	q.items[i] = p

	return p.clone(), true
}

// Remove deletes the entry with the given id. Removing an absent id is a
// no-op.
func (q *Queue) Remove(id string) (Proposal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return Proposal{}, false
	}

	removed := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	return removed, true
}

// PushFront puts a proposal back at the head of the queue.
func (q *Queue) PushFront(p Proposal) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(p.ID) >= 0 {
		return
	}
	q.items = append([]Proposal{p}, q.items...)
}

func (q *Queue) indexOf(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}
