package frame

import "sync"

// Queue is an ordered list of buffer descriptors. The pipeline keeps one
// for frames submitted to the engine and one for frames decoded and waiting
// for the consumer. Entries reference records; they never own them.
type Queue struct {
	mu    sync.Mutex
	items []BufferDescriptor
}

// NewQueue returns a queue with room for capacity entries before growing.
func NewQueue(capacity int) *Queue {
	return &Queue{items: make([]BufferDescriptor, 0, capacity)}
}

// Push appends d at the back.
func (q *Queue) Push(d BufferDescriptor) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()
}

// Remove deletes the first entry for the same record and external index.
func (q *Queue) Remove(d BufferDescriptor) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].same(d) {
			copy(q.items[i:], q.items[i+1:])
			q.items = q.items[:len(q.items)-1]
			return true
		}
	}
	return false
}

// Front returns the oldest entry.
func (q *Queue) Front() (BufferDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return BufferDescriptor{}, false
	}
	return q.items[0], true
}

// Back returns the newest entry.
func (q *Queue) Back() (BufferDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return BufferDescriptor{}, false
	}
	return q.items[len(q.items)-1], true
}

// PeekReady returns the oldest entry once the newest entry's external
// index has reached minIndex or the newest entry is end of stream. Until
// then frames are held back to build a pre-roll.
func (q *Queue) PeekReady(minIndex int) (BufferDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return BufferDescriptor{}, false
	}
	last := q.items[len(q.items)-1]
	if last.ExternalIndex < minIndex && !last.IsEndOfStream() {
		return BufferDescriptor{}, false
	}
	return q.items[0], true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = q.items[:0]
	q.mu.Unlock()
}
