// Package pool provides a slot arena of reusable objects. Each object is
// created once, stamped with its slot index as a stable identity, and then
// cycles between the free list and its owner without further allocation.
package pool

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

// Sentinel errors returned by Pool operations.
var (
	ErrExhausted   = errors.New("pool: capacity exhausted")
	ErrUnknownSlot = errors.New("pool: unknown slot")
	ErrNotAcquired = errors.New("pool: slot not acquired")
)

// Pool is a free list of *T. Acquire takes the lowest free slot id or
// allocates a new one; Release resets the object and returns its slot.
// Slot ids increase monotonically in allocation order.
//
// The caller must own an object exclusively when releasing it.
type Pool[T any] struct {
	alloc func(id int) *T
	reset func(*T)
	limit int

	mu    sync.Mutex
	slots []*T
	busy  []bool
	free  []int // descending, lowest id last
}

// New creates a Pool. alloc builds the object for a new slot id; reset, if
// non-nil, is applied on every Release. A limit of 0 means unbounded.
func New[T any](limit int, alloc func(id int) *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		alloc: alloc,
		reset: reset,
		limit: limit,
	}
}

// Acquire returns a slot id and its object, marked in use.
func (p *Pool[T]) Acquire() (int, *T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		p.busy[id] = true
		return id, p.slots[id], nil
	}

	if p.limit > 0 && len(p.slots) >= p.limit {
		return -1, nil, ErrExhausted
	}

	id := len(p.slots)
	v := p.alloc(id)
	p.slots = append(p.slots, v)
	p.busy = append(p.busy, true)
	return id, v, nil
}

// Release resets the object in slot id and returns the slot to the free
// list. Releasing a slot that is not in use is rejected, so a slot can never
// appear in the free list twice.
func (p *Pool[T]) Release(id int) error {
	p.mu.Lock()
	if id < 0 || id >= len(p.slots) {
		p.mu.Unlock()
		return ErrUnknownSlot
	}
	if !p.busy[id] {
		p.mu.Unlock()
		return ErrNotAcquired
	}
	p.busy[id] = false
	v := p.slots[id]
	p.mu.Unlock()

	if p.reset != nil {
		p.reset(v)
	}

	p.mu.Lock()
	i, _ := slices.BinarySearchFunc(p.free, id, func(e, target int) int { return cmp.Compare(target, e) })
	p.free = slices.Insert(p.free, i, id)
	p.mu.Unlock()
	return nil
}

// InUse reports whether slot id is currently acquired.
func (p *Pool[T]) InUse(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return id >= 0 && id < len(p.busy) && p.busy[id]
}

// Len returns the number of slots ever allocated.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Idle returns the number of slots in the free list.
func (p *Pool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Allocated int `json:"allocated"`
	Idle      int `json:"idle"`
	InUse     int `json:"inUse"`
}

// Stats returns current occupancy counts.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Allocated: len(p.slots),
		Idle:      len(p.free),
		InUse:     len(p.slots) - len(p.free),
	}
}
