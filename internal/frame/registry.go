package frame

import (
	"slices"
	"sync"

	"github.com/zsiec/enhancer/internal/timekey"
)

// Registry maps time keys to in-flight records, ordered by key. A record
// is reachable through the registry exactly while it is in flight; removal
// is compare-and-delete so only one party can win a release.
//
// The end-of-stream record has its own slot. Its key may equal that of a
// data frame still in flight.
type Registry struct {
	mu    sync.RWMutex
	byKey map[timekey.Key]*Record
	keys  []timekey.Key
	eos   *Record
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[timekey.Key]*Record)}
}

// Insert registers rec under k unless k is already taken.
func (r *Registry) Insert(k timekey.Key, rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[k]; ok {
		return false
	}
	r.byKey[k] = rec
	i, _ := slices.BinarySearch(r.keys, k)
	r.keys = slices.Insert(r.keys, i, k)
	return true
}

// InsertEndOfStream registers rec as the end-of-stream record unless one
// is already in flight.
func (r *Registry) InsertEndOfStream(rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eos != nil {
		return false
	}
	r.eos = rec
	return true
}

// EndOfStream returns the in-flight end-of-stream record, or nil.
func (r *Registry) EndOfStream() *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eos
}

// Get returns the record registered under k, or nil.
func (r *Registry) Get(k timekey.Key) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[k]
}

// Remove unregisters k only if it still maps to rec. The end-of-stream
// record is removed from its own slot.
func (r *Registry) Remove(k timekey.Key, rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec != nil && r.eos == rec {
		r.eos = nil
		return true
	}
	if cur, ok := r.byKey[k]; !ok || cur != rec {
		return false
	}
	delete(r.byKey, k)
	if i, found := slices.BinarySearch(r.keys, k); found {
		r.keys = slices.Delete(r.keys, i, i+1)
	}
	return true
}

// FindByExternalIndex returns the record whose buffer carries the given
// external index, scanning in key order. A record that is not the
// end-of-stream marker wins over one that is.
func (r *Registry) FindByExternalIndex(idx int) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eos *Record
	for _, k := range r.keys {
		rec := r.byKey[k]
		if rec.buffer.ExternalIndex != idx {
			continue
		}
		if !rec.buffer.IsEndOfStream() {
			return rec
		}
		if eos == nil {
			eos = rec
		}
	}
	if eos == nil && r.eos != nil && r.eos.buffer.ExternalIndex == idx {
		eos = r.eos
	}
	return eos
}

// Snapshot appends the registered records to dst in key order, followed
// by the end-of-stream record.
func (r *Registry) Snapshot(dst []*Record) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		dst = append(dst, r.byKey[k])
	}
	if r.eos != nil {
		dst = append(dst, r.eos)
	}
	return dst
}

// Drain unregisters every record and appends them to dst in Snapshot
// order.
func (r *Registry) Drain(dst []*Record) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		dst = append(dst, r.byKey[k])
	}
	if r.eos != nil {
		dst = append(dst, r.eos)
		r.eos = nil
	}
	clear(r.byKey)
	r.keys = r.keys[:0]
	return dst
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.keys)
	if r.eos != nil {
		n++
	}
	return n
}
