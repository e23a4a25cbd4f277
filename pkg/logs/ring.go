package logs

import "sync"

// DefaultHistorySize is the number of entries each source retains in memory.
const DefaultHistorySize = 500

// Ring is a fixed-capacity buffer of recent entries, shared by every
// connection reading from the same source. Appending to a full ring evicts
// the oldest entry. Eviction is purely count-based; entries never expire by
// age.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry
	head  int
	count int
}

// NewRing creates a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Append adds entries, evicting the oldest once the ring is full.
func (r *Ring) Append(entries ...Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		r.buf[(r.head+r.count)%len(r.buf)] = entry
		if r.count == len(r.buf) {
			r.head = (r.head + 1) % len(r.buf)
		} else {
			r.count++
		}
	}
}

// Snapshot returns the retained entries, oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Recent returns up to n of the newest entries, oldest first.
func (r *Ring) Recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	out := make([]Entry, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

// Len reports how many entries the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity reports the fixed size of the ring.
func (r *Ring) Capacity() int {
	return len(r.buf)
}
