package demo

import (
	"sync"

	"github.com/zeu5/redisraft/raftlog"
)

// Refs tracks a strong-reference count per *raftlog.LogEntry, standing in
// for the "entry lifecycle interface" spec.md says the consensus engine
// supplies. raftlog.EntryCache calls Hold/Release exactly where the spec
// requires (one hold per cached slot, one release per eviction); Engine.Get
// callers are expected to call Release when done with a returned entry.
type Refs struct {
	mu     sync.Mutex
	counts map[*raftlog.LogEntry]int
}

// NewRefs returns an empty reference tracker.
func NewRefs() *Refs {
	return &Refs{counts: make(map[*raftlog.LogEntry]int)}
}

// Hold increments e's reference count.
func (r *Refs) Hold(e *raftlog.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[e]++
}

// Release decrements e's reference count, dropping its entry from the
// tracker once it reaches zero.
func (r *Refs) Release(e *raftlog.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[e]--
	if r.counts[e] <= 0 {
		delete(r.counts, e)
	}
}

// Count reports e's current reference count (0 if untracked).
func (r *Refs) Count(e *raftlog.LogEntry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[e]
}
